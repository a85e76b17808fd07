package logic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickgen_generations_total",
		Help: "Generation attempts by outcome",
	}, []string{"outcome"})

	generationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_generation_retries_total",
		Help: "Generation attempts re-scheduled after a failure",
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pickgen_generation_duration_seconds",
		Help:    "Duration of a single generation attempt",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	emergencyDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_emergency_dispatched_total",
		Help: "Emergency generations scheduled by the sweep",
	})

	emergencyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_emergency_failures_total",
		Help: "Emergency generations that failed terminally",
	})

	gamesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_games_ingested_total",
		Help: "Games upserted by ingestion",
	})

	ingestionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_ingestion_errors_total",
		Help: "Game records skipped by ingestion",
	})

	dueGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickgen_due_games",
		Help: "Games found due on the last generation tick",
	})

	aggregationPartial = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickgen_aggregation_partial_total",
		Help: "Context slots replaced by the unavailable sentinel",
	}, []string{"slot"})
)
