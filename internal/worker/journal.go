package worker

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
)

var (
	journalBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pickgen_journal_batch_duration_seconds",
		Help:    "Duration of attempt journal batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})

	journalDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickgen_journal_dropped_total",
		Help: "Attempt records that never reached ClickHouse",
	}, []string{"reason"})
)

const insertAttempts = `
	INSERT INTO pickgen.generation_attempts (
		timestamp, agent_id, game_id, attempt, emergency,
		outcome, error_kind, reason, duration_ms
	)`

// JournalConfig configures a Journal.
type JournalConfig struct {
	ClickHouse    driver.Conn
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *zap.Logger
}

// Journal writes generation attempts to ClickHouse in batches. Record
// never blocks; attempts are dropped when the buffer is full.
type Journal struct {
	config  JournalConfig
	records chan models.Attempt
	logger  *zap.SugaredLogger
}

func NewJournal(cfg JournalConfig) *Journal {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Journal{
		config:  cfg,
		records: make(chan models.Attempt, cfg.BufferSize),
		logger:  cfg.Logger.Sugar(),
	}
}

// Record implements logic.Journal.
func (j *Journal) Record(a models.Attempt) {
	select {
	case j.records <- a:
	default:
		journalDropped.WithLabelValues("buffer_full").Inc()
	}
}

// Serve batches records until ctx is canceled, then flushes what is
// buffered.
func (j *Journal) Serve(ctx context.Context) error {
	batch := make([]models.Attempt, 0, j.config.BatchSize)
	ticker := time.NewTicker(j.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.send(batch); err != nil {
			j.logger.Errorw("Journal batch failed", "batchSize", len(batch), "error", err)
			journalDropped.WithLabelValues("send_failed").Add(float64(len(batch)))
		}
		journalBatchDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case a := <-j.records:
			batch = append(batch, a)
			if len(batch) >= j.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
		drain:
			for {
				select {
				case a := <-j.records:
					batch = append(batch, a)
				default:
					break drain
				}
			}
			flush()
			return ctx.Err()
		}
	}
}

func (j *Journal) String() string { return "attempt-journal" }

func (j *Journal) send(batch []models.Attempt) error {
	// The caller's context is already canceled on the final flush.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chBatch, err := j.config.ClickHouse.PrepareBatch(ctx, insertAttempts)
	if err != nil {
		return err
	}
	for _, a := range batch {
		if err := chBatch.Append(
			a.Timestamp,
			a.AgentID,
			a.GameID,
			uint16(a.Number),
			a.Emergency,
			a.Outcome,
			a.ErrorKind,
			a.Reason,
			uint32(a.Duration.Milliseconds()),
		); err != nil {
			j.logger.Warnw("Failed to append attempt to batch", "game_id", a.GameID, "error", err)
			continue
		}
	}
	return chBatch.Send()
}
