package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the HTTP router for the trigger surface.
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))

		r.Post("/triggers/ingestion", h.TriggerIngestion)
		r.Post("/triggers/generation", h.TriggerGeneration)
		r.Post("/triggers/emergency", h.TriggerEmergency)

		r.Post("/games/{gameID}/generate", h.GenerateGame)
		r.Get("/games/{gameID}/state", h.GetGameState)
		r.Get("/failures", h.ListFailures)

		r.Post("/system/install", h.InstallDatabase)
	})
	return r
}
