package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check all dependencies
	checks := map[string]bool{
		"postgres": h.pg != nil && h.pg.Ping(ctx) == nil,
		"redis":    h.redis != nil && h.redis.Ping(ctx).Err() == nil,
	}
	if h.ch != nil {
		checks["clickhouse"] = h.ch.Ping(ctx) == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	body := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}
	if h.pool != nil {
		body["queueDepth"] = h.pool.QueueDepth()
	}
	h.jsonResponse(w, status, body)
}

// decodeBody decodes an optional JSON body into dst and validates it. An
// empty body leaves dst untouched.
func (h *Handler) decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > MaxBodySize {
		return errors.New("request body too large")
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return err
		}
	}
	return h.validator.Struct(dst)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
