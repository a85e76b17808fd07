package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 10 << 20

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pickgen_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickgen_upstream_requests_total",
		Help: "Outbound upstream requests by client and result",
	}, []string{"name", "result"})
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Transient reports whether the status points at an upstream problem
// rather than a bad request.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Name    string
	Client  *http.Client
	Headers map[string]string
	// RatePerMinute limits outbound requests; zero means unlimited.
	RatePerMinute int
	Logger        *zap.Logger
}

// Fetcher performs GET requests behind a rate limiter and a circuit breaker.
type Fetcher struct {
	name    string
	client  *http.Client
	headers map[string]string
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.SugaredLogger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Sugar()

	f := &Fetcher{
		name:    cfg.Name,
		client:  cfg.Client,
		headers: cfg.Headers,
		logger:  logger,
	}
	if cfg.RatePerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)
	f.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client errors and cancellations say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Transient()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return f
}

// Get fetches url and returns the response body.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", f.name, err)
		}
	}

	body, err := f.cb.Execute(func() ([]byte, error) {
		return f.do(ctx, url)
	})
	switch {
	case err == nil:
		upstreamRequests.WithLabelValues(f.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		upstreamRequests.WithLabelValues(f.name, "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", f.name, err)
	default:
		upstreamRequests.WithLabelValues(f.name, "failure").Inc()
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
