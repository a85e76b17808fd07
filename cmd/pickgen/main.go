// Command pickgen runs the scheduled pick generation service: periodic
// ingestion, due-game dispatch, the emergency sweep and the trigger API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/cache"
	"github.com/badbeats/pickgen/internal/clients/balldontlie"
	"github.com/badbeats/pickgen/internal/clients/news"
	"github.com/badbeats/pickgen/internal/config"
	"github.com/badbeats/pickgen/internal/engine"
	"github.com/badbeats/pickgen/internal/handlers"
	"github.com/badbeats/pickgen/internal/logic"
	"github.com/badbeats/pickgen/internal/store"
	"github.com/badbeats/pickgen/internal/worker"
)

const stateTTL = 14 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Sugar().Fatalw("pickgen stopped with error", "error", err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	log := logger.Sugar()

	// Storage
	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	var ch driver.Conn
	if cfg.ClickHouseURL != "" {
		chOpts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			return fmt.Errorf("clickhouse dsn: %w", err)
		}
		if ch, err = clickhouse.Open(chOpts); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer ch.Close()
	} else {
		log.Warn("CLICKHOUSE_URL not set, attempt journal disabled")
	}

	games := store.NewPostgres(pg)
	states := store.NewRedisStateStore(rdb, "pickgen", stateTTL)
	articleCache := cache.NewRedis(rdb, "pickgen:cache")

	// Upstreams
	bdl := balldontlie.New(balldontlie.Config{
		BaseURL:       cfg.BallDontLieURL,
		APIKey:        cfg.BallDontLieAPIKey,
		RatePerMinute: cfg.BallDontLieRatePerMinute,
		HTTPClient:    &http.Client{Timeout: cfg.FetchTimeout},
		Logger:        logger,
	})
	newsClient := news.New(news.Config{
		Feeds:      parseFeeds(cfg.NewsFeeds),
		InjuryURL:  cfg.InjuryReportURL,
		Cache:      articleCache,
		CacheTTL:   cfg.NewsCacheTTL,
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		Logger:     logger,
	})
	eng, err := engine.New(engine.Config{
		Provider: cfg.EngineProvider,
		Model:    cfg.EngineModel,
		APIKey:   cfg.EngineAPIKey,
		BaseURL:  cfg.EngineBaseURL,
		AgentID:  cfg.AgentID,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// Workflow
	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount: cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
		Logger:      logger,
	})

	var journal logic.Journal = logic.NopJournal
	var attemptJournal *worker.Journal
	if ch != nil {
		attemptJournal = worker.NewJournal(worker.JournalConfig{
			ClickHouse:    ch,
			BatchSize:     cfg.JournalBatchSize,
			FlushInterval: cfg.JournalFlushInterval,
			Logger:        logger,
		})
		journal = attemptJournal
	}

	ingestor := logic.NewIngestor(games, bdl, logger, time.Now)
	aggregator := logic.NewAggregator(logic.AggregatorConfig{
		Store:        games,
		Games:        bdl,
		News:         newsClient,
		FetchTimeout: cfg.FetchTimeout,
		NewsDays:     cfg.NewsDays,
		Logger:       logger,
	})
	executor := logic.NewExecutor(logic.ExecutorConfig{
		Store:   games,
		Builder: aggregator,
		Engine:  eng,
		Logger:  logger,
	})
	supervisor := logic.NewSupervisor(logic.SupervisorConfig{
		Store:     games,
		States:    states,
		Generator: executor,
		Queue:     pool,
		Journal:   journal,
		Policy: logic.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  cfg.RetryMultiplier,
			Retryable:   logic.DefaultRetryable,
		},
		Plan: logic.PlanParams{
			Lead:      cfg.PredictionLead,
			Lookahead: cfg.DueLookahead,
			TooLate:   cfg.TooLate,
			MinSlack:  cfg.MinSlack,
		},
		AgentID:           eng.Name(),
		GenerationTimeout: cfg.GenerationTimeout,
		EmergencyHorizon:  cfg.EmergencyHorizon,
		EmergencyDelay:    cfg.EmergencyDelay,
		Logger:            logger,
	})

	// HTTP
	h := handlers.New(handlers.Config{
		Ingestion:   ingestor,
		Generation:  supervisor,
		States:      states,
		WorkerPool:  pool,
		Postgres:    pg,
		ClickHouse:  clickHouseConn(ch),
		Redis:       rdb,
		Logger:      logger,
		HorizonDays: cfg.IngestionHorizonDays,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Supervision tree
	root := suture.New("pickgen", suture.Spec{
		EventHook: zapEventHook(logger),
		Timeout:   15 * time.Second,
	})
	root.Add(pool)
	if attemptJournal != nil {
		root.Add(attemptJournal)
	}
	root.Add(&worker.Loop{
		Name:       "ingestion-loop",
		Interval:   cfg.IngestionInterval,
		RunAtStart: cfg.RunOnStart,
		Logger:     logger,
		Fn: func(ctx context.Context) error {
			summary := ingestor.RunIngestion(ctx, cfg.IngestionHorizonDays)
			if summary.Status == logic.IngestionFailed {
				return fmt.Errorf("ingestion failed: %s", strings.Join(summary.Errors, "; "))
			}
			return nil
		},
	})
	root.Add(&worker.Loop{
		Name:       "generation-loop",
		Interval:   cfg.GenerationInterval,
		RunAtStart: cfg.RunOnStart,
		Logger:     logger,
		Fn: func(ctx context.Context) error {
			_, err := supervisor.RunScheduledGeneration(ctx)
			return err
		},
	})
	root.Add(&worker.Loop{
		Name:     "emergency-loop",
		Interval: cfg.EmergencyInterval,
		Logger:   logger,
		Fn: func(ctx context.Context) error {
			_, err := supervisor.RunEmergencySweep(ctx)
			return err
		},
	})
	root.Add(&httpService{server: server})

	log.Infow("pickgen starting",
		"port", cfg.Port,
		"agent_id", eng.Name(),
		"engine", cfg.EngineProvider,
		"workers", cfg.WorkerCount,
		"journal", attemptJournal != nil,
	)

	err = root.Serve(ctx)
	if ctx.Err() != nil {
		log.Info("pickgen stopped")
		return nil
	}
	return err
}

// clickHouseConn keeps a nil driver.Conn from becoming a non-nil interface.
func clickHouseConn(ch driver.Conn) handlers.ClickHouseConn {
	if ch == nil {
		return nil
	}
	return ch
}

// parseFeeds reads NEWS_FEEDS items of the form "name=url" or "url".
func parseFeeds(items []string) []news.Feed {
	var feeds []news.Feed
	for _, item := range items {
		name, raw, ok := strings.Cut(item, "=")
		if !ok || strings.Contains(name, "/") {
			raw, name = item, ""
		}
		if name == "" {
			if u, err := url.Parse(raw); err == nil {
				name = u.Hostname()
			}
		}
		feeds = append(feeds, news.Feed{Name: name, URL: raw})
	}
	return feeds
}

func zapEventHook(logger *zap.Logger) suture.EventHook {
	log := logger.Sugar()
	return func(e suture.Event) {
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			log.Errorw("Supervised service failed", "event", e.String())
		case suture.EventTypeBackoff:
			log.Warnw("Supervisor backing off", "event", e.String())
		default:
			log.Infow("Supervisor event", "event", e.String())
		}
	}
}

// httpService runs the API server under the supervision tree.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }
