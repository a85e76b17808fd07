package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// Ingestion runs one ingestion pass.
type Ingestion interface {
	RunIngestion(ctx context.Context, horizonDays int) models.IngestionSummary
}

// Generation is the supervisor as seen by the trigger surface.
type Generation interface {
	RunScheduledGeneration(ctx context.Context) (models.GenerationSummary, error)
	RunEmergencySweep(ctx context.Context) (models.EmergencySummary, error)
	GenerateNow(ctx context.Context, gameID, agentID string) (*models.Prediction, error)
	AgentID() string
}

// StateReader exposes generation states for inspection.
type StateReader interface {
	Get(ctx context.Context, agentID, gameID string) (models.GenerationState, error)
	ListFailed(ctx context.Context, agentID string) ([]models.GenerationState, error)
}

// WorkQueue reports the pool backlog for readiness.
type WorkQueue interface {
	QueueDepth() int
}

// PostgresConn is satisfied by *pgxpool.Pool.
type PostgresConn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ClickHouseConn is satisfied by driver.Conn.
type ClickHouseConn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Config struct {
	Ingestion   Ingestion
	Generation  Generation
	States      StateReader
	WorkerPool  WorkQueue
	Postgres    PostgresConn
	ClickHouse  ClickHouseConn // nil when the journal is disabled
	Redis       RedisPinger
	Logger      *zap.Logger
	HorizonDays int
	// MigrationsDir holds postgres/ and clickhouse/ schema files.
	MigrationsDir string
}

type Handler struct {
	ingestion     Ingestion
	generation    Generation
	states        StateReader
	pool          WorkQueue
	pg            PostgresConn
	ch            ClickHouseConn
	redis         RedisPinger
	logger        *zap.SugaredLogger
	validator     *validator.Validate
	horizonDays   int
	migrationsDir string
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 3
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	return &Handler{
		ingestion:     cfg.Ingestion,
		generation:    cfg.Generation,
		states:        cfg.States,
		pool:          cfg.WorkerPool,
		pg:            cfg.Postgres,
		ch:            cfg.ClickHouse,
		redis:         cfg.Redis,
		logger:        cfg.Logger.Sugar(),
		validator:     validator.New(),
		horizonDays:   cfg.HorizonDays,
		migrationsDir: cfg.MigrationsDir,
	}
}
