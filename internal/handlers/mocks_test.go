package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/badbeats/pickgen/internal/models"
)

// MockIngestion
type MockIngestion struct {
	RunIngestionFunc func(ctx context.Context, horizonDays int) models.IngestionSummary
}

func (m *MockIngestion) RunIngestion(ctx context.Context, horizonDays int) models.IngestionSummary {
	if m.RunIngestionFunc != nil {
		return m.RunIngestionFunc(ctx, horizonDays)
	}
	return models.IngestionSummary{Status: "success", Errors: []string{}}
}

// MockGeneration
type MockGeneration struct {
	RunScheduledGenerationFunc func(ctx context.Context) (models.GenerationSummary, error)
	RunEmergencySweepFunc      func(ctx context.Context) (models.EmergencySummary, error)
	GenerateNowFunc            func(ctx context.Context, gameID, agentID string) (*models.Prediction, error)
}

func (m *MockGeneration) RunScheduledGeneration(ctx context.Context) (models.GenerationSummary, error) {
	if m.RunScheduledGenerationFunc != nil {
		return m.RunScheduledGenerationFunc(ctx)
	}
	return models.GenerationSummary{Late: []string{}, Skipped: []string{}}, nil
}

func (m *MockGeneration) RunEmergencySweep(ctx context.Context) (models.EmergencySummary, error) {
	if m.RunEmergencySweepFunc != nil {
		return m.RunEmergencySweepFunc(ctx)
	}
	return models.EmergencySummary{Scheduled: []string{}}, nil
}

func (m *MockGeneration) GenerateNow(ctx context.Context, gameID, agentID string) (*models.Prediction, error) {
	if m.GenerateNowFunc != nil {
		return m.GenerateNowFunc(ctx, gameID, agentID)
	}
	return &models.Prediction{GameID: gameID, AgentID: agentID}, nil
}

func (m *MockGeneration) AgentID() string { return "simple-llm-v1" }

// MockStates
type MockStates struct {
	GetFunc        func(ctx context.Context, agentID, gameID string) (models.GenerationState, error)
	ListFailedFunc func(ctx context.Context, agentID string) ([]models.GenerationState, error)
}

func (m *MockStates) Get(ctx context.Context, agentID, gameID string) (models.GenerationState, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, agentID, gameID)
	}
	return models.GenerationState{}, nil
}

func (m *MockStates) ListFailed(ctx context.Context, agentID string) ([]models.GenerationState, error) {
	if m.ListFailedFunc != nil {
		return m.ListFailedFunc(ctx, agentID)
	}
	return nil, nil
}

type MockQueue struct{ depth int }

func (m *MockQueue) QueueDepth() int { return m.depth }

// MockPostgres implements PostgresConn
type MockPostgres struct {
	PingErr  error
	ExecFunc func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	executed []string
}

func (m *MockPostgres) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockPostgres) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.executed = append(m.executed, sql)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// MockClickHouseConn implements ClickHouseConn
type MockClickHouseConn struct {
	PingErr  error
	ExecErr  error
	executed []string
}

func (m *MockClickHouseConn) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...any) error {
	m.executed = append(m.executed, query)
	return m.ExecErr
}

// MockRedis implements RedisPinger
type MockRedis struct {
	PingErr error
}

func (m *MockRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.PingErr)
}
