package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/logic"
	"github.com/badbeats/pickgen/internal/models"
	"github.com/badbeats/pickgen/internal/store"
)

func newTestHandler(gen *MockGeneration, states *MockStates) *Handler {
	if gen == nil {
		gen = &MockGeneration{}
	}
	if states == nil {
		states = &MockStates{}
	}
	return New(Config{
		Ingestion:  &MockIngestion{},
		Generation: gen,
		States:     states,
		WorkerPool: &MockQueue{depth: 3},
		Postgres:   &MockPostgres{},
		ClickHouse: &MockClickHouseConn{},
		Redis:      &MockRedis{},
		Logger:     zap.NewNop(),
	})
}

func do(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Routes([]string{"*"}).ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(newTestHandler(nil, nil), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %v", w.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		pg         error
		redis      error
		ch         *MockClickHouseConn
		wantStatus int
	}{
		{"all healthy", nil, nil, &MockClickHouseConn{}, http.StatusOK},
		{"postgres down", errors.New("refused"), nil, &MockClickHouseConn{}, http.StatusServiceUnavailable},
		{"redis down", nil, errors.New("refused"), &MockClickHouseConn{}, http.StatusServiceUnavailable},
		{"clickhouse down", nil, nil, &MockClickHouseConn{PingErr: errors.New("refused")}, http.StatusServiceUnavailable},
		{"clickhouse disabled", nil, nil, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Postgres:   &MockPostgres{PingErr: tt.pg},
				Redis:      &MockRedis{PingErr: tt.redis},
				WorkerPool: &MockQueue{depth: 2},
				Logger:     zap.NewNop(),
			}
			if tt.ch != nil {
				cfg.ClickHouse = tt.ch
			}
			h := New(cfg)

			w := httptest.NewRecorder()
			h.Ready(w, httptest.NewRequest("GET", "/ready", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}

			var body map[string]interface{}
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			checks := body["checks"].(map[string]interface{})
			if _, ok := checks["clickhouse"]; ok != (tt.ch != nil) {
				t.Errorf("clickhouse check presence = %v", ok)
			}
		})
	}
}

func TestTriggerIngestion(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		status     string
		wantDays   int
		wantStatus int
	}{
		{"default horizon", "", "success", 3, http.StatusOK},
		{"explicit horizon", `{"horizon_days": 7}`, "partial", 7, http.StatusOK},
		{"upstream down", "", "error", 3, http.StatusBadGateway},
		{"invalid horizon", `{"horizon_days": 500}`, "success", 0, http.StatusBadRequest},
		{"bad json", `{"horizon_days":`, "success", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDays int
			h := newTestHandler(nil, nil)
			h.ingestion = &MockIngestion{RunIngestionFunc: func(ctx context.Context, days int) models.IngestionSummary {
				gotDays = days
				return models.IngestionSummary{Status: tt.status, Errors: []string{}}
			}}

			w := do(h, "POST", "/v1/triggers/ingestion", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if gotDays != tt.wantDays {
				t.Errorf("horizon = %d, want %d", gotDays, tt.wantDays)
			}
		})
	}
}

func TestTriggerGeneration(t *testing.T) {
	gen := &MockGeneration{RunScheduledGenerationFunc: func(ctx context.Context) (models.GenerationSummary, error) {
		return models.GenerationSummary{Due: 2, Dispatched: 2, Late: []string{"9"}, Skipped: []string{}}, nil
	}}
	w := do(newTestHandler(gen, nil), "POST", "/v1/triggers/generation", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %v", w.Code)
	}
	var got models.GenerationSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Dispatched != 2 || len(got.Late) != 1 {
		t.Errorf("summary = %+v", got)
	}

	gen.RunScheduledGenerationFunc = func(ctx context.Context) (models.GenerationSummary, error) {
		return models.GenerationSummary{}, errors.New("store down")
	}
	if w := do(newTestHandler(gen, nil), "POST", "/v1/triggers/generation", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %v", w.Code)
	}
}

func TestTriggerEmergency(t *testing.T) {
	gen := &MockGeneration{RunEmergencySweepFunc: func(ctx context.Context) (models.EmergencySummary, error) {
		return models.EmergencySummary{Scheduled: []string{"101", "102"}}, nil
	}}
	w := do(newTestHandler(gen, nil), "POST", "/v1/triggers/emergency", "")
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), "102") {
		t.Errorf("status = %v body = %s", w.Code, w.Body.String())
	}
}

func TestGenerateGame(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantAgent  string
		wantStatus int
	}{
		{"default agent", "", nil, "", http.StatusOK},
		{"explicit agent", `{"agent_id":"other-v2"}`, nil, "other-v2", http.StatusOK},
		{"unknown game", "", &logic.AggregationError{GameID: "101", Reason: "game lookup", Err: store.ErrNotFound}, "", http.StatusNotFound},
		{"in progress", "", logic.ErrGenerationInProgress, "", http.StatusConflict},
		{"engine failure", "", &logic.EngineError{Engine: "simple-llm-v1", Err: errors.New("503")}, "", http.StatusBadGateway},
		{"storage failure", "", &logic.StorageError{Op: "create prediction", Err: errors.New("conn reset")}, "", http.StatusInternalServerError},
		{"agent too long", fmt.Sprintf(`{"agent_id":%q}`, strings.Repeat("x", 65)), nil, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotGame, gotAgent string
			gen := &MockGeneration{GenerateNowFunc: func(ctx context.Context, gameID, agentID string) (*models.Prediction, error) {
				gotGame, gotAgent = gameID, agentID
				if tt.err != nil {
					return nil, tt.err
				}
				return &models.Prediction{ID: "p1", GameID: gameID, AgentID: agentID, Pick: "Boston Celtics", Confidence: 0.7}, nil
			}}

			w := do(newTestHandler(gen, nil), "POST", "/v1/games/101/generate", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				return
			}
			if gotGame != "101" || gotAgent != tt.wantAgent {
				t.Errorf("called with %q/%q", gotGame, gotAgent)
			}
		})
	}
}

func TestGetGameState(t *testing.T) {
	states := &MockStates{GetFunc: func(ctx context.Context, agentID, gameID string) (models.GenerationState, error) {
		if gameID == "101" {
			return models.GenerationState{AgentID: agentID, GameID: gameID, Status: models.StatusFailed, Attempts: 3, LastError: "engine"}, nil
		}
		return models.GenerationState{}, nil
	}}
	h := newTestHandler(nil, states)

	w := do(h, "GET", "/v1/games/101/state", "")
	var st models.GenerationState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != http.StatusOK || st.Status != models.StatusFailed || st.Attempts != 3 {
		t.Errorf("state = %+v (%v)", st, w.Code)
	}

	w = do(h, "GET", "/v1/games/202/state?agent_id=other", "")
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != models.StatusPending || st.AgentID != "other" || st.GameID != "202" {
		t.Errorf("absent state = %+v", st)
	}

	states.GetFunc = func(ctx context.Context, agentID, gameID string) (models.GenerationState, error) {
		return models.GenerationState{}, errors.New("redis down")
	}
	if w := do(h, "GET", "/v1/games/101/state", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %v", w.Code)
	}
}

func TestListFailures(t *testing.T) {
	var gotAgent string
	states := &MockStates{ListFailedFunc: func(ctx context.Context, agentID string) ([]models.GenerationState, error) {
		gotAgent = agentID
		return nil, nil
	}}
	w := do(newTestHandler(nil, states), "GET", "/v1/failures", "")
	if w.Code != http.StatusOK || gotAgent != "simple-llm-v1" {
		t.Fatalf("status = %v agent = %s", w.Code, gotAgent)
	}
	if !strings.Contains(w.Body.String(), `"failures":[]`) {
		t.Errorf("empty list not rendered as []: %s", w.Body.String())
	}
}

func TestInstallDatabase(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("postgres/001_initial_schema.sql", "CREATE TABLE IF NOT EXISTS games (id TEXT);")
	mustWrite("clickhouse/001_initial_schema.sql", "CREATE DATABASE IF NOT EXISTS pickgen;\n\nCREATE TABLE t (a UInt8) ENGINE = Memory;\n")

	pg := &MockPostgres{}
	ch := &MockClickHouseConn{}
	h := New(Config{Postgres: pg, ClickHouse: ch, Logger: zap.NewNop(), MigrationsDir: dir})

	w := httptest.NewRecorder()
	h.InstallDatabase(w, httptest.NewRequest("POST", "/v1/system/install", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %v body = %s", w.Code, w.Body.String())
	}
	if len(pg.executed) != 1 || len(ch.executed) != 2 {
		t.Errorf("executed pg=%d ch=%d", len(pg.executed), len(ch.executed))
	}

	ch.ExecErr = errors.New("syntax error")
	w = httptest.NewRecorder()
	h.InstallDatabase(w, httptest.NewRequest("POST", "/v1/system/install", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %v", w.Code)
	}
}

func TestInstallDatabaseBundledSchema(t *testing.T) {
	h := New(Config{Postgres: &MockPostgres{}, Logger: zap.NewNop(), MigrationsDir: filepath.Join("..", "..", "migrations")})
	w := httptest.NewRecorder()
	h.InstallDatabase(w, httptest.NewRequest("POST", "/v1/system/install", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"clickhouse":"skipped"`) {
		t.Errorf("status = %v body = %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(newTestHandler(nil, nil), "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %v", w.Code)
	}
}
