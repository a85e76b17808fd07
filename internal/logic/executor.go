package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
	"github.com/badbeats/pickgen/internal/store"
)

// ContextBuilder builds the GameContext for one attempt.
type ContextBuilder interface {
	BuildContext(ctx context.Context, gameID string) (*models.GameContext, error)
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Store   Store
	Builder ContextBuilder
	Engine  Engine
	Logger  *zap.Logger
	Now     Clock
}

// Executor runs one idempotent generation for an (agent, game) pair.
type Executor struct {
	store     Store
	builder   ContextBuilder
	engine    Engine
	validator *validator.Validate
	logger    *zap.SugaredLogger
	now       Clock
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Executor{
		store:     cfg.Store,
		builder:   cfg.Builder,
		engine:    cfg.Engine,
		validator: validator.New(),
		logger:    cfg.Logger.Sugar(),
		now:       cfg.Now,
	}
}

// Generate returns the prediction for (agentID, gameID), creating it if it
// does not exist yet. Nothing is persisted unless the whole pipeline
// succeeds.
func (e *Executor) Generate(ctx context.Context, gameID, agentID string) (*models.Prediction, error) {
	existing, err := e.store.FindPrediction(ctx, agentID, gameID)
	switch {
	case err == nil:
		e.logger.Infow("Prediction already exists, skipping", "game_id", gameID, "agent_id", agentID)
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, &StorageError{Op: "find prediction", Err: err}
	}

	gc, err := e.builder.BuildContext(ctx, gameID)
	if err != nil {
		return nil, err
	}

	result, err := e.engine.Predict(ctx, gc)
	if err != nil {
		return nil, &EngineError{Engine: e.engine.Name(), Err: err}
	}
	if result == nil {
		return nil, &EngineError{Engine: e.engine.Name(), Err: errors.New("empty result")}
	}
	if err := e.validator.Struct(result); err != nil {
		return nil, &EngineError{Engine: e.engine.Name(), Err: fmt.Errorf("invalid result: %w", err)}
	}

	pred := &models.Prediction{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		GameID:     gameID,
		Pick:       strings.TrimSpace(result.Pick),
		Logic:      strings.TrimSpace(result.Logic),
		Confidence: Calibrate(result.Confidence),
		Result:     models.ResultPending,
		CreatedAt:  e.now().UTC(),
	}

	if err := e.store.CreatePrediction(ctx, pred); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Another path completed the game between our lookup and insert.
			winner, ferr := e.store.FindPrediction(ctx, agentID, gameID)
			if ferr != nil {
				return nil, &StorageError{Op: "find prediction after conflict", Err: ferr}
			}
			e.logger.Infow("Lost creation race, returning stored prediction", "game_id", gameID, "agent_id", agentID)
			return winner, nil
		}
		return nil, &StorageError{Op: "create prediction", Err: err}
	}

	e.logger.Infow("Prediction created",
		"game_id", gameID,
		"agent_id", agentID,
		"pick", pred.Pick,
		"raw_confidence", result.Confidence,
		"confidence", pred.Confidence,
		"degraded", gc.Degraded(),
	)
	return pred, nil
}
