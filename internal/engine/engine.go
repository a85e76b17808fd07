// Package engine implements prediction engines backed by hosted language
// models.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
)

const (
	DefaultAgentID     = "simple-llm-v1"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1024
)

// Default models per provider.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku-latest",
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	AgentID     string
	Temperature float64
	MaxTokens   int64
	Logger      *zap.Logger
}

// completer is one round trip to a hosted model.
type completer interface {
	complete(ctx context.Context, system, prompt string) (string, error)
}

// LLM is a prediction engine that prompts a language model with the game
// context and parses its JSON answer.
type LLM struct {
	name      string
	model     string
	c         completer
	validator *validator.Validate
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// New builds the engine for cfg.Provider ("openai" or "anthropic").
func New(cfg Config) (*LLM, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing engine api key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[provider]
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var c completer
	switch provider {
	case "openai":
		c = newOpenAI(cfg)
	case "anthropic":
		c = newAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine provider %q", cfg.Provider)
	}
	return newLLM(cfg, c), nil
}

func newLLM(cfg Config, c completer) *LLM {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AgentID == "" {
		cfg.AgentID = DefaultAgentID
	}
	return &LLM{
		name:      cfg.AgentID,
		model:     cfg.Model,
		c:         c,
		validator: validator.New(),
		logger:    cfg.Logger.Sugar(),
		now:       time.Now,
	}
}

// Name is the agent id predictions are stored under.
func (e *LLM) Name() string { return e.name }

// Predict asks the model for a pick. Confidence is returned uncalibrated.
func (e *LLM) Predict(ctx context.Context, gc *models.GameContext) (*models.EngineResult, error) {
	if gc == nil {
		return nil, errors.New("nil game context")
	}
	start := e.now()
	text, err := e.c.complete(ctx, systemPrompt, BuildPrompt(gc))
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", e.model, err)
	}

	result, err := ParseResult(text)
	if err != nil {
		e.logger.Warnw("Unparsable engine answer", "game_id", gc.Game.ID, "model", e.model, "answer", truncate(text, 200))
		return nil, err
	}
	if err := e.validator.Struct(result); err != nil {
		return nil, fmt.Errorf("invalid engine answer: %w", err)
	}

	e.logger.Infow("Engine answered", "game_id", gc.Game.ID, "model", e.model, "pick", result.Pick, "duration", time.Since(start))
	return result, nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
