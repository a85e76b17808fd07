package logic

import (
	"context"
	"time"

	"github.com/badbeats/pickgen/internal/models"
)

// GameSource is the upstream game-data provider.
type GameSource interface {
	ListUpcomingGames(ctx context.Context, daysAhead int) ([]models.Game, error)
	GetTeamStats(ctx context.Context, teamID, season int) (*models.TeamStats, error)
}

// NewsSource provides unstructured team context.
type NewsSource interface {
	GetRecentNews(ctx context.Context, teamName string, days int) ([]models.Article, error)
	GetInjuryReport(ctx context.Context, teamName string) ([]models.InjuryEntry, error)
}

// Engine turns a GameContext into a pick.
type Engine interface {
	Name() string
	Predict(ctx context.Context, gc *models.GameContext) (*models.EngineResult, error)
}

// Store persists games and predictions.
// FindPrediction returns store.ErrNotFound when nothing exists and
// CreatePrediction returns store.ErrDuplicate on an (agent, game) conflict.
type Store interface {
	UpsertGame(ctx context.Context, g *models.Game) error
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	FindPrediction(ctx context.Context, agentID, gameID string) (*models.Prediction, error)
	CreatePrediction(ctx context.Context, p *models.Prediction) error
	ListDueCandidateGames(ctx context.Context, now time.Time) ([]models.Game, error)
}

// StateStore holds GenerationState with compare-and-set transitions.
// A game without a stored state is PENDING with zero attempts.
type StateStore interface {
	Get(ctx context.Context, agentID, gameID string) (models.GenerationState, error)
	Snapshot(ctx context.Context, agentID string, gameIDs []string) (map[string]models.GenerationState, error)
	// Transition stores next only if the current status is one of from.
	// It reports whether the swap happened. The Emergency flag is left
	// untouched; only ReserveEmergency sets it.
	Transition(ctx context.Context, from []models.GenerationStatus, next models.GenerationState) (bool, error)
	// ReserveEmergency marks the one emergency attempt of a game as used.
	// It returns false if it was already used.
	ReserveEmergency(ctx context.Context, agentID, gameID string) (bool, error)
	ListFailed(ctx context.Context, agentID string) ([]models.GenerationState, error)
}

// Job is a unit of work accepted by a WorkQueue.
type Job interface {
	Key() string
	Run(ctx context.Context)
}

// WorkQueue runs jobs asynchronously.
type WorkQueue interface {
	Submit(job Job) bool
	ScheduleAt(job Job, at time.Time) bool
}

// Journal records generation attempts for later analysis.
type Journal interface {
	Record(a models.Attempt)
}

// Clock abstracts time for the supervisor.
type Clock func() time.Time

type nopJournal struct{}

func (nopJournal) Record(models.Attempt) {}

// NopJournal discards every attempt.
var NopJournal Journal = nopJournal{}
