package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
)

const (
	IngestionSuccess = "success"
	IngestionPartial = "partial"
	IngestionFailed  = "error"
)

// Ingestor pulls upcoming games from the game-data source into the store.
type Ingestor struct {
	store     Store
	games     GameSource
	validator *validator.Validate
	logger    *zap.SugaredLogger
	now       Clock
}

func NewIngestor(store Store, games GameSource, logger *zap.Logger, now Clock) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		store:     store,
		games:     games,
		validator: validator.New(),
		logger:    logger.Sugar(),
		now:       now,
	}
}

// RunIngestion upserts every game starting within horizonDays. A bad record
// is logged and skipped; only a failed upstream listing fails the run.
func (i *Ingestor) RunIngestion(ctx context.Context, horizonDays int) models.IngestionSummary {
	now := i.now().UTC()
	summary := models.IngestionSummary{
		Status:    IngestionSuccess,
		Errors:    []string{},
		Timestamp: now,
	}

	games, err := i.games.ListUpcomingGames(ctx, horizonDays)
	if err != nil {
		i.logger.Errorw("Failed to list upcoming games", "horizon_days", horizonDays, "error", err)
		summary.Status = IngestionFailed
		summary.Errors = append(summary.Errors, err.Error())
		return summary
	}

	for idx := range games {
		g := games[idx]
		if err := i.ingestOne(ctx, &g, now); err != nil {
			ingestionErrors.Inc()
			i.logger.Warnw("Skipping game record", "game_id", g.ID, "error", err)
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		gamesIngested.Inc()
		summary.Count++
	}

	if len(summary.Errors) > 0 {
		summary.Status = IngestionPartial
	}

	i.logger.Infow("Ingestion finished",
		"status", summary.Status,
		"count", summary.Count,
		"errors", len(summary.Errors),
		"horizon_days", horizonDays,
	)
	return summary
}

func (i *Ingestor) ingestOne(ctx context.Context, g *models.Game, now time.Time) error {
	if g.Status == "" {
		g.Status = models.GameUnknown
	}
	if err := i.validator.Struct(g); err != nil {
		return &IngestionError{GameID: g.ID, Err: fmt.Errorf("invalid record: %w", err)}
	}
	if g.StartTime.IsZero() {
		return &IngestionError{GameID: g.ID, Err: fmt.Errorf("missing start time")}
	}
	if g.Season == 0 {
		g.Season = models.SeasonFor(g.StartTime)
	}
	g.StartTime = g.StartTime.UTC()
	// The store keeps the first IngestedAt it saw for a game.
	g.IngestedAt = now
	g.UpdatedAt = now

	if err := i.store.UpsertGame(ctx, g); err != nil {
		return &IngestionError{GameID: g.ID, Err: &StorageError{Op: "upsert game", Err: err}}
	}
	return nil
}
