package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/badbeats/pickgen/internal/models"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Store        Store
	Games        GameSource
	News         NewsSource
	FetchTimeout time.Duration
	NewsDays     int
	Logger       *zap.Logger
	Now          Clock
}

// Aggregator builds GameContexts from the game and news collaborators.
type Aggregator struct {
	store        Store
	games        GameSource
	news         NewsSource
	fetchTimeout time.Duration
	newsDays     int
	logger       *zap.SugaredLogger
	now          Clock
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.NewsDays <= 0 {
		cfg.NewsDays = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Aggregator{
		store:        cfg.Store,
		games:        cfg.Games,
		news:         cfg.News,
		fetchTimeout: cfg.FetchTimeout,
		newsDays:     cfg.NewsDays,
		logger:       cfg.Logger.Sugar(),
		now:          cfg.Now,
	}
}

// teamText is the outcome of one team's news+injuries fetch.
type teamText struct {
	news        models.NewsSlot
	injuries    models.InjurySlot
	newsErr     error
	injuriesErr error
}

func (t teamText) failed() bool {
	return t.newsErr != nil && t.injuriesErr != nil
}

// BuildContext gathers stats, news and injuries for both teams of a game.
// Individual fetch failures degrade the context; only a failed game lookup
// or the failure of every fetch returns an AggregationError.
func (a *Aggregator) BuildContext(ctx context.Context, gameID string) (*models.GameContext, error) {
	game, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, &AggregationError{GameID: gameID, Reason: "game lookup", Err: err}
	}

	season := game.Season
	if season == 0 {
		season = models.SeasonFor(game.StartTime)
	}

	var (
		homeStats, awayStats       models.StatsSlot
		homeStatsErr, awayStatsErr error
		homeText, awayText         teamText
	)

	g, gctx := errgroup.WithContext(ctx)

	// Every branch returns nil: a failed fetch must not cancel its siblings.
	g.Go(func() error {
		homeStats, homeStatsErr = a.fetchStats(gctx, game.HomeTeamID, season)
		return nil
	})
	g.Go(func() error {
		awayStats, awayStatsErr = a.fetchStats(gctx, game.AwayTeamID, season)
		return nil
	})
	g.Go(func() error {
		homeText = a.fetchTeamText(gctx, game.HomeTeamName)
		return nil
	})
	g.Go(func() error {
		awayText = a.fetchTeamText(gctx, game.AwayTeamName)
		return nil
	})
	_ = g.Wait()

	if homeStatsErr != nil && awayStatsErr != nil && homeText.failed() && awayText.failed() {
		return nil, &AggregationError{
			GameID: gameID,
			Reason: "every context source failed",
			Err:    errors.Join(homeStatsErr, awayStatsErr, homeText.newsErr, homeText.injuriesErr, awayText.newsErr, awayText.injuriesErr),
		}
	}

	gc := &models.GameContext{
		Game: *game,
		Structured: models.StructuredData{
			HomeStats: homeStats,
			AwayStats: awayStats,
		},
		Unstructured: models.UnstructuredData{
			HomeNews:     homeText.news,
			AwayNews:     awayText.news,
			HomeInjuries: homeText.injuries,
			AwayInjuries: awayText.injuries,
		},
		Manifest: []string{},
		BuiltAt:  a.now(),
	}

	for _, f := range []struct {
		entry string
		err   error
	}{
		{models.ManifestHomeStatsFailed, homeStatsErr},
		{models.ManifestAwayStatsFailed, awayStatsErr},
		{models.ManifestHomeNewsFailed, homeText.newsErr},
		{models.ManifestHomeInjuriesFailed, homeText.injuriesErr},
		{models.ManifestAwayNewsFailed, awayText.newsErr},
		{models.ManifestAwayInjuriesFailed, awayText.injuriesErr},
	} {
		if f.err == nil {
			continue
		}
		gc.Manifest = append(gc.Manifest, f.entry)
		aggregationPartial.WithLabelValues(f.entry).Inc()
		a.logger.Warnw("Context slot unavailable", "game_id", gameID, "slot", f.entry, "error", f.err)
	}

	return gc, nil
}

func (a *Aggregator) fetchStats(ctx context.Context, teamID, season int) (models.StatsSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	stats, err := a.games.GetTeamStats(ctx, teamID, season)
	if err != nil {
		return models.StatsSlot{}, fmt.Errorf("team %d stats: %w", teamID, err)
	}
	if stats == nil {
		return models.StatsSlot{}, fmt.Errorf("team %d stats: empty response", teamID)
	}
	return models.StatsSlot{Available: true, Stats: stats}, nil
}

// fetchTeamText loads news and injuries for one team concurrently under a
// single fetch timeout.
func (a *Aggregator) fetchTeamText(ctx context.Context, teamName string) teamText {
	ctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	var out teamText
	var g errgroup.Group

	g.Go(func() error {
		articles, err := a.news.GetRecentNews(ctx, teamName, a.newsDays)
		if err != nil {
			out.newsErr = fmt.Errorf("%s news: %w", teamName, err)
			return nil
		}
		out.news = models.NewsSlot{Available: true, Articles: articles}
		return nil
	})
	g.Go(func() error {
		entries, err := a.news.GetInjuryReport(ctx, teamName)
		if err != nil {
			out.injuriesErr = fmt.Errorf("%s injuries: %w", teamName, err)
			return nil
		}
		out.injuries = models.InjurySlot{Available: true, Entries: entries}
		return nil
	})
	_ = g.Wait()

	return out
}
