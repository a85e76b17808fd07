package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/badbeats/pickgen/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

const gameColumns = `id, start_time, home_team_id, home_team_name, away_team_id, away_team_name, status, season, ingested_at, updated_at`

// Postgres stores games and predictions.
type Postgres struct {
	pool PgPool
}

func NewPostgres(pool PgPool) *Postgres {
	return &Postgres{pool: pool}
}

// UpsertGame inserts or updates a game by ID. ingested_at keeps the value
// from the first insert.
func (p *Postgres) UpsertGame(ctx context.Context, g *models.Game) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO games (`+gameColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			home_team_id = EXCLUDED.home_team_id,
			home_team_name = EXCLUDED.home_team_name,
			away_team_id = EXCLUDED.away_team_id,
			away_team_name = EXCLUDED.away_team_name,
			status = EXCLUDED.status,
			season = EXCLUDED.season,
			updated_at = EXCLUDED.updated_at`,
		g.ID, g.StartTime, g.HomeTeamID, g.HomeTeamName, g.AwayTeamID, g.AwayTeamName,
		string(g.Status), g.Season, g.IngestedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}
	return nil
}

func (p *Postgres) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get game %s: %w", gameID, err)
	}
	return g, nil
}

// ListDueCandidateGames returns every non-final game that has not started
// yet, earliest first.
func (p *Postgres) ListDueCandidateGames(ctx context.Context, now time.Time) ([]models.Game, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE status <> 'final' AND start_time > $1
		ORDER BY start_time, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list candidate games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func (p *Postgres) FindPrediction(ctx context.Context, agentID, gameID string) (*models.Prediction, error) {
	var pred models.Prediction
	err := p.pool.QueryRow(ctx, `
		SELECT id, agent_id, game_id, pick, logic, confidence, result, created_at
		FROM predictions
		WHERE agent_id = $1 AND game_id = $2`, agentID, gameID).
		Scan(&pred.ID, &pred.AgentID, &pred.GameID, &pred.Pick, &pred.Logic, &pred.Confidence, &pred.Result, &pred.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find prediction %s/%s: %w", agentID, gameID, err)
	}
	return &pred, nil
}

// CreatePrediction inserts a prediction. A second prediction for the same
// (agent, game) pair fails with ErrDuplicate.
func (p *Postgres) CreatePrediction(ctx context.Context, pred *models.Prediction) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO predictions (id, agent_id, game_id, pick, logic, confidence, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pred.ID, pred.AgentID, pred.GameID, pred.Pick, pred.Logic, pred.Confidence, pred.Result, pred.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("create prediction %s/%s: %w", pred.AgentID, pred.GameID, err)
	}
	return nil
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var (
		g      models.Game
		status string
	)
	if err := row.Scan(
		&g.ID, &g.StartTime, &g.HomeTeamID, &g.HomeTeamName, &g.AwayTeamID, &g.AwayTeamName,
		&status, &g.Season, &g.IngestedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.Status = models.GameStatus(status)
	return &g, nil
}
