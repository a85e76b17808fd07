package models

import "time"

// GameStatus is the lifecycle status of a game as reported upstream.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameFinal     GameStatus = "final"
	GameUnknown   GameStatus = "unknown"
)

// Game is an upcoming or past game tracked by the scheduler.
type Game struct {
	ID           string     `json:"id" validate:"required"`
	StartTime    time.Time  `json:"start_time"`
	HomeTeamID   int        `json:"home_team_id" validate:"required,gt=0"`
	HomeTeamName string     `json:"home_team_name" validate:"required"`
	AwayTeamID   int        `json:"away_team_id" validate:"required,gt=0,nefield=HomeTeamID"`
	AwayTeamName string     `json:"away_team_name" validate:"required"`
	Status       GameStatus `json:"status" validate:"oneof=scheduled final unknown"`
	Season       int        `json:"season"`
	// IngestedAt is when the game was first stored. Upserts never move it.
	IngestedAt time.Time `json:"ingested_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SeasonFor returns the season year a game starting at t belongs to.
// Seasons start in the autumn, so anything before July counts toward the
// previous year's season.
func SeasonFor(t time.Time) int {
	if t.Month() >= time.July {
		return t.Year()
	}
	return t.Year() - 1
}

// TeamStats holds per-game averages for a team over its most recent games.
type TeamStats struct {
	TeamID      int     `json:"team_id"`
	Season      int     `json:"season"`
	GamesPlayed int     `json:"games_played" validate:"gte=0"`
	Points      float64 `json:"points" validate:"gte=0"`
	Rebounds    float64 `json:"rebounds" validate:"gte=0"`
	Assists     float64 `json:"assists" validate:"gte=0"`
}

// Article is a news item mentioning a team.
type Article struct {
	Title       string    `json:"title" validate:"required"`
	URL         string    `json:"url" validate:"required,url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}

// InjuryEntry is a single line of a team's injury report.
type InjuryEntry struct {
	Team        string    `json:"team" validate:"required"`
	Player      string    `json:"player" validate:"required"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	ReportedAt  time.Time `json:"reported_at"`
}
