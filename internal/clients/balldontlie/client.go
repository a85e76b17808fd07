// Package balldontlie implements the game-data source on top of the
// balldontlie NBA API.
package balldontlie

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/clients"
	"github.com/badbeats/pickgen/internal/models"
)

const (
	DefaultBaseURL = "https://api.balldontlie.io/v1"
	perPage        = 100
	recentGames    = 5
	maxPages       = 50
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIKey        string
	RatePerMinute int
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Now           func() time.Time
}

// Client talks to the balldontlie API.
type Client struct {
	baseURL   string
	fetch     *clients.Fetcher
	validator *validator.Validate
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = cfg.APIKey
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetch: clients.NewFetcher(clients.FetcherConfig{
			Name:          "balldontlie",
			Client:        cfg.HTTPClient,
			Headers:       headers,
			RatePerMinute: cfg.RatePerMinute,
			Logger:        cfg.Logger,
		}),
		validator: validator.New(),
		logger:    cfg.Logger.Sugar(),
		now:       cfg.Now,
	}
}

type team struct {
	ID       int    `json:"id" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
}

type game struct {
	ID          int    `json:"id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Datetime    string `json:"datetime"`
	Season      int    `json:"season"`
	Status      string `json:"status"`
	HomeTeam    team   `json:"home_team"`
	VisitorTeam team   `json:"visitor_team"`
}

type stat struct {
	Pts  float64 `json:"pts"`
	Reb  float64 `json:"reb"`
	Ast  float64 `json:"ast"`
	Team struct {
		ID int `json:"id"`
	} `json:"team"`
	Game struct {
		ID int `json:"id"`
	} `json:"game"`
}

type page[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		NextCursor *int `json:"next_cursor"`
	} `json:"meta"`
}

// list walks every page of a cursor-paginated endpoint.
func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	q.Set("per_page", strconv.Itoa(perPage))

	var out []T
	for i := 0; i < maxPages; i++ {
		body, err := c.fetch.Get(ctx, c.baseURL+path+"?"+q.Encode())
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, p.Data...)
		if p.Meta.NextCursor == nil {
			return out, nil
		}
		q.Set("cursor", strconv.Itoa(*p.Meta.NextCursor))
	}
	c.logger.Warnw("Pagination limit reached", "path", path, "pages", maxPages)
	return out, nil
}

// ListUpcomingGames returns games from today through daysAhead days out.
func (c *Client) ListUpcomingGames(ctx context.Context, daysAhead int) ([]models.Game, error) {
	today := c.now().UTC()
	q := url.Values{}
	q.Set("start_date", today.Format("2006-01-02"))
	q.Set("end_date", today.AddDate(0, 0, daysAhead).Format("2006-01-02"))

	raw, err := list[game](ctx, c, "/games", q)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	games := make([]models.Game, 0, len(raw))
	for _, g := range raw {
		// Invalid records still go to the ingestor, which skips and reports them.
		if err := c.validator.Struct(g); err != nil {
			c.logger.Warnw("Malformed game record", "game_id", g.ID, "error", err)
		}
		games = append(games, toModel(g))
	}
	c.logger.Infow("Fetched upcoming games", "count", len(games), "days_ahead", daysAhead)
	return games, nil
}

func toModel(g game) models.Game {
	return models.Game{
		ID:           strconv.Itoa(g.ID),
		StartTime:    startTime(g),
		HomeTeamID:   g.HomeTeam.ID,
		HomeTeamName: g.HomeTeam.FullName,
		AwayTeamID:   g.VisitorTeam.ID,
		AwayTeamName: g.VisitorTeam.FullName,
		Status:       gameStatus(g.Status),
		Season:       g.Season,
	}
}

// startTime prefers the datetime field. Older records only carry a date,
// and scheduled games sometimes put the tip-off time in status.
func startTime(g game) time.Time {
	for _, s := range []string{g.Datetime, g.Status} {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func gameStatus(s string) models.GameStatus {
	switch {
	case strings.EqualFold(s, "Final"):
		return models.GameFinal
	case s == "":
		return models.GameUnknown
	case strings.HasPrefix(s, "Qtr"), strings.HasPrefix(s, "Half"), strings.HasPrefix(s, "OT"):
		// in progress; not schedulable any more
		return models.GameUnknown
	}
	return models.GameScheduled
}

// GetTeamStats averages points, rebounds and assists over the team's last
// five final games of the season. A team with no final games gets zeros.
func (c *Client) GetTeamStats(ctx context.Context, teamID, season int) (*models.TeamStats, error) {
	q := url.Values{}
	q.Add("team_ids[]", strconv.Itoa(teamID))
	q.Add("seasons[]", strconv.Itoa(season))
	q.Set("end_date", c.now().UTC().Format("2006-01-02"))

	raw, err := list[game](ctx, c, "/games", q)
	if err != nil {
		return nil, fmt.Errorf("team %d games: %w", teamID, err)
	}

	var finals []game
	for _, g := range raw {
		if gameStatus(g.Status) == models.GameFinal {
			finals = append(finals, g)
		}
	}
	sort.Slice(finals, func(i, j int) bool { return finals[i].Date > finals[j].Date })
	if len(finals) > recentGames {
		finals = finals[:recentGames]
	}

	out := &models.TeamStats{TeamID: teamID, Season: season}
	if len(finals) == 0 {
		return out, nil
	}

	sq := url.Values{}
	for _, g := range finals {
		sq.Add("game_ids[]", strconv.Itoa(g.ID))
	}
	stats, err := list[stat](ctx, c, "/stats", sq)
	if err != nil {
		return nil, fmt.Errorf("team %d box scores: %w", teamID, err)
	}

	type totals struct{ pts, reb, ast float64 }
	perGame := make(map[int]*totals)
	for _, s := range stats {
		if s.Team.ID != teamID {
			continue
		}
		t := perGame[s.Game.ID]
		if t == nil {
			t = &totals{}
			perGame[s.Game.ID] = t
		}
		t.pts += s.Pts
		t.reb += s.Reb
		t.ast += s.Ast
	}

	for _, t := range perGame {
		// box scores without points are incomplete
		if t.pts <= 0 {
			continue
		}
		out.Points += t.pts
		out.Rebounds += t.reb
		out.Assists += t.ast
		out.GamesPlayed++
	}
	if out.GamesPlayed > 0 {
		n := float64(out.GamesPlayed)
		out.Points /= n
		out.Rebounds /= n
		out.Assists /= n
	}
	return out, nil
}
