// Package news implements the unstructured context source: team news from
// RSS feeds and the league injury report.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/badbeats/pickgen/internal/cache"
	"github.com/badbeats/pickgen/internal/clients"
	"github.com/badbeats/pickgen/internal/models"
)

const (
	DefaultInjuryURL = "https://site.api.espn.com/apis/site/v2/sports/basketball/nba/injuries"
	DefaultCacheTTL  = time.Hour
	DefaultSeenTTL   = 7 * 24 * time.Hour
)

// Feed is one RSS source.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds are the NBA feeds used when none are configured.
var DefaultFeeds = []Feed{
	{Name: "espn", URL: "https://www.espn.com/espn/rss/nba/news"},
	{Name: "bleacher_report", URL: "https://bleacherreport.com/articles/feed?tag_id=19"},
}

// Config configures a Client.
type Config struct {
	Feeds         []Feed
	InjuryURL     string
	Cache         cache.Cache
	CacheTTL      time.Duration
	SeenTTL       time.Duration
	RatePerMinute int
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Now           func() time.Time
}

// Client fetches and filters team news and injuries.
type Client struct {
	feeds     []Feed
	injuryURL string
	cache     cache.Cache
	cacheTTL  time.Duration
	seenTTL   time.Duration
	fetch     *clients.Fetcher
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func New(cfg Config) *Client {
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = DefaultFeeds
	}
	if cfg.InjuryURL == "" {
		cfg.InjuryURL = DefaultInjuryURL
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(0)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = DefaultSeenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		feeds:     cfg.Feeds,
		injuryURL: cfg.InjuryURL,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		seenTTL:   cfg.SeenTTL,
		fetch: clients.NewFetcher(clients.FetcherConfig{
			Name:          "news",
			Client:        cfg.HTTPClient,
			Headers:       map[string]string{"User-Agent": "pickgen/1.0"},
			RatePerMinute: cfg.RatePerMinute,
			Logger:        cfg.Logger,
		}),
		logger: cfg.Logger.Sugar(),
		now:    cfg.Now,
	}
}

// GetRecentNews returns articles from the last days that mention teamName,
// newest first. Undated articles are kept. It fails only when every feed
// fails.
func (c *Client) GetRecentNews(ctx context.Context, teamName string, days int) ([]models.Article, error) {
	var (
		mu       sync.Mutex
		all      []models.Article
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range c.feeds {
		f := f
		g.Go(func() error {
			articles, err := c.feed(gctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warnw("News feed unavailable", "feed", f.Name, "error", err)
				failures = append(failures, err)
				return nil
			}
			all = append(all, articles...)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == len(c.feeds) {
		return nil, fmt.Errorf("all news feeds failed: %w", errors.Join(failures...))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)
	seen := make(map[string]bool, len(all))
	out := make([]models.Article, 0)
	for _, a := range all {
		if seen[a.URL] {
			continue
		}
		if !Mentions(a.Title, teamName) && !Mentions(a.Summary, teamName) {
			continue
		}
		if days > 0 && !a.PublishedAt.IsZero() && a.PublishedAt.Before(cutoff) {
			continue
		}
		seen[a.URL] = true
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out, nil
}

// feed returns the parsed articles of one feed, cached for cacheTTL.
func (c *Client) feed(ctx context.Context, f Feed) ([]models.Article, error) {
	key := "feed:" + f.URL
	if cached, ok, err := cache.GetJSON[[]models.Article](ctx, c.cache, key); err != nil {
		c.logger.Warnw("Feed cache read failed", "feed", f.Name, "error", err)
	} else if ok {
		return cached, nil
	}

	body, err := c.fetch.Get(ctx, f.URL)
	if err != nil {
		return nil, err
	}
	articles, err := parseRSS(body, f.Name)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		if articles[i].PublishedAt.IsZero() {
			articles[i].PublishedAt = c.firstSeen(ctx, articles[i].URL)
		}
	}

	if err := cache.SetJSON(ctx, c.cache, key, articles, c.cacheTTL); err != nil {
		c.logger.Warnw("Feed cache write failed", "feed", f.Name, "error", err)
	}
	return articles, nil
}

// firstSeen records when url was first observed and returns that time.
// A zero time means the seen set could not be consulted.
func (c *Client) firstSeen(ctx context.Context, url string) time.Time {
	key := "seen:" + url
	now := c.now().UTC()
	stamp := []byte(now.Format(time.RFC3339))
	set, err := c.cache.SetNX(ctx, key, stamp, c.seenTTL)
	if err != nil {
		return time.Time{}
	}
	if set {
		return now
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}

type injuryReport struct {
	Injuries []struct {
		DisplayName string `json:"displayName"`
		Injuries    []struct {
			Status       string `json:"status"`
			ShortComment string `json:"shortComment"`
			LongComment  string `json:"longComment"`
			Date         string `json:"date"`
			Athlete      struct {
				DisplayName string `json:"displayName"`
			} `json:"athlete"`
		} `json:"injuries"`
	} `json:"injuries"`
}

// GetInjuryReport returns the current injury entries for teamName. A team
// with no listed injuries yields an empty slice.
func (c *Client) GetInjuryReport(ctx context.Context, teamName string) ([]models.InjuryEntry, error) {
	all, err := c.injuries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.InjuryEntry, 0)
	for _, e := range all {
		if Mentions(e.Team, teamName) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) injuries(ctx context.Context) ([]models.InjuryEntry, error) {
	key := "injuries:" + c.injuryURL
	if cached, ok, err := cache.GetJSON[[]models.InjuryEntry](ctx, c.cache, key); err == nil && ok {
		return cached, nil
	}

	body, err := c.fetch.Get(ctx, c.injuryURL)
	if err != nil {
		return nil, err
	}
	var report injuryReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode injury report: %w", err)
	}

	var entries []models.InjuryEntry
	for _, team := range report.Injuries {
		for _, inj := range team.Injuries {
			player := strings.TrimSpace(inj.Athlete.DisplayName)
			if player == "" {
				continue
			}
			desc := inj.ShortComment
			if desc == "" {
				desc = inj.LongComment
			}
			reported, _ := time.Parse(time.RFC3339, inj.Date)
			if reported.IsZero() {
				reported, _ = time.Parse("2006-01-02T15:04Z", inj.Date)
			}
			entries = append(entries, models.InjuryEntry{
				Team:        team.DisplayName,
				Player:      player,
				Status:      inj.Status,
				Description: Clean(desc),
				ReportedAt:  reported.UTC(),
			})
		}
	}

	if err := cache.SetJSON(ctx, c.cache, key, entries, c.cacheTTL); err != nil {
		c.logger.Warnw("Injury cache write failed", "error", err)
	}
	return entries, nil
}
