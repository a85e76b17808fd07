package logic

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/badbeats/pickgen/internal/models"
	"github.com/badbeats/pickgen/internal/store"
)

// fakeClock is a settable clock shared by a test and the code under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// MockStore is an in-memory Store. Func fields override the default
// behaviour for a single method.
type MockStore struct {
	mu          sync.Mutex
	games       map[string]models.Game
	predictions map[string]models.Prediction
	creates     int

	UpsertGameFunc       func(ctx context.Context, g *models.Game) error
	FindPredictionFunc   func(ctx context.Context, agentID, gameID string) (*models.Prediction, error)
	CreatePredictionFunc func(ctx context.Context, p *models.Prediction) error
}

func NewMockStore(games ...models.Game) *MockStore {
	s := &MockStore{games: map[string]models.Game{}, predictions: map[string]models.Prediction{}}
	for _, g := range games {
		s.games[g.ID] = g
	}
	return s
}

func (m *MockStore) UpsertGame(ctx context.Context, g *models.Game) error {
	if m.UpsertGameFunc != nil {
		return m.UpsertGameFunc(ctx, g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *g
	if prev, ok := m.games[g.ID]; ok && !prev.IngestedAt.IsZero() {
		stored.IngestedAt = prev.IngestedAt
	}
	m.games[g.ID] = stored
	return nil
}

func (m *MockStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (m *MockStore) FindPrediction(ctx context.Context, agentID, gameID string) (*models.Prediction, error) {
	if m.FindPredictionFunc != nil {
		return m.FindPredictionFunc(ctx, agentID, gameID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.predictions[agentID+"/"+gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *MockStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	if m.CreatePredictionFunc != nil {
		return m.CreatePredictionFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.AgentID + "/" + p.GameID
	if _, ok := m.predictions[key]; ok {
		return store.ErrDuplicate
	}
	m.predictions[key] = *p
	m.creates++
	return nil
}

func (m *MockStore) ListDueCandidateGames(ctx context.Context, now time.Time) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Game
	for _, g := range m.games {
		if g.Status != models.GameFinal && g.StartTime.After(now) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) predictionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.predictions)
}

// MockGameSource
type MockGameSource struct {
	ListUpcomingGamesFunc func(ctx context.Context, daysAhead int) ([]models.Game, error)
	GetTeamStatsFunc      func(ctx context.Context, teamID, season int) (*models.TeamStats, error)
}

func (m *MockGameSource) ListUpcomingGames(ctx context.Context, daysAhead int) ([]models.Game, error) {
	if m.ListUpcomingGamesFunc != nil {
		return m.ListUpcomingGamesFunc(ctx, daysAhead)
	}
	return nil, nil
}

func (m *MockGameSource) GetTeamStats(ctx context.Context, teamID, season int) (*models.TeamStats, error) {
	if m.GetTeamStatsFunc != nil {
		return m.GetTeamStatsFunc(ctx, teamID, season)
	}
	return &models.TeamStats{TeamID: teamID, Season: season, GamesPlayed: 5, Points: 112.4, Rebounds: 44.1, Assists: 25.8}, nil
}

// MockNewsSource
type MockNewsSource struct {
	GetRecentNewsFunc   func(ctx context.Context, teamName string, days int) ([]models.Article, error)
	GetInjuryReportFunc func(ctx context.Context, teamName string) ([]models.InjuryEntry, error)
}

func (m *MockNewsSource) GetRecentNews(ctx context.Context, teamName string, days int) ([]models.Article, error) {
	if m.GetRecentNewsFunc != nil {
		return m.GetRecentNewsFunc(ctx, teamName, days)
	}
	return []models.Article{{Title: teamName + " win again", URL: "https://example.com/" + teamName}}, nil
}

func (m *MockNewsSource) GetInjuryReport(ctx context.Context, teamName string) ([]models.InjuryEntry, error) {
	if m.GetInjuryReportFunc != nil {
		return m.GetInjuryReportFunc(ctx, teamName)
	}
	return nil, nil
}

// MockEngine
type MockEngine struct {
	PredictFunc func(ctx context.Context, gc *models.GameContext) (*models.EngineResult, error)
	calls       atomic.Int32
}

func (m *MockEngine) Name() string { return "mock" }

func (m *MockEngine) Predict(ctx context.Context, gc *models.GameContext) (*models.EngineResult, error) {
	m.calls.Add(1)
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, gc)
	}
	return &models.EngineResult{Pick: "Home ML", Logic: "home court", Confidence: 0.6}, nil
}

// MockGenerator
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, gameID, agentID string) (*models.Prediction, error)
	calls        atomic.Int32
}

func (m *MockGenerator) Generate(ctx context.Context, gameID, agentID string) (*models.Prediction, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, gameID, agentID)
	}
	return &models.Prediction{ID: "pred-" + gameID, AgentID: agentID, GameID: gameID}, nil
}

// manualQueue holds jobs until the test drains it.
type manualQueue struct {
	mu     sync.Mutex
	jobs   []queuedJob
	reject bool
}

type queuedJob struct {
	job Job
	at  time.Time
}

func (q *manualQueue) Submit(job Job) bool {
	return q.ScheduleAt(job, time.Time{})
}

func (q *manualQueue) ScheduleAt(job Job, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.jobs = append(q.jobs, queuedJob{job: job, at: at})
	return true
}

func (q *manualQueue) pending() []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedJob(nil), q.jobs...)
}

// drain runs queued jobs earliest first, moving the clock forward to each
// job's due time. Jobs enqueued while draining are run too.
func (q *manualQueue) drain(ctx context.Context, clock *fakeClock) int {
	ran := 0
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return ran
		}
		sort.SliceStable(q.jobs, func(i, j int) bool { return q.jobs[i].at.Before(q.jobs[j].at) })
		next := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if next.at.After(clock.Now()) {
			clock.Set(next.at)
		}
		next.job.Run(ctx)
		ran++
	}
}

// recordingJournal keeps every attempt in memory.
type recordingJournal struct {
	mu       sync.Mutex
	attempts []models.Attempt
}

func (j *recordingJournal) Record(a models.Attempt) {
	j.mu.Lock()
	j.attempts = append(j.attempts, a)
	j.mu.Unlock()
}

func (j *recordingJournal) all() []models.Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.Attempt(nil), j.attempts...)
}
