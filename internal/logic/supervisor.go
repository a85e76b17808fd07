package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/models"
)

// ErrGenerationInProgress is returned by GenerateNow when another worker
// owns the game.
var ErrGenerationInProgress = errors.New("generation already in progress")

// Generator is the executor seen by the supervisor.
type Generator interface {
	Generate(ctx context.Context, gameID, agentID string) (*models.Prediction, error)
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Store     Store
	States    StateStore
	Generator Generator
	Queue     WorkQueue
	Journal   Journal
	Policy    RetryPolicy
	Plan      PlanParams
	AgentID   string

	// GenerationTimeout bounds one attempt end to end.
	GenerationTimeout time.Duration
	EmergencyHorizon  time.Duration
	EmergencyDelay    time.Duration

	Logger *zap.Logger
	Now    Clock
}

// Supervisor drives the per-game state machine: it dispatches due games,
// retries failed attempts inside the due window and runs the emergency
// sweep.
type Supervisor struct {
	store     Store
	states    StateStore
	gen       Generator
	queue     WorkQueue
	journal   Journal
	policy    RetryPolicy
	plan      PlanParams
	agentID   string
	timeout   time.Duration
	horizon   time.Duration
	emergency time.Duration
	logger    *zap.SugaredLogger
	now       Clock
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if cfg.EmergencyHorizon <= 0 {
		cfg.EmergencyHorizon = 3 * time.Hour
	}
	if cfg.EmergencyDelay < 0 {
		cfg.EmergencyDelay = 0
	}
	if cfg.Journal == nil {
		cfg.Journal = NopJournal
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Supervisor{
		store:     cfg.Store,
		states:    cfg.States,
		gen:       cfg.Generator,
		queue:     cfg.Queue,
		journal:   cfg.Journal,
		policy:    cfg.Policy,
		plan:      cfg.Plan,
		agentID:   cfg.AgentID,
		timeout:   cfg.GenerationTimeout,
		horizon:   cfg.EmergencyHorizon,
		emergency: cfg.EmergencyDelay,
		logger:    cfg.Logger.Sugar(),
		now:       cfg.Now,
	}
}

// AgentID is the agent used for scheduled generation.
func (s *Supervisor) AgentID() string {
	return s.agentID
}

// generationJob is one attempt for one game.
type generationJob struct {
	s          *Supervisor
	game       models.Game
	attempt    int
	windowEnds time.Time
	emergency  bool
}

func (j *generationJob) Key() string {
	if j.emergency {
		return fmt.Sprintf("emergency:%s:%s", j.s.agentID, j.game.ID)
	}
	return fmt.Sprintf("generate:%s:%s:%d", j.s.agentID, j.game.ID, j.attempt)
}

func (j *generationJob) Run(ctx context.Context) {
	j.s.runAttempt(ctx, j)
}

// RunScheduledGeneration plans the current tick and dispatches every due
// game to the work queue. It never waits for generation to finish.
func (s *Supervisor) RunScheduledGeneration(ctx context.Context) (models.GenerationSummary, error) {
	now := s.now()
	summary := models.GenerationSummary{Late: []string{}, Skipped: []string{}}

	games, err := s.store.ListDueCandidateGames(ctx, now)
	if err != nil {
		return summary, &StorageError{Op: "list candidate games", Err: err}
	}

	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	states, err := s.states.Snapshot(ctx, s.agentID, ids)
	if err != nil {
		return summary, &StorageError{Op: "snapshot states", Err: err}
	}
	s.releaseAbandoned(ctx, now, states)

	plan := ListDueGames(now, games, states, s.plan)
	dueGames.Set(float64(len(plan.Due)))
	summary.Due = len(plan.Due)

	for _, se := range plan.Skipped {
		s.logger.Warnw("Game excluded from schedule", "game_id", se.GameID, "reason", se.Reason)
		summary.Skipped = append(summary.Skipped, se.GameID)
	}
	for _, g := range plan.Late {
		s.logger.Infow("Game too late for normal path, leaving to emergency sweep", "game_id", g.ID, "start_time", g.StartTime)
		summary.Late = append(summary.Late, g.ID)
	}

	for _, d := range plan.Due {
		prev := states[d.Game.ID]
		ok, err := s.states.Transition(ctx,
			[]models.GenerationStatus{models.StatusPending},
			models.GenerationState{
				AgentID:   s.agentID,
				GameID:    d.Game.ID,
				Status:    models.StatusDue,
				Attempts:  prev.Attempts,
				UpdatedAt: now,
			})
		if err != nil {
			s.logger.Errorw("Failed to mark game due", "game_id", d.Game.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		job := &generationJob{s: s, game: d.Game, attempt: 1, windowEnds: d.WindowEnds}
		if !s.queue.Submit(job) {
			// Back to pending so the next tick can dispatch it again.
			s.logger.Warnw("Work queue rejected job", "game_id", d.Game.ID)
			if _, err := s.states.Transition(ctx, []models.GenerationStatus{models.StatusDue}, models.GenerationState{
				AgentID:   s.agentID,
				GameID:    d.Game.ID,
				Status:    models.StatusPending,
				Attempts:  prev.Attempts,
				UpdatedAt: now,
			}); err != nil {
				s.logger.Errorw("Failed to release rejected game", "game_id", d.Game.ID, "error", err)
			}
			continue
		}
		summary.Dispatched++
	}

	// Abandoned attempts re-enter the retry policy while the window allows.
	for _, g := range games {
		st := states[g.ID]
		if !isAbandoned(st) || st.Attempts >= s.policy.MaxAttempts ||
			!s.plan.InWindow(g.StartTime, now) || !s.plan.NormalPathOpen(g, now) {
			continue
		}
		job := &generationJob{s: s, game: g, attempt: st.Attempts + 1, windowEnds: s.plan.WindowEnd(g.StartTime)}
		if !s.queue.Submit(job) {
			s.logger.Warnw("Work queue rejected retry of abandoned attempt", "game_id", g.ID)
			continue
		}
		summary.Dispatched++
	}

	s.logger.Infow("Scheduled generation tick",
		"candidates", len(games),
		"due", summary.Due,
		"dispatched", summary.Dispatched,
		"late", len(summary.Late),
		"skipped", len(summary.Skipped),
	)
	return summary, nil
}

// RunEmergencySweep schedules one best-effort attempt for every game that
// starts within the emergency horizon, has no completed prediction and can
// no longer be served by the scheduled path.
func (s *Supervisor) RunEmergencySweep(ctx context.Context) (models.EmergencySummary, error) {
	now := s.now()
	summary := models.EmergencySummary{Scheduled: []string{}}

	games, err := s.store.ListDueCandidateGames(ctx, now)
	if err != nil {
		return summary, &StorageError{Op: "list candidate games", Err: err}
	}

	var inHorizon []models.Game
	for _, g := range games {
		if InEmergencyHorizon(g.StartTime, now, s.horizon) && g.Status != models.GameFinal {
			inHorizon = append(inHorizon, g)
		}
	}
	if len(inHorizon) == 0 {
		return summary, nil
	}

	ids := make([]string, 0, len(inHorizon))
	for _, g := range inHorizon {
		ids = append(ids, g.ID)
	}
	states, err := s.states.Snapshot(ctx, s.agentID, ids)
	if err != nil {
		return summary, &StorageError{Op: "snapshot states", Err: err}
	}

	s.releaseAbandoned(ctx, now, states)

	for _, g := range inHorizon {
		st := states[g.ID]
		if st.Emergency {
			continue
		}
		switch st.Status {
		case models.StatusCompleted, models.StatusInProgress:
			continue
		case "", models.StatusPending, models.StatusDue:
			// still the scheduled path's to serve
			if s.plan.NormalPathOpen(g, now) {
				continue
			}
		case models.StatusFailed:
			if st.Attempts < s.policy.MaxAttempts && s.plan.NormalPathOpen(g, now) {
				continue
			}
		}

		ok, err := s.states.ReserveEmergency(ctx, s.agentID, g.ID)
		if err != nil {
			s.logger.Errorw("Failed to reserve emergency attempt", "game_id", g.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		job := &generationJob{s: s, game: g, attempt: st.Attempts + 1, emergency: true}
		if !s.queue.ScheduleAt(job, now.Add(s.emergency)) {
			s.recordTerminal(job, st.Attempts, now, 0, errors.New("work queue rejected emergency job"), beforeClaim...)
			continue
		}
		emergencyDispatched.Inc()
		summary.Scheduled = append(summary.Scheduled, g.ID)
		s.logger.Warnw("Emergency generation scheduled", "game_id", g.ID, "start_time", g.StartTime, "delay", s.emergency)
	}

	return summary, nil
}

// InEmergencyHorizon reports whether a game starting at start is in
// (now, now+horizon].
func InEmergencyHorizon(start, now time.Time, horizon time.Duration) bool {
	return start.After(now) && !start.After(now.Add(horizon))
}

// GenerateNow runs a single claim-guarded attempt synchronously, for
// operator-triggered runs. It does not retry.
func (s *Supervisor) GenerateNow(ctx context.Context, gameID, agentID string) (*models.Prediction, error) {
	if agentID == "" {
		agentID = s.agentID
	}
	now := s.now()

	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, &StorageError{Op: "get game", Err: err}
	}

	prev, err := s.states.Get(ctx, agentID, gameID)
	if err != nil {
		return nil, &StorageError{Op: "get state", Err: err}
	}

	claimed, err := s.states.Transition(ctx,
		[]models.GenerationStatus{models.StatusPending, models.StatusDue, models.StatusFailed},
		models.GenerationState{
			AgentID:   agentID,
			GameID:    gameID,
			Status:    models.StatusInProgress,
			Attempts:  prev.Attempts + 1,
			UpdatedAt: now,
		})
	if err != nil {
		return nil, &StorageError{Op: "claim", Err: err}
	}
	if !claimed {
		cur, err := s.states.Get(ctx, agentID, gameID)
		if err != nil {
			return nil, &StorageError{Op: "get state", Err: err}
		}
		if cur.Status == models.StatusCompleted {
			// Idempotent path: the executor returns the stored prediction.
			return s.gen.Generate(ctx, gameID, agentID)
		}
		return nil, ErrGenerationInProgress
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	pred, genErr := s.gen.Generate(attemptCtx, gameID, agentID)
	elapsed := s.now().Sub(start)
	generationDuration.Observe(elapsed.Seconds())

	next := models.GenerationState{
		AgentID:   agentID,
		GameID:    gameID,
		Status:    models.StatusCompleted,
		Attempts:  prev.Attempts + 1,
		UpdatedAt: s.now(),
	}
	outcome := "completed"
	if genErr != nil {
		next.Status = models.StatusFailed
		next.LastError = genErr.Error()
		outcome = "failed"
	}
	if _, err := s.states.Transition(ctx, []models.GenerationStatus{models.StatusInProgress}, next); err != nil {
		s.logger.Errorw("Failed to record manual generation state", "game_id", gameID, "agent_id", agentID, "error", err)
	}
	generationsTotal.WithLabelValues(outcome).Inc()
	s.journal.Record(models.Attempt{
		AgentID:   agentID,
		GameID:    gameID,
		Number:    next.Attempts,
		Outcome:   outcome,
		ErrorKind: ErrorKind(genErr),
		Reason:    next.LastError,
		Duration:  elapsed,
		Timestamp: next.UpdatedAt,
	})

	if genErr != nil {
		s.logger.Errorw("Manual generation failed", "game_id", gameID, "agent_id", agentID, "error", genErr)
		return nil, genErr
	}
	return pred, nil
}

func (s *Supervisor) runAttempt(ctx context.Context, j *generationJob) {
	now := s.now()

	switch {
	case j.emergency && !now.Before(j.game.StartTime):
		s.recordTerminal(j, j.attempt-1, now, 0, errors.New("game started before emergency attempt ran"), beforeClaim...)
		return
	case !j.emergency && !now.Before(j.windowEnds):
		s.recordTerminal(j, j.attempt-1, now, 0, errors.New("due window elapsed before attempt ran"), beforeClaim...)
		return
	}

	from := []models.GenerationStatus{models.StatusDue, models.StatusFailed}
	if j.emergency {
		from = []models.GenerationStatus{models.StatusPending, models.StatusDue, models.StatusFailed}
	}
	claimed, err := s.states.Transition(ctx, from, models.GenerationState{
		AgentID:   s.agentID,
		GameID:    j.game.ID,
		Status:    models.StatusInProgress,
		Attempts:  j.attempt,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Errorw("Claim failed", "game_id", j.game.ID, "attempt", j.attempt, "error", err)
		return
	}
	if !claimed {
		s.logger.Debugw("Game owned elsewhere, skipping", "game_id", j.game.ID, "attempt", j.attempt)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	pred, genErr := s.gen.Generate(attemptCtx, j.game.ID, s.agentID)
	cancel()

	finished := s.now()
	elapsed := finished.Sub(now)
	generationDuration.Observe(elapsed.Seconds())

	if genErr == nil {
		s.recordSuccess(j, finished, elapsed, pred)
		return
	}

	if !j.emergency && s.policy.ShouldRetry(genErr, j.attempt) {
		delay := s.policy.Backoff(j.attempt)
		retryAt := finished.Add(delay)
		if retryAt.Before(j.windowEnds) {
			s.recordRetry(j, finished, elapsed, genErr, retryAt)
			return
		}
	}

	s.recordTerminal(j, j.attempt, finished, elapsed, genErr, models.StatusInProgress)
}

func (s *Supervisor) recordSuccess(j *generationJob, at time.Time, elapsed time.Duration, pred *models.Prediction) {
	if _, err := s.states.Transition(context.Background(),
		[]models.GenerationStatus{models.StatusInProgress},
		models.GenerationState{
			AgentID:   s.agentID,
			GameID:    j.game.ID,
			Status:    models.StatusCompleted,
			Attempts:  j.attempt,
			UpdatedAt: at,
		}); err != nil {
		s.logger.Errorw("Failed to mark game completed", "game_id", j.game.ID, "error", err)
	}

	generationsTotal.WithLabelValues("completed").Inc()
	s.journal.Record(models.Attempt{
		AgentID:   s.agentID,
		GameID:    j.game.ID,
		Number:    j.attempt,
		Emergency: j.emergency,
		Outcome:   "completed",
		Duration:  elapsed,
		Timestamp: at,
	})
	s.logger.Infow("Generation completed",
		"game_id", j.game.ID,
		"agent_id", s.agentID,
		"prediction_id", pred.ID,
		"attempt", j.attempt,
		"retry_count", j.attempt-1,
		"emergency", j.emergency,
	)
}

func (s *Supervisor) recordRetry(j *generationJob, at time.Time, elapsed time.Duration, genErr error, retryAt time.Time) {
	if _, err := s.states.Transition(context.Background(),
		[]models.GenerationStatus{models.StatusInProgress},
		models.GenerationState{
			AgentID:   s.agentID,
			GameID:    j.game.ID,
			Status:    models.StatusFailed,
			Attempts:  j.attempt,
			LastError: genErr.Error(),
			UpdatedAt: at,
		}); err != nil {
		s.logger.Errorw("Failed to record failed attempt", "game_id", j.game.ID, "error", err)
	}

	next := &generationJob{s: s, game: j.game, attempt: j.attempt + 1, windowEnds: j.windowEnds}
	if !s.queue.ScheduleAt(next, retryAt) {
		s.recordTerminal(j, j.attempt, at, elapsed, fmt.Errorf("retry not scheduled: %w", genErr), models.StatusFailed)
		return
	}

	generationRetries.Inc()
	generationsTotal.WithLabelValues("retrying").Inc()
	s.journal.Record(models.Attempt{
		AgentID:   s.agentID,
		GameID:    j.game.ID,
		Number:    j.attempt,
		Outcome:   "retrying",
		ErrorKind: ErrorKind(genErr),
		Reason:    genErr.Error(),
		Duration:  elapsed,
		Timestamp: at,
	})
	s.logger.Warnw("Generation attempt failed, retrying",
		"game_id", j.game.ID,
		"attempt", j.attempt,
		"retry_at", retryAt,
		"error_kind", ErrorKind(genErr),
		"error", genErr,
	)
}

// claimGrace is how long past the attempt timeout an IN_PROGRESS claim is
// honoured before its owner is presumed dead.
const claimGrace = time.Minute

var errClaimAbandoned = fmt.Errorf("attempt never reported back: %w", context.DeadlineExceeded)

func isAbandoned(st models.GenerationState) bool {
	return st.Status == models.StatusFailed && st.LastError == errClaimAbandoned.Error()
}

// releaseAbandoned moves IN_PROGRESS claims older than the attempt timeout
// to FAILED and updates states in place.
func (s *Supervisor) releaseAbandoned(ctx context.Context, now time.Time, states map[string]models.GenerationState) {
	for id, st := range states {
		if st.Status != models.StatusInProgress || now.Sub(st.UpdatedAt) <= s.timeout+claimGrace {
			continue
		}
		next := st
		next.AgentID, next.GameID = s.agentID, id
		next.Status = models.StatusFailed
		next.LastError = errClaimAbandoned.Error()
		next.UpdatedAt = now

		ok, err := s.states.Transition(ctx, []models.GenerationStatus{models.StatusInProgress}, next)
		if err != nil {
			s.logger.Errorw("Failed to release abandoned claim", "game_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		states[id] = next

		generationsTotal.WithLabelValues("failed").Inc()
		s.journal.Record(models.Attempt{
			AgentID:   s.agentID,
			GameID:    id,
			Number:    st.Attempts,
			Emergency: st.Emergency,
			Outcome:   "failed",
			ErrorKind: ErrorKind(errClaimAbandoned),
			Reason:    next.LastError,
			Timestamp: now,
		})
		s.logger.Warnw("Released abandoned claim",
			"game_id", id,
			"agent_id", s.agentID,
			"attempts", st.Attempts,
			"claimed_at", st.UpdatedAt,
		)
	}
}

// beforeClaim are the states a job may fail from without having claimed
// the game. IN_PROGRESS is excluded: it belongs to another worker.
var beforeClaim = []models.GenerationStatus{models.StatusPending, models.StatusDue, models.StatusFailed}

// recordTerminal stores a FAILED state with its reason. Every terminal
// failure ends up here so it is always logged, counted and journaled.
// Nothing is recorded if the game has meanwhile left the from states.
func (s *Supervisor) recordTerminal(j *generationJob, attempts int, at time.Time, elapsed time.Duration, reason error, from ...models.GenerationStatus) {
	ok, err := s.states.Transition(context.Background(), from, models.GenerationState{
		AgentID:   s.agentID,
		GameID:    j.game.ID,
		Status:    models.StatusFailed,
		Attempts:  attempts,
		LastError: reason.Error(),
		UpdatedAt: at,
	})
	if err != nil {
		s.logger.Errorw("Failed to record terminal failure", "game_id", j.game.ID, "error", err)
	} else if !ok {
		return
	}

	generationsTotal.WithLabelValues("failed").Inc()
	if j.emergency {
		emergencyFailures.Inc()
	}
	s.journal.Record(models.Attempt{
		AgentID:   s.agentID,
		GameID:    j.game.ID,
		Number:    attempts,
		Emergency: j.emergency,
		Outcome:   "failed",
		ErrorKind: ErrorKind(reason),
		Reason:    reason.Error(),
		Duration:  elapsed,
		Timestamp: at,
	})

	msg := "Generation failed, left for emergency sweep"
	if j.emergency {
		msg = "Emergency generation failed, operator action required"
	}
	s.logger.Errorw(msg,
		"game_id", j.game.ID,
		"agent_id", s.agentID,
		"attempts", attempts,
		"error_kind", ErrorKind(reason),
		"error", reason,
	)
}
