package logic

import (
	"sort"
	"time"

	"github.com/badbeats/pickgen/internal/models"
)

// PlanParams controls the due-window computation.
type PlanParams struct {
	// Lead is how long before start generation normally begins.
	Lead time.Duration
	// Lookahead is the width of the due window starting at start-Lead.
	Lookahead time.Duration
	// TooLate hands games over to the emergency sweep once now-trigger reaches it.
	TooLate time.Duration
	// MinSlack is the minimum start-IngestedAt a game needs for the normal path.
	MinSlack time.Duration
}

// DueGame is a game eligible for normal-path generation.
type DueGame struct {
	Game       models.Game
	Trigger    time.Time
	WindowEnds time.Time
}

// DuePlan is the output of ListDueGames.
type DuePlan struct {
	Due     []DueGame
	Late    []models.Game
	Skipped []*SchedulingError
}

// Trigger returns the start of the due window for a game.
func (p PlanParams) Trigger(start time.Time) time.Time {
	return start.Add(-p.Lead)
}

// WindowEnd returns the exclusive end of the due window.
func (p PlanParams) WindowEnd(start time.Time) time.Time {
	return p.Trigger(start).Add(p.Lookahead)
}

// InWindow reports whether now lies in [trigger, trigger+lookahead).
func (p PlanParams) InWindow(start, now time.Time) bool {
	trigger := p.Trigger(start)
	return !now.Before(trigger) && now.Before(trigger.Add(p.Lookahead))
}

// NormalPathOpen reports whether the scheduled path can still generate g at
// now. It closes at trigger+TooLate (or the window end, whichever is first)
// and never opens for games ingested with less than MinSlack to spare.
func (p PlanParams) NormalPathOpen(g models.Game, now time.Time) bool {
	if !g.IngestedAt.IsZero() && g.StartTime.Sub(g.IngestedAt) < p.MinSlack {
		return false
	}
	cutoff := p.WindowEnd(g.StartTime)
	if p.TooLate > 0 {
		if late := p.Trigger(g.StartTime).Add(p.TooLate); late.Before(cutoff) {
			cutoff = late
		}
	}
	return now.Before(cutoff)
}

// ListDueGames selects the games due at now. It has no side effects; states
// maps game ID to the current GenerationState (missing means pending).
func ListDueGames(now time.Time, games []models.Game, states map[string]models.GenerationState, p PlanParams) DuePlan {
	var plan DuePlan

	for _, g := range games {
		if err := checkSchedulable(g); err != nil {
			plan.Skipped = append(plan.Skipped, err)
			continue
		}
		if g.Status == models.GameFinal {
			continue
		}
		if !p.InWindow(g.StartTime, now) {
			continue
		}

		switch states[g.ID].Status {
		case "", models.StatusPending:
		default:
			// completed, or already dispatched in this window
			continue
		}

		trigger := p.Trigger(g.StartTime)
		if p.TooLate > 0 && now.Sub(trigger) >= p.TooLate {
			plan.Late = append(plan.Late, g)
			continue
		}
		if !g.IngestedAt.IsZero() && g.StartTime.Sub(g.IngestedAt) < p.MinSlack {
			plan.Late = append(plan.Late, g)
			continue
		}

		plan.Due = append(plan.Due, DueGame{
			Game:       g,
			Trigger:    trigger,
			WindowEnds: trigger.Add(p.Lookahead),
		})
	}

	sort.Slice(plan.Due, func(i, j int) bool {
		a, b := plan.Due[i].Game, plan.Due[j].Game
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})

	return plan
}

func checkSchedulable(g models.Game) *SchedulingError {
	switch {
	case g.ID == "":
		return &SchedulingError{GameID: "?", Reason: "missing game id"}
	case g.StartTime.IsZero():
		return &SchedulingError{GameID: g.ID, Reason: "missing start time"}
	case g.HomeTeamID == 0 || g.AwayTeamID == 0:
		return &SchedulingError{GameID: g.ID, Reason: "missing team ids"}
	}
	return nil
}
