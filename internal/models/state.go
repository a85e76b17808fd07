package models

import "time"

// GenerationStatus is the per-game generation state.
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusDue        GenerationStatus = "due"
	StatusInProgress GenerationStatus = "in_progress"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further automatic transition leaves s.
func (s GenerationStatus) Terminal() bool {
	return s == StatusCompleted
}

// GenerationState tracks generation progress for one (agent, game) pair.
// A missing state is equivalent to StatusPending.
type GenerationState struct {
	AgentID   string           `json:"agent_id"`
	GameID    string           `json:"game_id"`
	Status    GenerationStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	Emergency bool             `json:"emergency"` // emergency attempt already used
	LastError string           `json:"last_error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Attempt is one journaled generation attempt.
type Attempt struct {
	AgentID   string        `json:"agent_id"`
	GameID    string        `json:"game_id"`
	Number    int           `json:"attempt"`
	Emergency bool          `json:"emergency"`
	Outcome   string        `json:"outcome"` // completed, retrying, failed, skipped
	ErrorKind string        `json:"error_kind,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}
