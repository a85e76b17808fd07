package models

import "time"

// ResultPending is the outcome every new prediction starts with.
const ResultPending = "pending"

// Prediction is the persisted pick for one (agent, game) pair.
type Prediction struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	GameID     string    `json:"game_id"`
	Pick       string    `json:"pick"`
	Logic      string    `json:"logic"`
	Confidence float64   `json:"confidence"`
	Result     string    `json:"result"`
	CreatedAt  time.Time `json:"created_at"`
}

// EngineResult is the validated answer returned by a prediction engine.
// Confidence is the raw, uncalibrated score.
type EngineResult struct {
	Pick       string  `json:"pick" validate:"required"`
	Logic      string  `json:"logic" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}
