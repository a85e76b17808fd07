package models

import "time"

type IngestionTriggerRequest struct {
	HorizonDays int `json:"horizon_days" validate:"gte=0,lte=60"`
}

// IngestionSummary is the result of one ingestion run.
type IngestionSummary struct {
	Status    string    `json:"status"` // success, partial, error
	Count     int       `json:"count"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerationSummary is the result of one scheduled generation tick.
type GenerationSummary struct {
	Due        int      `json:"due"`
	Dispatched int      `json:"dispatched"`
	Late       []string `json:"late"`
	Skipped    []string `json:"skipped"`
}

// EmergencySummary is the result of one emergency sweep.
type EmergencySummary struct {
	Scheduled []string `json:"scheduled"`
}

type GenerateRequest struct {
	AgentID string `json:"agent_id" validate:"omitempty,max=64"`
}
