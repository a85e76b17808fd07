package models

import (
	"encoding/json"
	"time"
)

// Unavailable is rendered in place of any context slot whose fetch failed.
const Unavailable = "UNAVAILABLE"

// Manifest entries recorded when a context slot could not be filled.
const (
	ManifestHomeStatsFailed    = "home_stats_failed"
	ManifestAwayStatsFailed    = "away_stats_failed"
	ManifestHomeNewsFailed     = "home_news_failed"
	ManifestAwayNewsFailed     = "away_news_failed"
	ManifestHomeInjuriesFailed = "home_injuries_failed"
	ManifestAwayInjuriesFailed = "away_injuries_failed"
)

// StatsSlot is team stats that may be unavailable.
type StatsSlot struct {
	Available bool       `json:"available"`
	Stats     *TeamStats `json:"stats,omitempty"`
}

// NewsSlot is a news list that may be unavailable.
type NewsSlot struct {
	Available bool      `json:"available"`
	Articles  []Article `json:"articles,omitempty"`
}

// InjurySlot is an injury report that may be unavailable.
type InjurySlot struct {
	Available bool          `json:"available"`
	Entries   []InjuryEntry `json:"entries,omitempty"`
}

// MarshalJSON renders an unavailable slot as the Unavailable sentinel.
func (s StatsSlot) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(Unavailable)
	}
	return json.Marshal(s.Stats)
}

func (s NewsSlot) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(Unavailable)
	}
	if s.Articles == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Articles)
}

func (s InjurySlot) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(Unavailable)
	}
	if s.Entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Entries)
}

// StructuredData is the numeric part of a GameContext.
type StructuredData struct {
	HomeStats StatsSlot `json:"home_stats"`
	AwayStats StatsSlot `json:"away_stats"`
}

// UnstructuredData is the text part of a GameContext.
type UnstructuredData struct {
	HomeNews     NewsSlot   `json:"home_news"`
	AwayNews     NewsSlot   `json:"away_news"`
	HomeInjuries InjurySlot `json:"home_injuries"`
	AwayInjuries InjurySlot `json:"away_injuries"`
}

// GameContext bundles everything gathered for one generation attempt.
// It is built fresh for each attempt and never persisted.
type GameContext struct {
	Game         Game             `json:"game"`
	Structured   StructuredData   `json:"structured"`
	Unstructured UnstructuredData `json:"unstructured"`
	Manifest     []string         `json:"manifest"`
	BuiltAt      time.Time        `json:"built_at"`
}

// Degraded reports whether any slot is missing.
func (c *GameContext) Degraded() bool {
	return len(c.Manifest) > 0
}

// HasFailure reports whether entry is in the failure manifest.
func (c *GameContext) HasFailure(entry string) bool {
	for _, m := range c.Manifest {
		if m == entry {
			return true
		}
	}
	return false
}
