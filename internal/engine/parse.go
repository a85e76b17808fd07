package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/badbeats/pickgen/internal/models"
)

const defaultConfidence = 0.5

var errNoJSON = errors.New("no JSON object in answer")

// ParseResult extracts the JSON answer from model output. Code fences and
// surrounding prose are tolerated. Percent-style confidences (e.g. 72) are
// scaled into [0,1] and anything else out of range is clamped.
func ParseResult(text string) (*models.EngineResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}

	body := []byte(text[start : end+1])
	var r models.EngineResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err == nil && !hasKey(keys, "confidence") {
		r.Confidence = defaultConfidence
	}

	r.Pick = strings.TrimSpace(r.Pick)
	r.Logic = strings.TrimSpace(r.Logic)
	if r.Pick == "" {
		return nil, errors.New("answer has no pick")
	}

	c := r.Confidence
	switch {
	case math.IsNaN(c) || math.IsInf(c, 0):
		c = defaultConfidence
	case c > 1 && c <= 100:
		c /= 100
	}
	r.Confidence = math.Max(0, math.Min(1, c))
	return &r, nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
