package logic

import (
	"context"
	"errors"
	"fmt"
)

// IngestionError is a per-record upstream or validation failure.
type IngestionError struct {
	GameID string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for game %s: %v", e.GameID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// AggregationError means no usable context could be built for a game.
type AggregationError struct {
	GameID string
	Reason string
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aggregation failed for game %s: %s: %v", e.GameID, e.Reason, e.Err)
	}
	return fmt.Sprintf("aggregation failed for game %s: %s", e.GameID, e.Reason)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// EngineError is a failed or unparsable prediction engine call.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// StorageError is a failed persistence call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SchedulingError marks a game whose timing data cannot be planned.
type SchedulingError struct {
	GameID string
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("cannot schedule game %s: %s", e.GameID, e.Reason)
}

// ErrorKind names the taxonomy bucket of err, for logs and the journal.
func ErrorKind(err error) string {
	var (
		ie *IngestionError
		ae *AggregationError
		ee *EngineError
		se *StorageError
		ce *SchedulingError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return "aggregation"
	case errors.As(err, &ee):
		return "engine"
	case errors.As(err, &se):
		return "storage"
	case errors.As(err, &ie):
		return "ingestion"
	case errors.As(err, &ce):
		return "scheduling"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
