package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopTicksAndSurvivesErrors(t *testing.T) {
	var calls atomic.Int32
	l := &Loop{
		Name:       "generation",
		Interval:   10 * time.Millisecond,
		RunAtStart: true,
		Fn: func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("store unavailable")
			}
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve returned %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("loop ran %d times", calls.Load())
	}
	if l.String() != "generation" {
		t.Errorf("String() = %s", l.String())
	}
}

func TestLoopRunAtStart(t *testing.T) {
	var calls atomic.Int32
	l := &Loop{Name: "ingestion", Interval: time.Hour, RunAtStart: true, Fn: func(context.Context) error {
		calls.Add(1)
		return nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = l.Serve(ctx)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
