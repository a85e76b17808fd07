package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Loop runs fn every Interval as a suture service. A failing tick is
// logged and the loop keeps going.
type Loop struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Fn         func(ctx context.Context) error
	Logger     *zap.Logger
}

func (l *Loop) Serve(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar()

	tick := func() {
		start := time.Now()
		if err := l.Fn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorw("Loop tick failed", "loop", l.Name, "error", err)
			return
		}
		log.Debugw("Loop tick finished", "loop", l.Name, "duration", time.Since(start))
	}

	if l.RunAtStart {
		tick()
	}

	interval := l.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) String() string { return l.Name }
