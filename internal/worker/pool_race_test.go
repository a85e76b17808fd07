package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPool_RaceCondition(t *testing.T) {
	p := NewPool(PoolConfig{WorkerCount: 4, QueueSize: 1000, Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var ran atomic.Int32
	wg := sync.WaitGroup{}
	submitters := 10
	jobsPerSubmitter := 50

	for i := 0; i < submitters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < jobsPerSubmitter; j++ {
				job := newMockJob(fmt.Sprintf("generate:agent:%d:%d", i, j))
				job.RunFn = func(context.Context) { ran.Add(1) }
				if j%2 == 0 {
					p.Submit(job)
				} else {
					p.ScheduleAt(job, time.Now().Add(time.Millisecond))
				}
			}
		}()
	}

	wg.Wait()
	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() < int32(submitters*jobsPerSubmitter) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	if got := ran.Load(); got != int32(submitters*jobsPerSubmitter) {
		t.Errorf("ran %d jobs, want %d", got, submitters*jobsPerSubmitter)
	}
}
