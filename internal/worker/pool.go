// Package worker runs background work: the bounded generation pool, the
// attempt journal and the periodic loops.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/badbeats/pickgen/internal/logic"
)

// Prometheus metrics
var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_worker_jobs_submitted_total",
		Help: "Total number of jobs accepted by the worker pool",
	})

	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_worker_jobs_processed_total",
		Help: "Total number of jobs run by workers",
	})

	jobsPanicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pickgen_worker_jobs_panicked_total",
		Help: "Total number of jobs that panicked",
	})

	jobsLoadShed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pickgen_worker_jobs_load_shed_total",
		Help: "Total number of jobs rejected by the worker pool",
	}, []string{"reason"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pickgen_worker_queue_depth",
		Help: "Current depth of the worker queue",
	})
)

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount int
	QueueSize   int
	Logger      *zap.Logger
}

// Pool runs generation jobs on a fixed number of workers. A job key is
// accepted at most once while it is queued or waiting on a timer.
type Pool struct {
	config   PoolConfig
	jobQueue chan logic.Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
	timers  map[string]*time.Timer
	stopped bool
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		config:   cfg,
		jobQueue: make(chan logic.Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
		now:      time.Now,
		pending:  make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
	)
}

// Stop cancels pending timers, lets running jobs see a canceled context
// and waits for the workers to exit. Queued jobs that never started are
// dropped.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for key, t := range p.timers {
		t.Stop()
		delete(p.timers, key)
	}
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Serve implements suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return ctx.Err()
}

func (p *Pool) String() string { return "worker-pool" }

// Submit queues job without blocking. It returns false when the pool is
// stopped, the queue is full or the key is already pending.
func (p *Pool) Submit(job logic.Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enqueueLocked(job)
}

// ScheduleAt queues job once at has passed. A time in the past queues it
// immediately.
func (p *Pool) ScheduleAt(job logic.Job, at time.Time) bool {
	delay := at.Sub(p.now())

	p.mu.Lock()
	defer p.mu.Unlock()
	if delay <= 0 {
		return p.enqueueLocked(job)
	}

	key := job.Key()
	if p.stopped {
		jobsLoadShed.WithLabelValues("stopped").Inc()
		return false
	}
	if _, dup := p.pending[key]; dup {
		jobsLoadShed.WithLabelValues("duplicate").Inc()
		return false
	}
	if _, dup := p.timers[key]; dup {
		jobsLoadShed.WithLabelValues("duplicate").Inc()
		return false
	}

	p.timers[key] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.timers[key]; !ok {
			return
		}
		delete(p.timers, key)
		if !p.enqueueLocked(job) {
			p.logger.Warnw("Scheduled job dropped", "key", key)
		}
	})
	return true
}

func (p *Pool) enqueueLocked(job logic.Job) bool {
	key := job.Key()
	if p.stopped {
		jobsLoadShed.WithLabelValues("stopped").Inc()
		return false
	}
	if _, dup := p.pending[key]; dup {
		jobsLoadShed.WithLabelValues("duplicate").Inc()
		return false
	}

	select {
	case p.jobQueue <- job:
		p.pending[key] = struct{}{}
		jobsSubmitted.Inc()
		return true
	default:
		p.logger.Warnw("Worker queue full, dropping job", "key", key)
		jobsLoadShed.WithLabelValues("full").Inc()
		return false
	}
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

// Scheduled returns the number of jobs waiting on a timer.
func (p *Pool) Scheduled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			p.mu.Lock()
			delete(p.pending, job.Key())
			p.mu.Unlock()
			p.run(id, job)

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) run(id int, job logic.Job) {
	defer func() {
		if r := recover(); r != nil {
			jobsPanicked.Inc()
			p.logger.Errorw("Job panicked", "worker", id, "key", job.Key(), "error", r)
		}
	}()
	job.Run(p.ctx)
	jobsProcessed.Inc()
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}
