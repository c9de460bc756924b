package wave

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool is the bounded CPU worker pool of spec §4.6. Submit is
// fire-and-forget: callers enqueue a Job and continue; every
// completed (or failed/timed-out) job is published on Results unless
// Results is full, in which case the result is dropped with a warning.
// A full queue drops the job rather than blocking the submitter, since wave
// decomposition is a best-effort visualisation feed, never on the
// critical path of a turn.
type Pool struct {
	sem        *semaphore.Weighted
	queue      chan Job
	results    chan Result
	jobTimeout time.Duration
	log        *slog.Logger
}

// NewPool starts a pool with the given concurrency, queue depth, and
// per-job timeout. Call Run in its own goroutine to start draining
// the queue.
func NewPool(concurrency int, queueDepth int, jobTimeout time.Duration, log *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		sem:        semaphore.NewWeighted(int64(concurrency)),
		queue:      make(chan Job, queueDepth),
		results:    make(chan Result, queueDepth),
		jobTimeout: jobTimeout,
		log:        log,
	}
}

// Results returns the channel wave-job completions are published on.
func (p *Pool) Results() <-chan Result { return p.results }

// Submit enqueues a job without blocking. Returns false if the queue
// is full; the caller logs and moves on (spec §4.6: best-effort).
func (p *Pool) Submit(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.log.Warn("wave pool queue full, dropping job",
			"sessionId", job.SessionID, "turnIndex", job.TurnIndex, "sourceSlot", job.SourceSlotId)
		return false
	}
}

// Run drains the queue until ctx is cancelled, dispatching each job to
// a worker goroutine bounded by the pool's semaphore weight.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return
			}
			go p.work(ctx, job)
		}
	}
}

func (p *Pool) work(ctx context.Context, job Job) {
	defer p.sem.Release(1)

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- runJob(job)
	}()

	select {
	case res := <-done:
		p.publish(res)
	case <-jobCtx.Done():
		p.log.Warn("wave job timed out",
			"sessionId", job.SessionID, "turnIndex", job.TurnIndex, "sourceSlot", job.SourceSlotId)
		p.publish(Result{Job: job, Success: false, Error: "wave_error"})
	}
}

func (p *Pool) publish(res Result) {
	select {
	case p.results <- res:
	default:
		p.log.Warn("wave pool results channel full, dropping result",
			"sessionId", res.Job.SessionID, "turnIndex", res.Job.TurnIndex)
	}
}
