// Package worker runs analysis jobs in the background using goroutines.
//
// Go Pattern: Goroutines and channels are Go's concurrency primitives.
// A goroutine is like a lightweight thread, and channels are typed pipes
// for communication between goroutines.
//
// This worker pool pattern is very common in Go:
// 1. Create a buffered channel as a job queue
// 2. Spawn N worker goroutines that read from the channel
// 3. Send jobs to the channel from your HTTP handlers
// 4. Workers process jobs concurrently
//
// With the default of one worker, analyses run strictly one after another,
// which keeps LLM usage predictable.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/analysis"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
)

// JobType identifies what kind of work a job represents.
type JobType string

const (
	JobAnalysis JobType = "analysis"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = fmt.Errorf("job queue is full; try again later")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = fmt.Errorf("worker pool is shutting down")

// Job represents a unit of work to be processed by a worker.
type Job struct {
	ID        string // the run ID
	SessionID string
	Type      JobType
	CreatedAt time.Time
}

// Analyzer is the orchestrator the pool drives. *analysis.Service
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input, progress analysis.ProgressFunc) *analysis.Outcome
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	// Go Pattern: Channels are the backbone of Go concurrency.
	// This buffered channel acts as our job queue.
	jobs     chan Job
	workers  int
	store    *session.Store
	analyzer Analyzer

	// Go Pattern: sync.WaitGroup tracks running goroutines.
	wg sync.WaitGroup

	// mu guards stopped so Submit never sends on a closed channel.
	mu      sync.RWMutex
	stopped bool

	// Cancelling ctx aborts in-flight LLM calls; Stop only does that when
	// its own deadline passes.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(workers, queueSize int, store *session.Store, analyzer Analyzer) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan Job, queueSize),
		workers:  workers,
		store:    store,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	log.Info().Int("workers", p.workers).Msg("🚀 Starting background workers")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting jobs and waits for the queue to drain. Jobs still
// queued are marked failed; the run in flight finishes normally unless
// ctx expires first, in which case its remaining LLM calls are cancelled.
func (p *Pool) Stop(ctx context.Context) {
	log.Info().Msg("⏹️  Stopping workers...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("⚠️  Shutdown deadline reached, cancelling in-flight analysis")
		p.cancel()
		<-done
	}
	p.cancel()
	log.Info().Msg("✅ All workers stopped")
}

// Submit adds a job to the queue.
// Returns an error if the queue is full (non-blocking).
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	// Go Pattern: `select` with `default` makes channel operations non-blocking.
	// Without default, sending to a full channel would block the HTTP handler.
	select {
	case p.jobs <- job:
		log.Info().Str("job", job.ID).Str("type", string(job.Type)).Msg("📥 Job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueSize returns the current number of jobs in the queue.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log.Debug().Int("worker", id).Msg("👷 Worker started")

	// Go Pattern: `range` over a channel reads values until the channel is
	// closed, which is how Stop lets the queue drain.
	for job := range p.jobs {
		p.mu.RLock()
		stopping := p.stopped
		p.mu.RUnlock()

		if stopping {
			p.fail(job, "server is shutting down")
			continue
		}

		log.Info().Int("worker", id).Str("job", job.ID).Str("type", string(job.Type)).Msg("👷 Processing job")

		var err error
		switch job.Type {
		case JobAnalysis:
			err = p.processAnalysis(job)
		default:
			err = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if err != nil {
			log.Error().Err(err).Int("worker", id).Str("job", job.ID).Msg("❌ Job failed")
			p.fail(job, err.Error())
		} else {
			log.Info().Int("worker", id).Str("job", job.ID).Msg("✅ Job completed")
		}
	}

	log.Debug().Int("worker", id).Msg("👷 Worker stopped")
}

// processAnalysis runs the four analyses for one run and records the
// outcome. Failed kinds do not fail the run.
func (p *Pool) processAnalysis(job Job) (err error) {
	// A panic in a provider SDK must not take the worker down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	run, err := p.store.Get(job.SessionID, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if err := p.store.Update(job.ID, func(r *models.AnalysisRun) {
		r.Status = models.RunRunning
		r.Progress = 0
		r.Stage = "Starting analysis"
	}); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	in := analysis.Input{Text: run.Text, Images: run.Images}
	outcome := p.analyzer.Analyze(p.ctx, in, func(pr analysis.Progress) {
		if err := p.store.Update(job.ID, func(r *models.AnalysisRun) {
			r.Progress = pr.Percent
			r.Stage = pr.Stage
		}); err != nil {
			log.Warn().Err(err).Str("job", job.ID).Msg("⚠️  Failed to record progress")
		}
	})

	now := time.Now()
	return p.store.Update(job.ID, func(r *models.AnalysisRun) {
		r.Bundle = outcome.Bundle
		if len(outcome.Errors) > 0 {
			r.KindErrors = outcome.Errors
		}
		r.Warnings = append(append([]string(nil), r.Warnings...), outcome.Warnings...)
		r.TextTruncated = outcome.TextTruncated
		r.Status = models.RunCompleted
		r.Progress = 100
		r.Stage = "Analysis complete"
		r.CompletedAt = &now
		// The text layer is only needed for prompting.
		r.Text = ""
	})
}

func (p *Pool) fail(job Job, reason string) {
	now := time.Now()
	if err := p.store.Update(job.ID, func(r *models.AnalysisRun) {
		r.Status = models.RunFailed
		r.Error = reason
		r.Stage = ""
		r.CompletedAt = &now
	}); err != nil {
		log.Warn().Err(err).Str("job", job.ID).Msg("⚠️  Failed to mark run as failed")
	}
}
