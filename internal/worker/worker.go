// Package worker runs the consumer side of the delivery queue: a pool of
// goroutines pulling due jobs, delivering messages and recording the
// outcome on the delivery ledger.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/time/rate"

	"github.com/hrnotify/anniversary-notifier/internal/metrics"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
)

const (
	fetchBlock   = 2 * time.Second
	promoteEvery = time.Second
	promoteBatch = 100
)

type jobQueue interface {
	PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error)
	Fetch(ctx context.Context, block time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) (bool, error)
	GetStats(ctx context.Context) (queue.Stats, error)
}

type jobHandler interface {
	HandleJob(ctx context.Context, job *queue.Job) error
}

// Worker is the owned handle for one running worker pool. Construct with
// New, start with Start, and stop with Stop; there is no ambient global
// instance.
type Worker struct {
	queue       jobQueue
	handler     jobHandler
	concurrency int
	limiter     *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a worker pool over the queue. concurrency bounds parallel
// job executions; ratePerSec bounds executions per second across the
// whole pool to protect the delivery endpoint.
func New(q jobQueue, h jobHandler, concurrency, ratePerSec int) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	if ratePerSec <= 0 {
		ratePerSec = 10
	}

	return &Worker{
		queue:       q,
		handler:     h,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Start launches the promoter and the worker goroutines. The pool stops
// when ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.promote(ctx)

	w.wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go w.run(ctx, i)
	}

	zlog.Logger.Info().Int("concurrency", w.concurrency).Msg("message worker started")
}

// Stop shuts the pool down, letting in-flight job executions finish or
// fail naturally.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}

	w.wg.Wait()
	zlog.Logger.Info().Msg("message worker stopped")
}

// promote periodically moves due delayed jobs into the waiting list.
func (w *Worker) promote(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(promoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.PromoteDue(ctx, time.Now(), promoteBatch)
			if err != nil {
				if ctx.Err() == nil {
					zlog.Logger.Error().Err(err).Msg("failed to promote due jobs")
				}
				continue
			}

			if n > 0 {
				zlog.Logger.Debug().Int("count", n).Msg("promoted due jobs")
			}

			w.publishDepth(ctx)
		}
	}
}

// publishDepth samples queue depths into the Prometheus gauges. Piggybacks
// on the promote tick so depth stays fresh without its own loop.
func (w *Worker) publishDepth(ctx context.Context) {
	stats, err := w.queue.GetStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zlog.Logger.Error().Err(err).Msg("failed to sample queue depth")
		}
		return
	}

	metrics.SetQueueDepth(stats.Waiting, stats.Active, stats.Completed, stats.Failed, stats.Delayed)
}

// run is one worker slot: rate-limit, pull the next due job, execute it,
// and report the outcome back to the queue.
func (w *Worker) run(ctx context.Context, slot int) {
	defer w.wg.Done()

	zlog.Logger.Debug().Int("slot", slot).Msg("worker slot started")

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := w.queue.Fetch(ctx, fetchBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			zlog.Logger.Error().Err(err).Msg("failed to fetch job")
			continue
		}

		if job == nil {
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	zlog.Logger.Info().
		Str("job_id", job.ID).
		Int("attempts_made", job.AttemptsMade).
		Msg("processing message delivery job")

	// Once a job is active it must finish or fail naturally: shutdown
	// cancels fetching, not an in-flight delivery or its outcome writes.
	// Otherwise the job would be stranded in the active set with no
	// reclaim path.
	ctx = context.WithoutCancel(ctx)

	if err := w.handler.HandleJob(ctx, job); err != nil {
		retried, failErr := w.queue.Fail(ctx, job, err)
		if failErr != nil {
			zlog.Logger.Error().Err(failErr).Str("job_id", job.ID).Msg("failed to record job failure")
			return
		}

		zlog.Logger.Error().Err(err).
			Str("job_id", job.ID).
			Int("attempts_made", job.AttemptsMade).
			Int("max_attempts", job.MaxAttempts).
			Bool("retry_scheduled", retried).
			Msg("job failed")
		return
	}

	if err := w.queue.Complete(ctx, job); err != nil {
		zlog.Logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to complete job")
		return
	}

	zlog.Logger.Info().Str("job_id", job.ID).Msg("job completed")
}
