// Package queue implements a durable delayed job queue on Redis.
//
// Jobs are keyed by a caller-supplied idempotency key, so repeated
// enqueues of the same semantic job collapse into a single entry. Due
// jobs are promoted from a delayed set into a waiting list, pulled by
// workers, and finished into completed or failed sets with bounded
// retention. Failed runs are retried with exponential backoff up to a
// configured attempt cap.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrnotify/anniversary-notifier/internal/clock"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotFailed = errors.New("job is not in failed state")
)

// State is the lifecycle state of a queued job.
type State string

const (
	StateDelayed   State = "delayed"
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is the queue-side handle for a unit of work. Internal logic never
// depends on raw Redis shapes; this is the boundary type.
type Job struct {
	ID           string    `json:"id"`
	Payload      []byte    `json:"payload"`
	State        State     `json:"state"`
	AttemptsMade int       `json:"attempts_made"`
	MaxAttempts  int       `json:"max_attempts"`
	RunAt        time.Time `json:"run_at"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Retention bounds how many finished jobs stay around and for how long.
type Retention struct {
	MaxAge   time.Duration
	MaxCount int64
}

// Options configures retry and retention behavior for a queue.
type Options struct {
	MaxAttempts   int           // total runs per job, including the first
	BackoffDelay  time.Duration // base retry delay, doubled per attempt
	KeepCompleted Retention
	KeepFailed    Retention
}

// Queue is a named delayed job queue over a shared Redis deployment.
type Queue struct {
	rdb  *redis.Client
	name string
	opts Options
}

// New creates a queue with the given name and options. Zero option values
// fall back to defaults (3 attempts, 5s backoff base, completed kept for
// 24h/1000 entries, failed kept for 7d/5000 entries).
func New(rdb *redis.Client, name string, opts Options) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffDelay <= 0 {
		opts.BackoffDelay = 5 * time.Second
	}
	if opts.KeepCompleted == (Retention{}) {
		opts.KeepCompleted = Retention{MaxAge: 24 * time.Hour, MaxCount: 1000}
	}
	if opts.KeepFailed == (Retention{}) {
		opts.KeepFailed = Retention{MaxAge: 7 * 24 * time.Hour, MaxCount: 5000}
	}

	return &Queue{rdb: rdb, name: name, opts: opts}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) key(part string) string {
	return "queue:" + q.name + ":" + part
}

func (q *Queue) jobKey(id string) string {
	return "queue:" + q.name + ":job:" + id
}

// Enqueue adds a job identified by its idempotency key, to run at runAt.
// If a job with the same key already exists in any state, the existing
// job is returned unchanged and created is false.
func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte, runAt time.Time) (job *Job, created bool, err error) {
	exists, err := q.rdb.Exists(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check job existence: %w", err)
	}

	if exists > 0 {
		existing, err := q.loadJob(ctx, id)
		if err != nil {
			return nil, false, err
		}

		return existing, false, nil
	}

	now := time.Now()
	state := StateWaiting
	if clock.DelayUntil(runAt, now) > 0 {
		state = StateDelayed
	}

	job = &Job{
		ID:          id,
		Payload:     payload,
		State:       state,
		MaxAttempts: q.opts.MaxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), map[string]interface{}{
		"payload":      payload,
		"state":        string(state),
		"attempts":     0,
		"max_attempts": q.opts.MaxAttempts,
		"run_at":       runAt.UnixMilli(),
		"created_at":   now.UnixMilli(),
	})

	if state == StateDelayed {
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
	} else {
		pipe.LPush(ctx, q.key("waiting"), id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, true, nil
}

// PromoteDue moves jobs whose run-at time has passed from the delayed set
// into the waiting list, oldest first, up to limit. Returns how many jobs
// were promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(now.UnixMilli(), 10),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due jobs: %w", err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, q.key("waiting"), id)
		pipe.ZRem(ctx, q.key("delayed"), id)
		pipe.HSet(ctx, q.jobKey(id), "state", string(StateWaiting))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to promote due jobs: %w", err)
	}

	return len(ids), nil
}

// Fetch blocks up to the given duration for the next waiting job, marks
// it active and counts the attempt. Returns (nil, nil) when the wait
// times out with nothing to do.
func (q *Queue) Fetch(ctx context.Context, block time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, block, q.key("waiting")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to pop waiting job: %w", err)
	}

	if len(res) != 2 {
		return nil, nil
	}

	id := res[1]

	pipe := q.rdb.TxPipeline()
	pipe.SAdd(ctx, q.key("active"), id)
	pipe.HSet(ctx, q.jobKey(id), "state", string(StateActive))
	pipe.HIncrBy(ctx, q.jobKey(id), "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to activate job %s: %w", id, err)
	}

	return q.loadJob(ctx, id)
}

// Complete finishes a job successfully and applies completed-set retention.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := time.Now()

	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID), "state", string(StateCompleted))
	pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	job.State = StateCompleted

	return q.trim(ctx, "completed", q.opts.KeepCompleted, now)
}

// Fail records a failed run. While the attempt cap is not exhausted the
// job is re-delayed with exponential backoff and retried is true; after
// the final attempt it lands in the failed set (with retention applied)
// until an operator retries or removes it.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (retried bool, err error) {
	now := time.Now()
	msg := cause.Error()

	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, q.key("active"), job.ID)
	pipe.HSet(ctx, q.jobKey(job.ID), "error", msg)

	if job.AttemptsMade < job.MaxAttempts {
		delay := q.opts.BackoffDelay << (job.AttemptsMade - 1)
		runAt := now.Add(delay)

		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(StateDelayed), "run_at", runAt.UnixMilli())
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
		}

		job.State = StateDelayed
		job.RunAt = runAt
		job.LastError = msg

		return true, nil
	}

	pipe.HSet(ctx, q.jobKey(job.ID), "state", string(StateFailed))
	pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}

	job.State = StateFailed
	job.LastError = msg

	if err := q.trim(ctx, "failed", q.opts.KeepFailed, now); err != nil {
		return false, err
	}

	return false, nil
}

// trim evicts finished jobs beyond the retention bounds, oldest first,
// deleting their hashes along the way.
func (q *Queue) trim(ctx context.Context, part string, ret Retention, now time.Time) error {
	key := q.key(part)

	var evict []string

	if ret.MaxAge > 0 {
		cutoff := strconv.FormatInt(now.Add(-ret.MaxAge).UnixMilli(), 10)
		old, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
		if err != nil {
			return fmt.Errorf("failed to list expired %s jobs: %w", part, err)
		}
		evict = append(evict, old...)
	}

	if ret.MaxCount > 0 {
		total, err := q.rdb.ZCard(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to count %s jobs: %w", part, err)
		}

		if over := total - ret.MaxCount; over > 0 {
			oldest, err := q.rdb.ZRange(ctx, key, 0, over-1).Result()
			if err != nil {
				return fmt.Errorf("failed to list oldest %s jobs: %w", part, err)
			}
			evict = append(evict, oldest...)
		}
	}

	if len(evict) == 0 {
		return nil
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range evict {
		pipe.ZRem(ctx, key, id)
		pipe.Del(ctx, q.jobKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to evict %s jobs: %w", part, err)
	}

	return nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	runAtMs, _ := strconv.ParseInt(fields["run_at"], 10, 64)
	createdMs, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	return &Job{
		ID:           id,
		Payload:      []byte(fields["payload"]),
		State:        State(fields["state"]),
		AttemptsMade: attempts,
		MaxAttempts:  maxAttempts,
		RunAt:        time.UnixMilli(runAtMs),
		LastError:    fields["error"],
		CreatedAt:    time.UnixMilli(createdMs),
	}, nil
}
