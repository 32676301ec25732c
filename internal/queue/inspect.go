package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/zlog"
)

// Stats are queue depths by state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
}

// GetStats returns current queue depths by state.
func (q *Queue) GetStats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("waiting"))
	active := pipe.SCard(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))

	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}

	s := Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed + s.Delayed

	return s, nil
}

// FailedJobs lists terminally failed jobs, oldest failure first, for
// operator inspection.
func (q *Queue) FailedJobs(ctx context.Context) ([]Job, error) {
	ids, err := q.rdb.ZRange(ctx, q.key("failed"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}

			return nil, err
		}

		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// RetryFailed moves a terminally failed job back into the waiting list
// with a fresh attempt budget.
func (q *Queue) RetryFailed(ctx context.Context, id string) error {
	if err := q.requireFailed(ctx, id); err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("failed"), id)
	pipe.HSet(ctx, q.jobKey(id), "state", string(StateWaiting), "attempts", 0)
	pipe.LPush(ctx, q.key("waiting"), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", id, err)
	}

	return nil
}

// RetryAllFailed retries every failed job, skipping (and logging) the
// ones that cannot be moved. Returns how many were re-queued.
func (q *Queue) RetryAllFailed(ctx context.Context) (int, error) {
	ids, err := q.rdb.ZRange(ctx, q.key("failed"), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	retried := 0
	for _, id := range ids {
		if err := q.RetryFailed(ctx, id); err != nil {
			zlog.Logger.Error().Err(err).Str("job_id", id).Msg("failed to retry job")
			continue
		}

		retried++
	}

	return retried, nil
}

// RemoveFailed deletes a terminally failed job entirely.
func (q *Queue) RemoveFailed(ctx context.Context, id string) error {
	if err := q.requireFailed(ctx, id); err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.key("failed"), id)
	pipe.Del(ctx, q.jobKey(id))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}

	return nil
}

func (q *Queue) requireFailed(ctx context.Context, id string) error {
	_, err := q.rdb.ZScore(ctx, q.key("failed"), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			exists, existsErr := q.rdb.Exists(ctx, q.jobKey(id)).Result()
			if existsErr == nil && exists > 0 {
				return ErrJobNotFailed
			}

			return ErrJobNotFound
		}

		return fmt.Errorf("failed to check job %s: %w", id, err)
	}

	return nil
}
