package queuectl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/hrnotify/anniversary-notifier/internal/api/respond"
	"github.com/hrnotify/anniversary-notifier/internal/model"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
)

// schedulerService exposes the manual trigger entry points.
type schedulerService interface {
	ScheduleAll(ctx context.Context) (int, error)
	RecoverMissed(ctx context.Context, lookback time.Duration) (int, error)
}

// jobQueue exposes the operator surface of the delayed queue.
type jobQueue interface {
	GetStats(ctx context.Context) (queue.Stats, error)
	FailedJobs(ctx context.Context) ([]queue.Job, error)
	RetryFailed(ctx context.Context, id string) error
	RetryAllFailed(ctx context.Context) (int, error)
	RemoveFailed(ctx context.Context, id string) error
}

type deliveryStats interface {
	Stats(ctx context.Context) (model.DeliveryStats, error)
}

// Handler exposes queue statistics, manual scheduler/recovery triggers
// and failed-job management to operators. Everything here calls straight
// into the scheduling core and returns its raw results.
type Handler struct {
	scheduler  schedulerService
	queue      jobQueue
	deliveries deliveryStats
	lookback   time.Duration
}

// NewHandler creates a new operator Handler.
func NewHandler(s schedulerService, q jobQueue, d deliveryStats, lookback time.Duration) *Handler {
	return &Handler{scheduler: s, queue: q, deliveries: d, lookback: lookback}
}

// GetStats handles HTTP GET requests for queue and delivery statistics.
func (h *Handler) GetStats(c *ginext.Context) {
	qs, err := h.queue.GetStats(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get queue stats")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	ds, err := h.deliveries.Stats(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get delivery stats")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c.Writer, map[string]interface{}{
		"queue":      qs,
		"deliveries": ds,
	})
}

// TriggerScheduler handles HTTP POST requests to run the daily scan now.
func (h *Handler) TriggerScheduler(c *ginext.Context) {
	zlog.Logger.Info().Msg("manual scheduler trigger requested")

	scheduled, err := h.scheduler.ScheduleAll(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to trigger scheduler manually")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c.Writer, map[string]int{"scheduled": scheduled})
}

// TriggerRecovery handles HTTP POST requests to run the recovery pass now.
func (h *Handler) TriggerRecovery(c *ginext.Context) {
	zlog.Logger.Info().Msg("manual recovery trigger requested")

	recovered, err := h.scheduler.RecoverMissed(c.Request.Context(), h.lookback)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to trigger recovery manually")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c.Writer, map[string]int{"recovered": recovered})
}

// GetFailedJobs handles HTTP GET requests listing terminally failed jobs.
func (h *Handler) GetFailedJobs(c *ginext.Context) {
	jobs, err := h.queue.FailedJobs(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get failed jobs")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c.Writer, map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// RetryFailedJob handles HTTP POST requests to re-queue one failed job.
func (h *Handler) RetryFailedJob(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing job id"))
		return
	}

	if err := h.queue.RetryFailed(c.Request.Context(), id); err != nil {
		h.failJobOp(c, id, "retry", err)
		return
	}

	respond.OK(c.Writer, fmt.Sprintf("job %s has been queued for retry", id))
}

// RetryAllFailedJobs handles HTTP POST requests to re-queue every failed job.
func (h *Handler) RetryAllFailedJobs(c *ginext.Context) {
	retried, err := h.queue.RetryAllFailed(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to retry all failed jobs")
		respond.Fail(c.Writer, http.StatusInternalServerError, err)
		return
	}

	respond.OK(c.Writer, map[string]int{"retried": retried})
}

// RemoveFailedJob handles HTTP DELETE requests to drop one failed job.
func (h *Handler) RemoveFailedJob(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing job id"))
		return
	}

	if err := h.queue.RemoveFailed(c.Request.Context(), id); err != nil {
		h.failJobOp(c, id, "remove", err)
		return
	}

	respond.OK(c.Writer, fmt.Sprintf("job %s removed", id))
}

func (h *Handler) failJobOp(c *ginext.Context, id, op string, err error) {
	if errors.Is(err, queue.ErrJobNotFound) {
		respond.Fail(c.Writer, http.StatusNotFound, err)
		return
	}

	if errors.Is(err, queue.ErrJobNotFailed) {
		respond.Fail(c.Writer, http.StatusConflict, err)
		return
	}

	zlog.Logger.Error().Err(err).Str("job_id", id).Msgf("failed to %s job", op)
	respond.Fail(c.Writer, http.StatusInternalServerError, err)
}
