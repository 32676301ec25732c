package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/hrnotify/anniversary-notifier/internal/clock"
	"github.com/hrnotify/anniversary-notifier/internal/metrics"
	"github.com/hrnotify/anniversary-notifier/internal/model"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
	"github.com/hrnotify/anniversary-notifier/internal/repository/employee"
)

const (
	dailyLockKey    = "scheduler:daily-messages"
	recoveryLockKey = "scheduler:recovery"
)

type employeeRepository interface {
	FindByAnniversaryDate(ctx context.Context, month time.Month, day int) ([]model.Employee, error)
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (model.Employee, error)
}

type deliveryRepository interface {
	CreateDelivery(ctx context.Context, d model.MessageDelivery) (uuid.UUID, error)
	Exists(ctx context.Context, employeeID uuid.UUID, msgType model.MessageType, date time.Time) (bool, error)
	FindPendingMissed(ctx context.Context, lookback time.Duration) ([]model.MessageDelivery, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, id string, payload []byte, runAt time.Time) (*queue.Job, bool, error)
}

type locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Config holds scheduling parameters.
type Config struct {
	TargetHour      int           // local wall-clock send hour
	LockTTL         time.Duration // daily-scan lock
	RecoveryLockTTL time.Duration // recovery lock
}

// Service runs the daily anniversary scan and the missed-delivery
// recovery pass. Both routines take a cluster-wide lock first, so at most
// one instance runs each of them at a time.
type Service struct {
	employees  employeeRepository
	deliveries deliveryRepository
	queue      jobQueue
	locks      locker
	cfg        Config

	now func() time.Time
}

// NewService creates a new scheduler service.
func NewService(employees employeeRepository, deliveries deliveryRepository, q jobQueue, locks locker, cfg Config) *Service {
	if cfg.TargetHour <= 0 {
		cfg.TargetHour = 9
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.RecoveryLockTTL <= 0 {
		cfg.RecoveryLockTTL = 10 * time.Minute
	}

	return &Service{
		employees:  employees,
		deliveries: deliveries,
		queue:      q,
		locks:      locks,
		cfg:        cfg,
		now:        time.Now,
	}
}

// jobID builds the idempotency key that collapses duplicate enqueues of
// the same occasion for the same employee at the same target instant.
func jobID(msgType model.MessageType, employeeID uuid.UUID, target time.Time) string {
	return fmt.Sprintf("%s-%s-%d", msgType, employeeID, target.UnixMilli())
}

// ScheduleAll runs the daily scan under the cluster-wide scheduling lock.
// When another instance holds the lock the cycle is skipped and zero is
// returned; lock contention is not an error.
func (s *Service) ScheduleAll(ctx context.Context) (int, error) {
	scheduled := 0

	ok, err := s.locks.WithLock(ctx, dailyLockKey, s.cfg.LockTTL, func(ctx context.Context) error {
		zlog.Logger.Info().Msg("running daily message scheduler")

		n, err := s.scheduleAnniversaries(ctx)
		scheduled = n
		if err != nil {
			return err
		}

		zlog.Logger.Info().Int("scheduled", n).Msg("daily message scheduling completed")
		return nil
	})
	if err != nil {
		return scheduled, err
	}

	if !ok {
		zlog.Logger.Warn().Msg("could not acquire lock for daily scheduler - another instance is running")
		return 0, nil
	}

	return scheduled, nil
}

// scheduleAnniversaries scans for employees whose start date falls on
// today's UTC month/day and schedules one delivery each. Employees are
// processed independently: one failure is logged and skipped, never
// aborting the batch.
func (s *Service) scheduleAnniversaries(ctx context.Context) (int, error) {
	now := s.now()
	month, day := clock.MonthDay(now)

	employees, err := s.employees.FindByAnniversaryDate(ctx, month, day)
	if err != nil {
		return 0, fmt.Errorf("find employees by anniversary date: %w", err)
	}

	zlog.Logger.Info().
		Int("count", len(employees)).
		Int("month", int(month)).
		Int("day", day).
		Msg("found employees with anniversaries today")

	y, m, d := now.UTC().Date()
	scheduledDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	scheduled := 0
	for _, e := range employees {
		created, err := s.scheduleOne(ctx, e, scheduledDate, now)
		if err != nil {
			zlog.Logger.Error().Err(err).
				Str("employee_id", e.ID.String()).
				Str("employee_name", e.FullName()).
				Msg("failed to schedule anniversary message")
			continue
		}

		if !created {
			continue
		}

		metrics.MessagesScheduled.Inc()
		scheduled++
	}

	return scheduled, nil
}

// scheduleOne creates the ledger row and queues the delivery job for one
// employee. Returns false without error when a record for today already
// exists.
func (s *Service) scheduleOne(ctx context.Context, e model.Employee, scheduledDate, now time.Time) (bool, error) {
	target, err := clock.TargetInstant(now, e.Timezone, s.cfg.TargetHour)
	if err != nil {
		return false, fmt.Errorf("compute target instant: %w", err)
	}

	exists, err := s.deliveries.Exists(ctx, e.ID, model.MessageTypeAnniversary, scheduledDate)
	if err != nil {
		return false, fmt.Errorf("check existing delivery: %w", err)
	}

	if exists {
		zlog.Logger.Debug().
			Str("employee_id", e.ID.String()).
			Time("scheduled_date", scheduledDate).
			Msg("anniversary message already scheduled")
		return false, nil
	}

	years := clock.YearsOfService(e.StartDate, now)
	id := jobID(model.MessageTypeAnniversary, e.ID, target)

	deliveryID, err := s.deliveries.CreateDelivery(ctx, model.MessageDelivery{
		EmployeeID:    e.ID,
		MessageType:   model.MessageTypeAnniversary,
		ScheduledDate: scheduledDate,
		ScheduledTime: target,
		JobID:         &id,
	})
	if err != nil {
		return false, fmt.Errorf("create delivery record: %w", err)
	}

	payload, err := json.Marshal(model.MessagePayload{
		EmployeeID:     e.ID,
		DeliveryID:     deliveryID,
		MessageType:    model.MessageTypeAnniversary,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		YearsOfService: years,
		ScheduledTime:  target.Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("marshal job payload: %w", err)
	}

	if _, _, err := s.queue.Enqueue(ctx, id, payload, target); err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	metrics.JobsEnqueued.Inc()

	zlog.Logger.Info().
		Str("employee_id", e.ID.String()).
		Str("employee_name", e.FullName()).
		Int("years_of_service", years).
		Time("scheduled_time", target).
		Str("timezone", e.Timezone).
		Str("job_id", id).
		Msg("anniversary message scheduled")

	return true, nil
}

// RecoverMissed re-queues PENDING or FAILED deliveries whose scheduled
// time fell inside the lookback window, for immediate redelivery. Runs
// under its own lock; contention skips the cycle and returns zero.
func (s *Service) RecoverMissed(ctx context.Context, lookback time.Duration) (int, error) {
	recovered := 0

	ok, err := s.locks.WithLock(ctx, recoveryLockKey, s.cfg.RecoveryLockTTL, func(ctx context.Context) error {
		zlog.Logger.Info().Dur("lookback", lookback).Msg("starting message recovery")

		missed, err := s.deliveries.FindPendingMissed(ctx, lookback)
		if err != nil {
			return fmt.Errorf("find missed deliveries: %w", err)
		}

		zlog.Logger.Info().Int("count", len(missed)).Msg("found missed message deliveries")

		for _, d := range missed {
			if err := s.recoverOne(ctx, d); err != nil {
				if errors.Is(err, employee.ErrEmployeeNotFound) {
					zlog.Logger.Debug().
						Str("delivery_id", d.ID.String()).
						Msg("skipping recovery for deleted employee")
					continue
				}

				zlog.Logger.Error().Err(err).
					Str("delivery_id", d.ID.String()).
					Msg("failed to recover missed message")
				continue
			}

			metrics.MessagesRecovered.Inc()
			recovered++
		}

		zlog.Logger.Info().Int("recovered", recovered).Int("total", len(missed)).Msg("message recovery completed")
		return nil
	})
	if err != nil {
		return recovered, err
	}

	if !ok {
		zlog.Logger.Warn().Msg("could not acquire lock for recovery - another instance is running")
		return 0, nil
	}

	return recovered, nil
}

func (s *Service) recoverOne(ctx context.Context, d model.MessageDelivery) error {
	e, err := s.employees.GetEmployeeByID(ctx, d.EmployeeID)
	if err != nil {
		// Missing and soft-deleted employees both surface as not found.
		return err
	}

	now := s.now()
	years := clock.YearsOfService(e.StartDate, now)

	// Recovered messages go out as soon as possible; the old target
	// instant is deliberately not re-honored.
	id := jobID(d.MessageType, e.ID, now)

	payload, err := json.Marshal(model.MessagePayload{
		EmployeeID:     e.ID,
		DeliveryID:     d.ID,
		MessageType:    d.MessageType,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		YearsOfService: years,
		ScheduledTime:  d.ScheduledTime.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	job, _, err := s.queue.Enqueue(ctx, id, payload, now)
	if err != nil {
		return fmt.Errorf("enqueue recovery job: %w", err)
	}
	metrics.JobsEnqueued.Inc()

	zlog.Logger.Info().
		Str("delivery_id", d.ID.String()).
		Str("employee_id", e.ID.String()).
		Str("message_type", string(d.MessageType)).
		Time("original_scheduled_time", d.ScheduledTime).
		Str("job_id", job.ID).
		Msg("missed message recovered and re-queued")

	return nil
}
