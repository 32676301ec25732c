package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/hrnotify/anniversary-notifier/internal/metrics"
	"github.com/hrnotify/anniversary-notifier/internal/model"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
)

type messageSender interface {
	SendOccasionMessage(ctx context.Context, msgType model.MessageType, employeeID uuid.UUID, firstName, lastName string, yearsOfService int) error
}

type deliveryRepository interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error
}

// Handler executes one delivery job: build and send the message, then
// record the outcome on the delivery ledger.
//
// Per job execution the side effects are exactly one delivery attempt and
// one delivery-record status write; retries are the queue's business.
type Handler struct {
	messages   messageSender
	deliveries deliveryRepository
}

// NewHandler creates a new job handler.
func NewHandler(messages messageSender, deliveries deliveryRepository) *Handler {
	return &Handler{messages: messages, deliveries: deliveries}
}

// HandleJob processes a single queued delivery. A returned error signals
// the queue to apply its retry/backoff policy.
func (h *Handler) HandleJob(ctx context.Context, job *queue.Job) error {
	var p model.MessagePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal job payload: %w", err)
	}

	start := time.Now()
	err := h.messages.SendOccasionMessage(ctx, p.MessageType, p.EmployeeID, p.FirstName, p.LastName, p.YearsOfService)
	if err != nil {
		metrics.MessagesFailed.Inc()

		msg := err.Error()
		if updErr := h.deliveries.UpdateStatus(ctx, p.DeliveryID, model.DeliveryStatusFailed, &msg); updErr != nil {
			zlog.Logger.Error().Err(updErr).
				Str("delivery_id", p.DeliveryID.String()).
				Msg("failed to mark delivery failed")
		}

		return err
	}

	metrics.MessagesDelivered.Inc()
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err := h.deliveries.UpdateStatus(ctx, p.DeliveryID, model.DeliveryStatusSent, nil); err != nil {
		// The message went out but the ledger write failed; surface the
		// error so the queue retries and the record eventually reads SENT.
		// Delivery stays at-least-once.
		return fmt.Errorf("mark delivery sent: %w", err)
	}

	zlog.Logger.Info().
		Str("job_id", job.ID).
		Str("employee_id", p.EmployeeID.String()).
		Str("delivery_id", p.DeliveryID.String()).
		Str("message_type", string(p.MessageType)).
		Msg("message delivered successfully")

	return nil
}
