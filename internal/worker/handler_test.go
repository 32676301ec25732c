package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrnotify/anniversary-notifier/internal/model"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
)

type fakeSender struct {
	sent    int
	sendErr error
}

func (f *fakeSender) SendOccasionMessage(ctx context.Context, msgType model.MessageType, employeeID uuid.UUID, firstName, lastName string, yearsOfService int) error {
	if f.sendErr != nil {
		return f.sendErr
	}

	f.sent++

	return nil
}

type statusWrite struct {
	id     uuid.UUID
	status model.DeliveryStatus
	errMsg *string
}

type fakeDeliveryRepo struct {
	writes    []statusWrite
	updateErr error
}

func (f *fakeDeliveryRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error {
	f.writes = append(f.writes, statusWrite{id: id, status: status, errMsg: errMsg})

	return f.updateErr
}

func testJob(t *testing.T, deliveryID uuid.UUID) *queue.Job {
	t.Helper()

	payload, err := json.Marshal(model.MessagePayload{
		EmployeeID:     uuid.New(),
		DeliveryID:     deliveryID,
		MessageType:    model.MessageTypeAnniversary,
		FirstName:      "Maria",
		LastName:       "Silva",
		YearsOfService: 5,
	})
	require.NoError(t, err)

	return &queue.Job{ID: "job-1", Payload: payload, MaxAttempts: 3}
}

func TestHandleJob_Success(t *testing.T) {
	sender := &fakeSender{}
	deliveries := &fakeDeliveryRepo{}
	h := NewHandler(sender, deliveries)

	deliveryID := uuid.New()

	err := h.HandleJob(context.Background(), testJob(t, deliveryID))
	require.NoError(t, err)
	assert.Equal(t, 1, sender.sent)

	require.Len(t, deliveries.writes, 1)
	assert.Equal(t, deliveryID, deliveries.writes[0].id)
	assert.Equal(t, model.DeliveryStatusSent, deliveries.writes[0].status)
	assert.Nil(t, deliveries.writes[0].errMsg)
}

func TestHandleJob_SendFailureMarksFailed(t *testing.T) {
	sendErr := errors.New("webhook returned 500")
	sender := &fakeSender{sendErr: sendErr}
	deliveries := &fakeDeliveryRepo{}
	h := NewHandler(sender, deliveries)

	deliveryID := uuid.New()

	err := h.HandleJob(context.Background(), testJob(t, deliveryID))
	assert.ErrorIs(t, err, sendErr)

	require.Len(t, deliveries.writes, 1)
	assert.Equal(t, model.DeliveryStatusFailed, deliveries.writes[0].status)
	require.NotNil(t, deliveries.writes[0].errMsg)
	assert.Equal(t, sendErr.Error(), *deliveries.writes[0].errMsg)
}

func TestHandleJob_LedgerWriteFailureRetriesJob(t *testing.T) {
	sender := &fakeSender{}
	deliveries := &fakeDeliveryRepo{updateErr: errors.New("db down")}
	h := NewHandler(sender, deliveries)

	// The message went out; the job must still error so the SENT write is
	// retried later.
	err := h.HandleJob(context.Background(), testJob(t, uuid.New()))
	assert.Error(t, err)
	assert.Equal(t, 1, sender.sent)
}

func TestHandleJob_BadPayload(t *testing.T) {
	sender := &fakeSender{}
	deliveries := &fakeDeliveryRepo{}
	h := NewHandler(sender, deliveries)

	err := h.HandleJob(context.Background(), &queue.Job{ID: "job-1", Payload: []byte("not json")})
	assert.Error(t, err)
	assert.Zero(t, sender.sent)
	assert.Empty(t, deliveries.writes)
}
