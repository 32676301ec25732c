package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the occasion a delivery is for. Kept open so new kinds
// (birthdays etc.) can be added without schema changes.
type MessageType string

const (
	MessageTypeAnniversary MessageType = "ANNIVERSARY"
)

// DeliveryStatus is the state of a delivery record.
//
// PENDING -> SENT is terminal. PENDING -> FAILED may transition back to
// SENT through a fresh delivery attempt; the record is never reopened
// beyond incrementing its attempt count.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

// MessageDelivery is one row of the delivery ledger: a single scheduling
// attempt for (employee, occasion, calendar date). At most one record may
// exist per that triple.
type MessageDelivery struct {
	ID            uuid.UUID      `json:"id"`
	EmployeeID    uuid.UUID      `json:"employee_id"`
	MessageType   MessageType    `json:"message_type"`
	ScheduledDate time.Time      `json:"scheduled_date"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	Status        DeliveryStatus `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	JobID         *string        `json:"job_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DeliveryStats are delivery-record counts by status.
type DeliveryStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// MessagePayload is the body of a queued delivery job.
type MessagePayload struct {
	EmployeeID     uuid.UUID   `json:"employee_id"`
	DeliveryID     uuid.UUID   `json:"delivery_id"`
	MessageType    MessageType `json:"message_type"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	YearsOfService int         `json:"years_of_service"`
	ScheduledTime  string      `json:"scheduled_time"`
}
