package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/hrnotify/anniversary-notifier/internal/model"
)

var ErrDeliveryNotFound = errors.New("delivery record not found")

// Repository provides methods to interact with the message_deliveries
// table, the ledger of one scheduling attempt per (employee, occasion,
// date). Rows are created by the scheduler and recovery routines and
// mutated only by the worker.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new delivery repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

const deliveryColumns = `
	id, employee_id, message_type, scheduled_date, scheduled_time, status,
	attempt_count, last_attempt_at, sent_at, error_message, job_id, created_at
`

// CreateDelivery inserts a new PENDING delivery record and returns its ID.
func (r *Repository) CreateDelivery(ctx context.Context, d model.MessageDelivery) (uuid.UUID, error) {
	query := `
		INSERT INTO message_deliveries (
		    employee_id, message_type, scheduled_date, scheduled_time, status, job_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
    `

	err := r.db.Master.QueryRowContext(
		ctx, query, d.EmployeeID, d.MessageType, d.ScheduledDate, d.ScheduledTime,
		model.DeliveryStatusPending, d.JobID,
	).Scan(&d.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create delivery record: %w", err)
	}

	return d.ID, nil
}

// UpdateStatus records the outcome of a delivery attempt. Every call
// stamps last_attempt_at and increments attempt_count; SENT additionally
// stamps sent_at. errMsg may be nil.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, errMsg *string) error {
	query := `
		UPDATE message_deliveries
		SET status = $1,
		    last_attempt_at = now(),
		    attempt_count = attempt_count + 1,
		    sent_at = CASE WHEN $1 = 'SENT' THEN now() ELSE sent_at END,
		    error_message = COALESCE($2, error_message)
		WHERE id = $3;
    `

	res, err := r.db.ExecContext(ctx, query, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrDeliveryNotFound
	}

	return nil
}

// GetDeliveryByID retrieves a delivery record by its ID.
func (r *Repository) GetDeliveryByID(ctx context.Context, id uuid.UUID) (model.MessageDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM message_deliveries
		WHERE id = $1;
    `

	var d model.MessageDelivery
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.EmployeeID, &d.MessageType, &d.ScheduledDate, &d.ScheduledTime, &d.Status,
		&d.AttemptCount, &d.LastAttemptAt, &d.SentAt, &d.ErrorMessage, &d.JobID, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MessageDelivery{}, ErrDeliveryNotFound
		}

		return model.MessageDelivery{}, fmt.Errorf("failed to get delivery record: %w", err)
	}

	return d, nil
}

// Exists reports whether a delivery record already exists for the given
// employee, occasion and calendar date. This is the duplicate-prevention
// guard for repeated scheduler runs on the same day.
func (r *Repository) Exists(ctx context.Context, employeeID uuid.UUID, msgType model.MessageType, date time.Time) (bool, error) {
	query := `
		SELECT count(*)
		FROM message_deliveries
		WHERE employee_id = $1 AND message_type = $2 AND scheduled_date = $3;
    `

	var count int
	err := r.db.Master.QueryRowContext(ctx, query, employeeID, msgType, date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery existence: %w", err)
	}

	return count > 0, nil
}

// FindPendingMissed retrieves PENDING or FAILED records whose scheduled
// time lies within [now-lookback, now], oldest first.
func (r *Repository) FindPendingMissed(ctx context.Context, lookback time.Duration) ([]model.MessageDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM message_deliveries
		WHERE status IN ('PENDING', 'FAILED')
		  AND scheduled_time <= now()
		  AND scheduled_time >= now() - make_interval(secs => $1)
		ORDER BY scheduled_time ASC;
    `

	rows, err := r.db.QueryContext(ctx, query, lookback.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to find missed deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []model.MessageDelivery
	for rows.Next() {
		var d model.MessageDelivery
		if err := rows.Scan(
			&d.ID, &d.EmployeeID, &d.MessageType, &d.ScheduledDate, &d.ScheduledTime, &d.Status,
			&d.AttemptCount, &d.LastAttemptAt, &d.SentAt, &d.ErrorMessage, &d.JobID, &d.CreatedAt,
		); err != nil {
			return nil, err
		}

		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// DeleteByEmployeeID removes all delivery records for an employee. Used
// when an employee row is purged, not on soft delete.
func (r *Repository) DeleteByEmployeeID(ctx context.Context, employeeID uuid.UUID) error {
	query := `
		DELETE FROM message_deliveries
		WHERE employee_id = $1;
    `

	if _, err := r.db.ExecContext(ctx, query, employeeID); err != nil {
		return fmt.Errorf("failed to delete delivery records: %w", err)
	}

	return nil
}

// Stats returns delivery-record counts grouped by status.
func (r *Repository) Stats(ctx context.Context) (model.DeliveryStats, error) {
	query := `
		SELECT
		    count(*),
		    count(*) FILTER (WHERE status = 'SENT'),
		    count(*) FILTER (WHERE status = 'FAILED'),
		    count(*) FILTER (WHERE status = 'PENDING')
		FROM message_deliveries;
    `

	var s model.DeliveryStats
	err := r.db.Master.QueryRowContext(ctx, query).Scan(&s.Total, &s.Sent, &s.Failed, &s.Pending)
	if err != nil {
		return model.DeliveryStats{}, fmt.Errorf("failed to get delivery stats: %w", err)
	}

	return s, nil
}
