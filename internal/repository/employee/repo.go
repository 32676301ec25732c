package employee

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

var ErrEmployeeNotFound = errors.New("employee not found")

// Repository provides methods to interact with the employees table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new employee repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

const employeeColumns = `
	id, first_name, last_name, start_date, birth_date,
	timezone, location_display, created_at, updated_at, deleted_at
`

// CreateEmployee inserts a new employee into the database and returns its ID.
func (r *Repository) CreateEmployee(ctx context.Context, e model.Employee) (uuid.UUID, error) {
	query := `
		INSERT INTO employees (
		    first_name, last_name, start_date, birth_date, timezone, location_display
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
    `

	err := r.db.Master.QueryRowContext(
		ctx, query, e.FirstName, e.LastName, e.StartDate, e.BirthDate, e.Timezone, e.LocationDisplay,
	).Scan(&e.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create employee: %w", err)
	}

	return e.ID, nil
}

// GetEmployeeByID retrieves a non-deleted employee by its ID.
func (r *Repository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (model.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE id = $1 AND deleted_at IS NULL;
    `

	var e model.Employee
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.FirstName, &e.LastName, &e.StartDate, &e.BirthDate,
		&e.Timezone, &e.LocationDisplay, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Employee{}, ErrEmployeeNotFound
		}

		return model.Employee{}, fmt.Errorf("failed to get employee: %w", err)
	}

	return e, nil
}

// GetAllEmployees retrieves all non-deleted employees, newest first.
func (r *Repository) GetAllEmployees(ctx context.Context) ([]model.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC;
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get employees: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// FindByAnniversaryDate retrieves all non-deleted employees whose start
// date falls on the given month and day. Soft-deleted employees are never
// selected for scheduling.
func (r *Repository) FindByAnniversaryDate(ctx context.Context, month time.Month, day int) ([]model.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE deleted_at IS NULL
		  AND EXTRACT(MONTH FROM start_date) = $1
		  AND EXTRACT(DAY FROM start_date) = $2;
    `

	rows, err := r.db.QueryContext(ctx, query, int(month), day)
	if err != nil {
		return nil, fmt.Errorf("failed to find employees by anniversary date: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// SoftDeleteEmployee marks an employee as deleted without removing the row.
func (r *Repository) SoftDeleteEmployee(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE employees
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete employee: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrEmployeeNotFound
	}

	return nil
}

// DeleteEmployee removes an employee row entirely. Delivery records are
// cascade-deleted through the foreign key.
func (r *Repository) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM employees
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrEmployeeNotFound
	}

	return nil
}

func scanEmployees(rows *sql.Rows) ([]model.Employee, error) {
	var employees []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(
			&e.ID, &e.FirstName, &e.LastName, &e.StartDate, &e.BirthDate,
			&e.Timezone, &e.LocationDisplay, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
		); err != nil {
			return nil, err
		}

		employees = append(employees, e)
	}

	return employees, rows.Err()
}
