package employee

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/dbpg"

	"github.com/hrnotify/anniversary-notifier/internal/model"
)

func setupMockDB(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}

	wrappedDB := &dbpg.DB{Master: db}
	repo := NewRepository(wrappedDB)

	return repo, mock
}

func employeeRows(employees ...model.Employee) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "start_date", "birth_date",
		"timezone", "location_display", "created_at", "updated_at", "deleted_at",
	})
	for _, e := range employees {
		rows.AddRow(
			e.ID, e.FirstName, e.LastName, e.StartDate, e.BirthDate,
			e.Timezone, e.LocationDisplay, e.CreatedAt, e.UpdatedAt, e.DeletedAt,
		)
	}

	return rows
}

func TestCreateEmployee(t *testing.T) {
	repo, mock := setupMockDB(t)

	employeeID := uuid.New()
	e := model.Employee{
		FirstName:       "Maria",
		LastName:        "Silva",
		StartDate:       time.Date(2020, 10, 24, 0, 0, 0, 0, time.UTC),
		Timezone:        "America/Sao_Paulo",
		LocationDisplay: "Sao Paulo, Brazil",
	}

	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO employees (
		    first_name, last_name, start_date, birth_date, timezone, location_display
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
    `)).
		WithArgs(e.FirstName, e.LastName, e.StartDate, e.BirthDate, e.Timezone, e.LocationDisplay).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(employeeID))

	id, err := repo.CreateEmployee(context.Background(), e)
	assert.NoError(t, err)
	assert.Equal(t, employeeID, id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmployeeByID(t *testing.T) {
	repo, mock := setupMockDB(t)

	e := model.Employee{
		ID:              uuid.New(),
		FirstName:       "Kenji",
		LastName:        "Tanaka",
		StartDate:       time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC),
		Timezone:        "Asia/Tokyo",
		LocationDisplay: "Tokyo, Japan",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	query := regexp.QuoteMeta(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE id = $1 AND deleted_at IS NULL;
    `)

	mock.ExpectQuery(query).WithArgs(e.ID).WillReturnRows(employeeRows(e))

	got, err := repo.GetEmployeeByID(context.Background(), e.ID)
	assert.NoError(t, err)
	assert.Equal(t, e.FirstName, got.FirstName)
	assert.Equal(t, e.Timezone, got.Timezone)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(query).WithArgs(e.ID).WillReturnError(sql.ErrNoRows)

	_, err = repo.GetEmployeeByID(context.Background(), e.ID)
	assert.ErrorIs(t, err, ErrEmployeeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllEmployees(t *testing.T) {
	repo, mock := setupMockDB(t)

	e1 := model.Employee{ID: uuid.New(), FirstName: "Ana", LastName: "Lopez", Timezone: "Europe/Madrid"}
	e2 := model.Employee{ID: uuid.New(), FirstName: "Tom", LastName: "Baker", Timezone: "Europe/London"}

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC;
    `)).WillReturnRows(employeeRows(e1, e2))

	list, err := repo.GetAllEmployees(context.Background())
	assert.NoError(t, err)
	assert.Len(t, list, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByAnniversaryDate(t *testing.T) {
	repo, mock := setupMockDB(t)

	e := model.Employee{
		ID:        uuid.New(),
		FirstName: "Maria",
		LastName:  "Silva",
		StartDate: time.Date(2020, 10, 24, 0, 0, 0, 0, time.UTC),
		Timezone:  "America/Sao_Paulo",
	}

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE deleted_at IS NULL
		  AND EXTRACT(MONTH FROM start_date) = $1
		  AND EXTRACT(DAY FROM start_date) = $2;
    `)).
		WithArgs(10, 24).
		WillReturnRows(employeeRows(e))

	list, err := repo.FindByAnniversaryDate(context.Background(), time.October, 24)
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteEmployee(t *testing.T) {
	repo, mock := setupMockDB(t)

	id := uuid.New()
	query := regexp.QuoteMeta(`
		UPDATE employees
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL;
    `)

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SoftDeleteEmployee(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SoftDeleteEmployee(context.Background(), id)
	assert.ErrorIs(t, err, ErrEmployeeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEmployee(t *testing.T) {
	repo, mock := setupMockDB(t)

	id := uuid.New()
	query := regexp.QuoteMeta(`
		DELETE FROM employees
		WHERE id = $1;
    `)

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteEmployee(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(query).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.DeleteEmployee(context.Background(), id)
	assert.ErrorIs(t, err, ErrEmployeeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
