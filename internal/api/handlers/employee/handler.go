package employee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/hrnotify/anniversary-notifier/internal/api/respond"
	"github.com/hrnotify/anniversary-notifier/internal/model"
	emprepo "github.com/hrnotify/anniversary-notifier/internal/repository/employee"
)

const dateLayout = "2006-01-02"

// employeeRepository defines the interface that the Handler depends on.
type employeeRepository interface {
	CreateEmployee(ctx context.Context, e model.Employee) (uuid.UUID, error)
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (model.Employee, error)
	GetAllEmployees(ctx context.Context) ([]model.Employee, error)
	SoftDeleteEmployee(ctx context.Context, id uuid.UUID) error
	DeleteEmployee(ctx context.Context, id uuid.UUID) error
}

type deliveryRepository interface {
	DeleteByEmployeeID(ctx context.Context, employeeID uuid.UUID) error
}

// Handler handles HTTP requests for the employee CRUD surface.
type Handler struct {
	repo       employeeRepository
	deliveries deliveryRepository
	validator  *validator.Validate
}

// NewHandler creates a new Handler instance.
func NewHandler(repo employeeRepository, deliveries deliveryRepository, v *validator.Validate) *Handler {
	return &Handler{repo: repo, deliveries: deliveries, validator: v}
}

// CreateRequest represents the JSON body expected when creating an employee.
//
// The timezone rule rejects anything time.LoadLocation cannot resolve, so
// invalid IANA zones never reach the scheduling core.
type CreateRequest struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	StartDate       string `json:"start_date" validate:"required"`
	BirthDate       string `json:"birth_date" validate:"omitempty"`
	Timezone        string `json:"timezone" validate:"required,timezone"`
	LocationDisplay string `json:"location_display" validate:"required,max=255"`
}

// Create handles HTTP POST requests to register a new employee.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	startDate, err := parsePastDate(req.StartDate)
	if err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid start_date: %w", err))
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		bd, err := parsePastDate(req.BirthDate)
		if err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid birth_date: %w", err))
			return
		}
		birthDate = &bd
	}

	e := model.Employee{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		StartDate:       startDate,
		BirthDate:       birthDate,
		Timezone:        req.Timezone,
		LocationDisplay: req.LocationDisplay,
	}

	id, err := h.repo.CreateEmployee(c.Request.Context(), e)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to create employee")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, id)
}

// GetAll handles HTTP GET requests to list all employees.
func (h *Handler) GetAll(c *ginext.Context) {
	employees, err := h.repo.GetAllEmployees(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get employees")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, employees)
}

// GetByID handles HTTP GET requests to fetch a single employee.
func (h *Handler) GetByID(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	e, err := h.repo.GetEmployeeByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, emprepo.ErrEmployeeNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("employee not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get employee")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, e)
}

// Delete handles HTTP DELETE requests. By default employees are
// soft-deleted so history stays intact; soft-deleted employees are
// excluded from all scheduling queries. With ?purge=true the row and its
// delivery records are removed entirely.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if c.Request.URL.Query().Get("purge") == "true" {
		if err := h.deliveries.DeleteByEmployeeID(ctx, id); err != nil {
			zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to purge delivery records")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			return
		}

		if err := h.repo.DeleteEmployee(ctx, id); err != nil {
			if errors.Is(err, emprepo.ErrEmployeeNotFound) {
				respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("employee not found"))
				return
			}

			zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to purge employee")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			return
		}

		respond.OK(c.Writer, "employee purged")
		return
	}

	if err := h.repo.SoftDeleteEmployee(ctx, id); err != nil {
		if errors.Is(err, emprepo.ErrEmployeeNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("employee not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to delete employee")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, "employee deleted")
}

func (h *Handler) parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("id", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	return id, true
}

func parsePastDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be in YYYY-MM-DD format")
	}

	if d.After(time.Now()) {
		return time.Time{}, fmt.Errorf("must not be in the future")
	}

	return d, nil
}
