package employee

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrnotify/anniversary-notifier/internal/model"
	emprepo "github.com/hrnotify/anniversary-notifier/internal/repository/employee"
)

type fakeRepo struct {
	created   []model.Employee
	createID  uuid.UUID
	byID      map[uuid.UUID]model.Employee
	all       []model.Employee
	deleted   []uuid.UUID
	purged    []uuid.UUID
	deleteErr error
}

func (f *fakeRepo) CreateEmployee(ctx context.Context, e model.Employee) (uuid.UUID, error) {
	f.created = append(f.created, e)

	return f.createID, nil
}

func (f *fakeRepo) GetEmployeeByID(ctx context.Context, id uuid.UUID) (model.Employee, error) {
	e, ok := f.byID[id]
	if !ok {
		return model.Employee{}, emprepo.ErrEmployeeNotFound
	}

	return e, nil
}

func (f *fakeRepo) GetAllEmployees(ctx context.Context) ([]model.Employee, error) {
	return f.all, nil
}

func (f *fakeRepo) SoftDeleteEmployee(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.deleted = append(f.deleted, id)

	return nil
}

func (f *fakeRepo) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.purged = append(f.purged, id)

	return nil
}

type fakeDeliveries struct {
	purged []uuid.UUID
}

func (f *fakeDeliveries) DeleteByEmployeeID(ctx context.Context, employeeID uuid.UUID) error {
	f.purged = append(f.purged, employeeID)

	return nil
}

func setupHandler(repo *fakeRepo) *Handler {
	return NewHandler(repo, &fakeDeliveries{}, validator.New())
}

func postCreate(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()

	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/employees", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.Create(c)

	return w
}

func TestHandler_Create_Success(t *testing.T) {
	repo := &fakeRepo{createID: uuid.New()}
	h := setupHandler(repo)

	w := postCreate(t, h, CreateRequest{
		FirstName:       "Maria",
		LastName:        "Silva",
		StartDate:       "2020-10-24",
		Timezone:        "America/Sao_Paulo",
		LocationDisplay: "Sao Paulo, Brazil",
	})

	assert.Equal(t, http.StatusCreated, w.Result().StatusCode)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "Maria", repo.created[0].FirstName)
	assert.Equal(t, "America/Sao_Paulo", repo.created[0].Timezone)
	assert.Nil(t, repo.created[0].BirthDate)
}

func TestHandler_Create_InvalidTimezone(t *testing.T) {
	repo := &fakeRepo{createID: uuid.New()}
	h := setupHandler(repo)

	w := postCreate(t, h, CreateRequest{
		FirstName:       "Maria",
		LastName:        "Silva",
		StartDate:       "2020-10-24",
		Timezone:        "Not/AZone",
		LocationDisplay: "Nowhere",
	})

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	assert.Empty(t, repo.created)
}

func TestHandler_Create_FutureStartDate(t *testing.T) {
	repo := &fakeRepo{createID: uuid.New()}
	h := setupHandler(repo)

	w := postCreate(t, h, CreateRequest{
		FirstName:       "Maria",
		LastName:        "Silva",
		StartDate:       "2999-01-01",
		Timezone:        "America/Sao_Paulo",
		LocationDisplay: "Sao Paulo, Brazil",
	})

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	assert.Empty(t, repo.created)
}

func TestHandler_Create_MissingFields(t *testing.T) {
	repo := &fakeRepo{createID: uuid.New()}
	h := setupHandler(repo)

	w := postCreate(t, h, CreateRequest{FirstName: "Maria"})

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	assert.Empty(t, repo.created)
}

func TestHandler_GetAll(t *testing.T) {
	repo := &fakeRepo{all: []model.Employee{{ID: uuid.New()}, {ID: uuid.New()}}}
	h := setupHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.GetAll(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestHandler_GetByID(t *testing.T) {
	e := model.Employee{ID: uuid.New(), FirstName: "Kenji"}
	repo := &fakeRepo{byID: map[uuid.UUID]model.Employee{e.ID: e}}
	h := setupHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees/"+e.ID.String(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: e.ID.String()}}

	h.GetByID(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestHandler_GetByID_NotFound(t *testing.T) {
	repo := &fakeRepo{byID: map[uuid.UUID]model.Employee{}}
	h := setupHandler(repo)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees/"+id.String(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.GetByID(c)

	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestHandler_GetByID_BadID(t *testing.T) {
	h := setupHandler(&fakeRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/employees/not-a-uuid", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.GetByID(c)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandler_Delete(t *testing.T) {
	repo := &fakeRepo{}
	h := setupHandler(repo)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/employees/"+id.String(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, []uuid.UUID{id}, repo.deleted)
}

func TestHandler_Delete_Purge(t *testing.T) {
	repo := &fakeRepo{}
	deliveries := &fakeDeliveries{}
	h := NewHandler(repo, deliveries, validator.New())

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/employees/"+id.String()+"?purge=true", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, []uuid.UUID{id}, repo.purged)
	assert.Equal(t, []uuid.UUID{id}, deliveries.purged)
	assert.Empty(t, repo.deleted)
}

func TestHandler_Delete_NotFound(t *testing.T) {
	repo := &fakeRepo{deleteErr: emprepo.ErrEmployeeNotFound}
	h := setupHandler(repo)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/employees/"+id.String(), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}
