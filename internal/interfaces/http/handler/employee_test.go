package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/gateway"
	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmployees is an in-memory EmployeeService
type fakeEmployees struct {
	mu     sync.Mutex
	byID   map[string]roster.Employee
	nextID int
	forced []bool
	err    error
}

func newFakeEmployees() *fakeEmployees {
	return &fakeEmployees{
		byID:   map[string]roster.Employee{"1": {ID: "1", Code: "jdoe", FullName: "John Doe", Status: roster.StatusActive}},
		nextID: 100,
	}
}

func (f *fakeEmployees) List(_ context.Context, force bool) ([]roster.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = append(f.forced, force)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]roster.Employee, 0, len(f.byID))
	for _, e := range f.byID {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEmployees) Get(_ context.Context, id string) (roster.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return roster.Employee{}, fmt.Errorf("employee %s: %w", id, shared.ErrNotFound)
	}
	return e, nil
}

func (f *fakeEmployees) Create(_ context.Context, d gateway.EmployeeDraft) (roster.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return roster.Employee{}, f.err
	}
	f.nextID++
	e := roster.Employee{ID: roster.ID(fmt.Sprint(f.nextID)), Code: d.Code, FullName: d.FullName, Status: roster.StatusActive}
	f.byID[e.ID.String()] = e
	return e, nil
}

func (f *fakeEmployees) Update(_ context.Context, id string, d gateway.EmployeeDraft) (roster.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return roster.Employee{}, f.err
	}
	e, ok := f.byID[id]
	if !ok {
		return roster.Employee{}, &gateway.MutationError{Op: gateway.OpUpdate, Kind: shared.KindEmployees, Status: http.StatusNotFound}
	}
	e.FullName = d.FullName
	f.byID[id] = e
	return e, nil
}

func (f *fakeEmployees) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.byID, id)
	return nil
}

func TestEmployeeHandler_List(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root")

	rec := env.do(t, http.MethodGet, "/api/v1/employees", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/v1/employees?refresh=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var employees []roster.Employee
	decodeData(t, rec, &employees)
	require.Len(t, employees, 1)
	assert.Equal(t, "jdoe", employees[0].Code)
	assert.Equal(t, 1, decode(t, rec).Meta.Total)
	assert.Equal(t, []bool{false, true}, env.employees.forced)

	rec = env.do(t, http.MethodGet, "/api/v1/employees?refresh=maybe", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmployeeHandler_BackendFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no session", shared.ErrUnauthenticated, http.StatusServiceUnavailable, dto.ErrCodeBackendUnauthenticated},
		{"unreachable", fmt.Errorf("GET employees: %w", shared.ErrNetworkFailure), http.StatusBadGateway, dto.ErrCodeBackendUnavailable},
		{"odd envelope", shared.ErrUnrecognizedResponseShape, http.StatusBadGateway, dto.ErrCodeBackendResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.employees.err = tt.err

			rec := env.do(t, http.MethodGet, "/api/v1/employees", env.token(t, "root"), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestEmployeeHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root")

	rec := env.do(t, http.MethodGet, "/api/v1/employees/1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var e roster.Employee
	decodeData(t, rec, &e)
	assert.Equal(t, "John Doe", e.FullName)

	rec = env.do(t, http.MethodGet, "/api/v1/employees/404", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.ErrCodeNotFound, errorCode(t, rec))
}

func TestEmployeeHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root")

	t.Run("created", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/employees", admin, gateway.EmployeeDraft{Code: "asmith", FullName: "Ann Smith"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var e roster.Employee
		decodeData(t, rec, &e)
		assert.Equal(t, roster.ID("101"), e.ID)
	})

	t.Run("validation", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/employees", admin, map[string]string{"code": "x", "email": "not-an-email"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode(t, rec)
		require.NotNil(t, resp.Error)
		fields := map[string]bool{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = true
		}
		assert.True(t, fields["name"])
		assert.True(t, fields["email"])
	})

	t.Run("backend rejection", func(t *testing.T) {
		env.employees.err = &gateway.MutationError{Op: gateway.OpCreate, Kind: shared.KindEmployees, Status: http.StatusConflict, Message: "code already used"}
		defer func() { env.employees.err = nil }()

		rec := env.do(t, http.MethodPost, "/api/v1/employees", admin, gateway.EmployeeDraft{FullName: "Dup"})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decode(t, rec)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeMutationRejected, resp.Error.Code)
		assert.Equal(t, "code already used", resp.Error.Message)
	})
}

func TestEmployeeHandler_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root")

	rec := env.do(t, http.MethodPut, "/api/v1/employees/1", admin, gateway.EmployeeDraft{FullName: "Johnny Doe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var e roster.Employee
	decodeData(t, rec, &e)
	assert.Equal(t, "Johnny Doe", e.FullName)

	rec = env.do(t, http.MethodPut, "/api/v1/employees/77", admin, gateway.EmployeeDraft{FullName: "Nobody"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, shared.ErrMutationRejected.Message, decode(t, rec).Error.Message)

	rec = env.do(t, http.MethodDelete, "/api/v1/employees/1", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := env.employees.Get(context.Background(), "1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
