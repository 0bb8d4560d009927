package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// EmployeeDraft is the writable part of an employee sent on create and update
type EmployeeDraft struct {
	Code       string        `json:"code,omitempty" binding:"omitempty,max=64"`
	FullName   string        `json:"name" binding:"required,max=200"`
	Email      string        `json:"email,omitempty" binding:"omitempty,email"`
	Phone      string        `json:"phone,omitempty" binding:"omitempty,max=32"`
	Role       roster.Role   `json:"role,omitempty" binding:"omitempty,oneof=admin manager employee"`
	Department string        `json:"department,omitempty" binding:"omitempty,max=100"`
	Position   string        `json:"position,omitempty" binding:"omitempty,max=100"`
	Status     roster.Status `json:"status,omitempty" binding:"omitempty,oneof=active inactive terminated"`
}

// EmployeeService is the typed employee view of the gateway
type EmployeeService struct {
	gw     *Gateway
	logger *zap.Logger
}

// NewEmployeeService creates the employee facade
func NewEmployeeService(gw *Gateway) *EmployeeService {
	return &EmployeeService{gw: gw, logger: gw.logger.Named("employees")}
}

// List returns all employees; force requires fresh data from the backend
func (s *EmployeeService) List(ctx context.Context, force bool) ([]roster.Employee, error) {
	var opts []FetchOption
	if force {
		opts = append(opts, Force())
	}
	records, err := s.gw.FetchCollection(ctx, shared.KindEmployees, opts...)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(ctx, records), nil
}

// Get returns one employee
func (s *EmployeeService) Get(ctx context.Context, id string) (roster.Employee, error) {
	rec, err := s.gw.FetchOne(ctx, shared.KindEmployees, id)
	if err != nil {
		return roster.Employee{}, err
	}
	return decodeEmployee(rec)
}

// Create adds an employee on the backend
func (s *EmployeeService) Create(ctx context.Context, d EmployeeDraft) (roster.Employee, error) {
	rec, err := s.gw.Mutate(ctx, shared.KindEmployees, OpCreate, "", d)
	if err != nil {
		return roster.Employee{}, err
	}
	return decodeEmployee(rec)
}

// Update replaces the writable fields of an employee
func (s *EmployeeService) Update(ctx context.Context, id string, d EmployeeDraft) (roster.Employee, error) {
	rec, err := s.gw.Mutate(ctx, shared.KindEmployees, OpUpdate, id, d)
	if err != nil {
		return roster.Employee{}, err
	}
	return decodeEmployee(rec)
}

// Delete removes an employee
func (s *EmployeeService) Delete(ctx context.Context, id string) error {
	_, err := s.gw.Mutate(ctx, shared.KindEmployees, OpDelete, id, nil)
	return err
}

func (s *EmployeeService) decodeAll(ctx context.Context, records []json.RawMessage) []roster.Employee {
	out := make([]roster.Employee, 0, len(records))
	for i, rec := range records {
		e, err := decodeEmployee(rec)
		if err != nil {
			logger.WithLogger(ctx, s.logger).Warn("Skipping undecodable employee record",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

func decodeEmployee(raw json.RawMessage) (roster.Employee, error) {
	var e roster.Employee
	if err := json.Unmarshal(raw, &e); err != nil {
		return roster.Employee{}, fmt.Errorf("%w: %v", shared.ErrUnrecognizedResponseShape, err)
	}
	if e.ID == "" {
		return roster.Employee{}, fmt.Errorf("%w: employee without id", shared.ErrUnrecognizedResponseShape)
	}
	return e, nil
}
