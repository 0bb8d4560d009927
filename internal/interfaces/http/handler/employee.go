package handler

import (
	"context"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/infrastructure/gateway"
	"github.com/gin-gonic/gin"
)

// EmployeeService is the typed employee gateway used by the handler
type EmployeeService interface {
	List(ctx context.Context, force bool) ([]roster.Employee, error)
	Get(ctx context.Context, id string) (roster.Employee, error)
	Create(ctx context.Context, d gateway.EmployeeDraft) (roster.Employee, error)
	Update(ctx context.Context, id string, d gateway.EmployeeDraft) (roster.Employee, error)
	Delete(ctx context.Context, id string) error
}

// EmployeeHandler proxies employee CRUD to the HR backend
type EmployeeHandler struct {
	BaseHandler
	employees EmployeeService
}

// NewEmployeeHandler creates a new employee handler
func NewEmployeeHandler(employees EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{employees: employees}
}

// EmployeeURI binds the :id path parameter
type EmployeeURI struct {
	ID string `uri:"id" binding:"required,max=64"`
}

// ListEmployeesQuery binds the list query string
type ListEmployeesQuery struct {
	Refresh bool `form:"refresh"`
}

// List godoc
// @Summary      List employees
// @Description  Employees from the HR backend. refresh=true bypasses the local cache.
// @Tags         employees
// @Produce      json
// @Param        refresh query bool false "Force a fresh read"
// @Success      200 {object} dto.Response{data=[]roster.Employee}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /employees [get]
func (h *EmployeeHandler) List(c *gin.Context) {
	var q ListEmployeesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	employees, err := h.employees.List(c.Request.Context(), q.Refresh)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, employees, len(employees))
}

// Get godoc
// @Summary      Get employee
// @Tags         employees
// @Produce      json
// @Param        id path string true "Employee ID"
// @Success      200 {object} dto.Response{data=roster.Employee}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /employees/{id} [get]
func (h *EmployeeHandler) Get(c *gin.Context) {
	var uri EmployeeURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	employee, err := h.employees.Get(c.Request.Context(), uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, employee)
}

// Create godoc
// @Summary      Create employee
// @Tags         employees
// @Accept       json
// @Produce      json
// @Param        request body gateway.EmployeeDraft true "Employee"
// @Success      201 {object} dto.Response{data=roster.Employee}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /employees [post]
func (h *EmployeeHandler) Create(c *gin.Context) {
	var draft gateway.EmployeeDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.BindError(c, err)
		return
	}
	employee, err := h.employees.Create(c.Request.Context(), draft)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, employee)
}

// Update godoc
// @Summary      Update employee
// @Tags         employees
// @Accept       json
// @Produce      json
// @Param        id path string true "Employee ID"
// @Param        request body gateway.EmployeeDraft true "Employee"
// @Success      200 {object} dto.Response{data=roster.Employee}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /employees/{id} [put]
func (h *EmployeeHandler) Update(c *gin.Context) {
	var uri EmployeeURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	var draft gateway.EmployeeDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.BindError(c, err)
		return
	}
	employee, err := h.employees.Update(c.Request.Context(), uri.ID, draft)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, employee)
}

// Delete godoc
// @Summary      Delete employee
// @Tags         employees
// @Param        id path string true "Employee ID"
// @Success      204
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /employees/{id} [delete]
func (h *EmployeeHandler) Delete(c *gin.Context) {
	var uri EmployeeURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	if err := h.employees.Delete(c.Request.Context(), uri.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
