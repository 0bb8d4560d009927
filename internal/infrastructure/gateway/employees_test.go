package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmployeeService_ListDecodesAndSkipsBadRecords(t *testing.T) {
	backend := newFakeBackend(t)
	backend.list = func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(`{"success":true,"data":{"employees":[
			{"id":1,"code":"jdoe","name":"John Doe","status":"active"},
			{"name":"no id"},
			{"id":"e-2","code":"asmith","name":"Ann Smith","status":"terminated"}
		]}}`))
	}
	core, logs := observer.New(zapcore.WarnLevel)
	gw, _ := newTestGateway(t, backend.server.URL+"/api", zap.New(core))
	svc := NewEmployeeService(gw)

	employees, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, roster.ID("1"), employees[0].ID)
	assert.Equal(t, "John Doe", employees[0].FullName)
	assert.Equal(t, roster.ID("e-2"), employees[1].ID)
	assert.True(t, employees[1].IsTerminated())
	assert.Equal(t, 1, logs.FilterMessage("Skipping undecodable employee record").Len())
}

func TestEmployeeService_CreateReturnsBackendRecord(t *testing.T) {
	backend := newFakeBackend(t)
	var received EmployeeDraft
	backend.create = func(c *gin.Context) {
		assert.NoError(t, c.ShouldBindJSON(&received))
		c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"id": 42, "code": received.Code, "name": received.FullName}})
	}
	pub := &capturePublisher{}
	gw, _ := newTestGateway(t, backend.server.URL+"/api", zap.NewNop(), WithPublisher(pub))
	svc := NewEmployeeService(gw)

	e, err := svc.Create(context.Background(), EmployeeDraft{Code: "jdoe", FullName: "John Doe"})
	require.NoError(t, err)
	assert.Equal(t, roster.ID("42"), e.ID)
	assert.Equal(t, "jdoe", received.Code)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, shared.CategoryCreated, events[0].Category)
}

func TestEmployeeService_GetNotFound(t *testing.T) {
	backend := newFakeBackend(t)
	backend.one = func(c *gin.Context) { c.Status(http.StatusNotFound) }
	gw, _ := newTestGateway(t, backend.server.URL+"/api", zap.NewNop())

	_, err := NewEmployeeService(gw).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
