package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/rostersync/internal/infrastructure/event"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRouter struct{ state event.State }

func (s stubRouter) State() event.State { return s.state }
func (s stubRouter) ContextID() string  { return "ctx-1" }

type stubSession bool

func (s stubSession) Authenticated() bool { return bool(s) }

func serveHealth(t *testing.T, h *SystemHandler) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	r := gin.New()
	r.GET("/health", h.Health)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp.Data
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		rec, resp := serveHealth(t, NewSystemHandler("rostersync", stubRouter{event.StateReady}, stubSession(true)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ready", resp.Router)
		assert.Equal(t, "ctx-1", resp.ContextID)
		assert.True(t, resp.Authenticated)
		assert.NotEmpty(t, resp.GoVersion)
	})

	t.Run("waiting for the backend", func(t *testing.T) {
		rec, resp := serveHealth(t, NewSystemHandler("rostersync", stubRouter{event.StateWaiting}, stubSession(false)))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "starting", resp.Status)
		assert.Equal(t, "waiting-for-dependencies", resp.Router)
		assert.False(t, resp.Authenticated)
	})

	t.Run("without a router", func(t *testing.T) {
		rec, resp := serveHealth(t, NewSystemHandler("rostersync", nil, nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "uninitialized", resp.Router)
	})
}
