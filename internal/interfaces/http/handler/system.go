package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/rostersync/internal/infrastructure/event"
	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RouterStatus reports the lifecycle state of the local event router
type RouterStatus interface {
	State() event.State
	ContextID() string
}

// SessionStatus reports whether the backend session holds a token
type SessionStatus interface {
	Authenticated() bool
}

// SystemHandler handles health and system information endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	router    RouterStatus
	session   SessionStatus
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name string, router RouterStatus, session SessionStatus) *SystemHandler {
	return &SystemHandler{
		name:      name,
		router:    router,
		session:   session,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	Name          string `json:"name" example:"rostersync"`
	Router        string `json:"router" example:"ready"`
	ContextID     string `json:"context_id"`
	Authenticated bool   `json:"authenticated"`
	GoVersion     string `json:"go_version" example:"go1.25.5"`
	Uptime        string `json:"uptime" example:"1h30m45s"`
}

// Health godoc
// @Summary      Health check
// @Description  Reports router readiness and backend session state. Answers 503 until the router is ready.
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=HealthResponse}
// @Failure      503 {object} dto.Response{data=HealthResponse}
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Router:    event.StateUninitialized.String(),
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	ready := false
	if h.router != nil {
		state := h.router.State()
		resp.Router = state.String()
		resp.ContextID = h.router.ContextID()
		ready = state == event.StateReady
	}
	if h.session != nil {
		resp.Authenticated = h.session.Authenticated()
	}

	if !ready {
		resp.Status = "starting"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}
