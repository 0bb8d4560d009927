package handler

import (
	"context"

	approster "github.com/erp/rostersync/internal/application/roster"
	"github.com/gin-gonic/gin"
)

// Resyncer runs a full roster resynchronization
type Resyncer interface {
	Resync(ctx context.Context) (*approster.ResyncResult, error)
}

// SyncHandler handles administrative sync operations
type SyncHandler struct {
	BaseHandler
	resyncer Resyncer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(resyncer Resyncer) *SyncHandler {
	return &SyncHandler{resyncer: resyncer}
}

// ResyncResponse reports what a resync changed
type ResyncResponse struct {
	Employees  int    `json:"employees"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Renamed    int    `json:"renamed"`
	Deleted    int    `json:"deleted"`
	Unchanged  int    `json:"unchanged"`
	Skipped    int    `json:"skipped"`
	Collisions int    `json:"collisions"`
	Duration   string `json:"duration"`
}

// Resync godoc
// @Summary      Full resynchronization
// @Description  Force-read the roster, reconcile every account and broadcast full.resync
// @Tags         sync
// @Produce      json
// @Success      200 {object} dto.Response{data=ResyncResponse}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /sync/resync [post]
func (h *SyncHandler) Resync(c *gin.Context) {
	result, err := h.resyncer.Resync(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := ResyncResponse{
		Employees: result.Employees,
		Duration:  result.Duration.String(),
	}
	if r := result.Accounts; r != nil {
		resp.Created = r.Created
		resp.Updated = r.Updated
		resp.Renamed = r.Renamed
		resp.Deleted = r.Deleted
		resp.Unchanged = r.Unchanged
		resp.Skipped = r.Skipped
		resp.Collisions = len(r.Collisions)
	}
	h.Success(c, resp)
}
