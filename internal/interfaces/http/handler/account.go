package handler

import (
	"github.com/erp/rostersync/internal/application/identity"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// AccountHandler exposes the derived account store
type AccountHandler struct {
	BaseHandler
	accounts    AccountDirectory
	authService *identity.AuthService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts AccountDirectory, authService *identity.AuthService) *AccountHandler {
	return &AccountHandler{accounts: accounts, authService: authService}
}

// AccountURI binds the :username path parameter
type AccountURI struct {
	Username string `uri:"username" binding:"required,username"`
}

// ResetPasswordRequest represents the request body for an administrative reset
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
	// ForceChange defaults to true when omitted
	ForceChange *bool `json:"force_change"`
}

// List godoc
// @Summary      List accounts
// @Description  Public views of every account, ordered by username
// @Tags         accounts
// @Produce      json
// @Success      200 {object} dto.Response{data=[]domain.AccountView}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	views := h.accounts.Accounts()
	h.SuccessList(c, views, len(views))
}

// ResetPassword godoc
// @Summary      Reset an account credential
// @Description  Set a new credential for an account and revoke its tokens
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        username path string true "Account username"
// @Param        request body ResetPasswordRequest true "New credential"
// @Success      200 {object} dto.Response{data=MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /accounts/{username}/reset-password [post]
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var uri AccountURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	// ErrAccountNotFound maps to the undifferentiated login failure, so the
	// administrative path answers 404 itself.
	if _, ok := h.accounts.AccountByUsername(uri.Username); !ok {
		h.NotFound(c, "Account not found")
		return
	}

	force := true
	if req.ForceChange != nil {
		force = *req.ForceChange
	}
	err := h.authService.ResetPassword(c.Request.Context(), identity.ResetPasswordInput{
		Username:    uri.Username,
		NewPassword: req.NewPassword,
		ForceChange: force,
		ResetBy:     middleware.GetJWTUsername(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, MessageResponse{Message: "Password reset successfully"})
}
