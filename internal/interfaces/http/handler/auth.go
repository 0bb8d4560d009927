package handler

import (
	"github.com/erp/rostersync/internal/application/identity"
	domain "github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// AccountDirectory is the read side of the account reconciler
type AccountDirectory interface {
	Accounts() []domain.AccountView
	AccountByID(id string) (domain.AccountView, bool)
	AccountByUsername(username string) (domain.AccountView, bool)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	BaseHandler
	authService *identity.AuthService
	accounts    AccountDirectory
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *identity.AuthService, accounts AccountDirectory) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		accounts:    accounts,
	}
}

// Login godoc
// @Summary      Account login
// @Description  Authenticate with username and password. Every failure answers 401 with the same message.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} dto.Response{data=LoginResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), identity.LoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, LoginResponse{
		Token:              toTokenResponse(&result.Tokens),
		Account:            result.Account,
		MustChangePassword: result.Account.MustChangePassword,
	})
}

// RefreshToken godoc
// @Summary      Refresh access token
// @Description  Exchange a refresh token for a new pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshTokenRequest true "Refresh token"
// @Success      200 {object} dto.Response{data=RefreshTokenResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	pair, err := h.authService.RefreshToken(c.Request.Context(), identity.RefreshTokenInput{
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, RefreshTokenResponse{Token: toTokenResponse(pair)})
}

// Logout godoc
// @Summary      Account logout
// @Description  Revoke the presented access token
// @Tags         auth
// @Produce      json
// @Success      200 {object} dto.Response{data=MessageResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	err := h.authService.Logout(c.Request.Context(), identity.LogoutInput{
		AccountID: claims.AccountID,
		TokenJTI:  claims.ID,
		Remaining: claims.GetRemainingTTL(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, MessageResponse{Message: "Logged out successfully"})
}

// Me godoc
// @Summary      Current account
// @Description  Return the authenticated account
// @Tags         auth
// @Produce      json
// @Success      200 {object} dto.Response{data=domain.AccountView}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	accountID := middleware.GetJWTAccountID(c)
	if accountID == "" {
		h.Unauthorized(c, "Authentication required")
		return
	}
	account, ok := h.accounts.AccountByID(accountID)
	if !ok {
		h.NotFound(c, "Account no longer exists")
		return
	}
	h.Success(c, account)
}

// ChangePassword godoc
// @Summary      Change password
// @Description  Change the caller's credential. Tokens issued before the change are revoked and a new pair is returned.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ChangePasswordRequest true "Credential change"
// @Success      200 {object} dto.Response{data=ChangePasswordResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	pair, err := h.authService.ChangePassword(c.Request.Context(), identity.ChangePasswordInput{
		Username:    claims.Username,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ChangePasswordResponse{
		Message: "Password changed successfully",
		Token:   toTokenResponse(pair),
	})
}
