package handler

import (
	"time"

	"github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/infrastructure/auth"
)

// =====================
// Auth Request DTOs
// =====================

// LoginRequest represents the request body for account login
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=128"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ChangePasswordRequest represents the request body for a credential change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128,nefield=OldPassword"`
}

// =====================
// Auth Response DTOs
// =====================

// TokenResponse represents the token data in auth responses
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

func toTokenResponse(p *auth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		AccessTokenExpiresAt:  p.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt,
		TokenType:             p.TokenType,
	}
}

// LoginResponse represents the response body for a successful login
type LoginResponse struct {
	Token              TokenResponse        `json:"token"`
	Account            identity.AccountView `json:"account"`
	MustChangePassword bool                 `json:"must_change_password"`
}

// RefreshTokenResponse represents the response body for a successful refresh
type RefreshTokenResponse struct {
	Token TokenResponse `json:"token"`
}

// ChangePasswordResponse carries the pair that replaces the revoked tokens
type ChangePasswordResponse struct {
	Message string        `json:"message"`
	Token   TokenResponse `json:"token"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
