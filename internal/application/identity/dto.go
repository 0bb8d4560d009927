package identity

import (
	"time"

	"github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/infrastructure/auth"
)

// LoginInput contains the input for login
type LoginInput struct {
	Username string
	Password string
	IP       string // Client IP for login tracking
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Tokens  auth.TokenPair
	Account identity.AccountView
}

// RefreshTokenInput contains the input for token refresh
type RefreshTokenInput struct {
	RefreshToken string
}

// LogoutInput contains the input for logout
type LogoutInput struct {
	AccountID string
	TokenJTI  string        // JWT ID to blacklist
	Remaining time.Duration // remaining lifetime of the token
}

// ChangePasswordInput contains the input for a self-service credential change
type ChangePasswordInput struct {
	Username    string
	OldPassword string
	NewPassword string
}

// ResetPasswordInput contains the input for an administrative reset
type ResetPasswordInput struct {
	Username    string
	NewPassword string
	ForceChange bool
	ResetBy     string // username of the administrator, for the log
}
