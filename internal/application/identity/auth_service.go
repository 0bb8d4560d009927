package identity

import (
	"context"
	"errors"

	"github.com/erp/rostersync/internal/domain/identity"
	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/infrastructure/auth"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService issues tokens for accounts held by the Reconciler
type AuthService struct {
	accounts   *Reconciler
	jwtService *auth.JWTService
	blacklist  auth.TokenBlacklist
	logger     *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	accounts *Reconciler,
	jwtService *auth.JWTService,
	blacklist auth.TokenBlacklist,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		accounts:   accounts,
		jwtService: jwtService,
		blacklist:  blacklist,
		logger:     logger.Named("auth"),
	}
}

// Login authenticates an account and returns tokens. Every authentication
// failure is reported with the same public message.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	log := logger.WithLogger(ctx, s.logger)

	account, err := s.accounts.Authenticate(ctx, input.Username, input.Password)
	if err != nil {
		if shared.IsAuthFailure(err) {
			return nil, err
		}
		log.Error("Authentication failed unexpectedly", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to authenticate")
	}

	pair, err := s.issue(account)
	if err != nil {
		log.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}

	log.Info("Account logged in",
		zap.String("username", account.Username),
		zap.String("account_id", account.ID),
		zap.String("ip", input.IP))

	return &LoginResult{Tokens: *pair, Account: account}, nil
}

// RefreshToken exchanges a refresh token for a new pair. The account must
// still exist and be able to log in.
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*auth.TokenPair, error) {
	log := logger.WithLogger(ctx, s.logger)

	claims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		log.Warn("Refresh token validation failed", zap.Error(err))
		return nil, mapTokenError(err)
	}
	if revoked, err := s.isRevoked(ctx, claims); err != nil || revoked {
		return nil, shared.NewDomainError("TOKEN_REVOKED", "Token has been revoked")
	}

	account, ok := s.accounts.AccountByID(claims.AccountID)
	if !ok {
		log.Warn("Token refresh for unknown account", zap.String("account_id", claims.AccountID))
		return nil, shared.ErrAccountNotFound
	}
	if account.Status != identity.AccountStatusActive {
		log.Warn("Token refresh for inactive account", zap.String("account_id", claims.AccountID))
		return nil, shared.ErrAccountInactive
	}

	pair, err := s.jwtService.RefreshTokenPair(input.RefreshToken, account.Role, account.MustChangePassword)
	if err != nil {
		log.Warn("Token refresh failed", zap.Error(err))
		return nil, mapTokenError(err)
	}
	return pair, nil
}

// Logout revokes the presented access token
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	logger.WithLogger(ctx, s.logger).Info("Account logout", zap.String("account_id", input.AccountID))
	if input.TokenJTI == "" || s.blacklist == nil {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, input.TokenJTI, input.Remaining); err != nil {
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to revoke token")
	}
	return nil
}

// ChangePassword changes the caller's credential, revokes every token issued
// before the change and returns a fresh pair.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) (*auth.TokenPair, error) {
	log := logger.WithLogger(ctx, s.logger)

	if err := s.accounts.ChangeCredential(ctx, input.Username, input.OldPassword, input.NewPassword); err != nil {
		return nil, err
	}
	account, ok := s.accounts.AccountByUsername(input.Username)
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	s.revokeAccount(ctx, account.ID)

	pair, err := s.issue(account)
	if err != nil {
		log.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}
	log.Info("Account credential changed", zap.String("account_id", account.ID))
	return pair, nil
}

// ResetPassword sets a credential on behalf of an administrator and revokes
// the account's tokens.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if err := s.accounts.ResetCredential(ctx, input.Username, input.NewPassword, input.ForceChange); err != nil {
		return err
	}
	if account, ok := s.accounts.AccountByUsername(input.Username); ok {
		s.revokeAccount(ctx, account.ID)
	}
	logger.WithLogger(ctx, s.logger).Info("Account credential reset",
		zap.String("username", input.Username),
		zap.String("by", input.ResetBy),
		zap.Bool("force_change", input.ForceChange))
	return nil
}

func (s *AuthService) issue(account identity.AccountView) (*auth.TokenPair, error) {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return nil, err
	}
	return s.jwtService.GenerateTokenPair(auth.GenerateTokenInput{
		AccountID:          id,
		Username:           account.Username,
		Role:               account.Role,
		MustChangePassword: account.MustChangePassword,
	})
}

func (s *AuthService) revokeAccount(ctx context.Context, accountID string) {
	if s.blacklist == nil {
		return
	}
	if err := s.blacklist.RevokeAccount(ctx, accountID, s.jwtService.GetRefreshTokenExpiration()); err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to revoke account tokens",
			zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *AuthService) isRevoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	if s.blacklist == nil {
		return false, nil
	}
	if revoked, err := s.blacklist.IsRevoked(ctx, claims.ID); err != nil || revoked {
		return revoked, err
	}
	return s.blacklist.IsAccountRevoked(ctx, claims.AccountID, claims.GetIssuedAtTime())
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, auth.ErrMaxRefreshExceeded):
		return shared.NewDomainError("TOKEN_MAX_REFRESH", "Maximum token refresh count exceeded. Please log in again")
	default:
		return shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
	}
}
