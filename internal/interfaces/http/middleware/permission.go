package middleware

import (
	"net/http"

	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrCodePasswordChangeRequired is returned while an account still holds its
// initial credential
const ErrCodePasswordChangeRequired = "ERR_PASSWORD_CHANGE_REQUIRED"

// PermissionConfig holds configuration for role middleware
type PermissionConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
}

// RequireRole creates middleware that lets through accounts holding any of
// the given roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return RequireRoleWithConfig(PermissionConfig{}, roles...)
}

// RequireRoleWithConfig creates role middleware with custom config
func RequireRoleWithConfig(cfg PermissionConfig, roles ...string) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			handlePermissionDenied(c, log, roles, "No authentication claims found")
			return
		}
		if !claims.HasRole(roles...) {
			handlePermissionDenied(c, log, roles, "Account lacks required role")
			return
		}
		c.Next()
	}
}

// RequirePasswordChanged blocks accounts flagged must_change_password. Routes
// that let the caller change the credential or log out must not use it.
func RequirePasswordChanged() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := GetJWTClaims(c); claims != nil && claims.MustChangePassword {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				ErrCodePasswordChangeRequired,
				"Password must be changed before continuing",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}

func handlePermissionDenied(c *gin.Context, log *zap.Logger, roles []string, reason string) {
	role := ""
	if claims := GetJWTClaims(c); claims != nil {
		role = claims.Role
	}
	log.Warn("Permission denied",
		zap.String("reason", reason),
		zap.String("username", GetJWTUsername(c)),
		zap.String("role", role),
		zap.Strings("required_roles", roles),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)

	c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeForbidden,
		"Access denied: insufficient permissions",
		GetRequestID(c),
	))
}
