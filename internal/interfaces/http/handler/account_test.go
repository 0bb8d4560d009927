package handler

import (
	"net/http"
	"testing"

	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountHandler_List(t *testing.T) {
	env := newTestEnv(t)
	env.settle(t, "mgr")
	env.settle(t, "jdoe")

	t.Run("admin sees every account in username order", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/accounts", env.token(t, "root"), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode(t, rec)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 4, resp.Meta.Total)

		var views []struct {
			Username string `json:"username"`
		}
		decodeData(t, rec, &views)
		names := make([]string, 0, len(views))
		for _, v := range views {
			names = append(names, v.Username)
		}
		assert.Equal(t, []string{"gone", "jdoe", "mgr", "root"}, names)
		assert.NotContains(t, rec.Body.String(), "password_hash")
	})

	t.Run("manager may list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/accounts", env.token(t, "mgr"), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("employee may not", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/accounts", env.token(t, "jdoe"), nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, dto.ErrCodeForbidden, errorCode(t, rec))
	})
}

func TestAccountHandler_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root")

	t.Run("admin resets and forces a change by default", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/accounts/JDOE/reset-password", admin,
			ResetPasswordRequest{NewPassword: "Reset12345"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "jdoe", Password: "Reset12345"})
		require.Equal(t, http.StatusOK, rec.Code)
		var login LoginResponse
		decodeData(t, rec, &login)
		assert.True(t, login.MustChangePassword)
	})

	t.Run("force_change false clears the flag", func(t *testing.T) {
		force := false
		rec := env.do(t, http.MethodPost, "/api/v1/accounts/mgr/reset-password", admin,
			ResetPasswordRequest{NewPassword: "Reset67890", ForceChange: &force})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		view, ok := env.accounts.AccountByUsername("mgr")
		require.True(t, ok)
		assert.False(t, view.MustChangePassword)
	})

	t.Run("unknown account", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/accounts/nobody/reset-password", admin,
			ResetPasswordRequest{NewPassword: "Reset12345"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, dto.ErrCodeNotFound, errorCode(t, rec))
	})

	t.Run("malformed username", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/accounts/-bad%20name/reset-password", admin,
			ResetPasswordRequest{NewPassword: "Reset12345"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dto.ErrCodeValidation, errorCode(t, rec))
	})

	t.Run("only admins reset", func(t *testing.T) {
		env.settle(t, "mgr")
		rec := env.do(t, http.MethodPost, "/api/v1/accounts/jdoe/reset-password", env.token(t, "mgr"),
			ResetPasswordRequest{NewPassword: "Reset12345"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
