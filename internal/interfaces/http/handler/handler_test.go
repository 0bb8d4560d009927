package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	appidentity "github.com/erp/rostersync/internal/application/identity"
	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/infrastructure/auth"
	"github.com/erp/rostersync/internal/infrastructure/config"
	"github.com/erp/rostersync/internal/infrastructure/persistence"
	"github.com/erp/rostersync/internal/interfaces/http/dto"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminUsername     = "root"
	adminCredential   = "RootPass1"
	defaultCredential = "Welcome123"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type testEnv struct {
	engine    *gin.Engine
	accounts  *appidentity.Reconciler
	auth      *appidentity.AuthService
	jwt       *auth.JWTService
	blacklist *auth.InMemoryTokenBlacklist
	employees *fakeEmployees
	resyncer  *fakeResyncer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	rec := appidentity.NewReconciler(persistence.NewInMemoryAccountStore(), appidentity.ReconcilerConfig{
		DefaultCredential: defaultCredential,
		AdminUsername:     adminUsername,
		AdminCredential:   adminCredential,
	}, zap.NewNop())
	require.NoError(t, rec.Load(ctx))

	for _, e := range []roster.Employee{
		{ID: "1", Code: "jdoe", FullName: "John Doe", Role: roster.RoleEmployee, Status: roster.StatusActive},
		{ID: "2", Code: "mgr", FullName: "Mary Manager", Role: roster.RoleManager, Status: roster.StatusActive},
		{ID: "3", Code: "gone", FullName: "Gone Away", Role: roster.RoleEmployee, Status: roster.StatusInactive},
	} {
		_, err := rec.EnsureAccountFor(ctx, e)
		require.NoError(t, err)
	}

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                 "handler-test-secret-long-enough-32",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: time.Hour,
		Issuer:                 "rostersync-test",
		MaxRefreshCount:        3,
	})
	blacklist := auth.NewInMemoryTokenBlacklist()
	authService := appidentity.NewAuthService(rec, jwtService, blacklist, zap.NewNop())

	env := &testEnv{
		accounts:  rec,
		auth:      authService,
		jwt:       jwtService,
		blacklist: blacklist,
		employees: newFakeEmployees(),
		resyncer:  &fakeResyncer{},
	}
	env.engine = env.routes()
	return env
}

// routes mirrors the production route table without the ambient middleware
func (env *testEnv) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())

	authHandler := NewAuthHandler(env.auth, env.accounts)
	accountHandler := NewAccountHandler(env.accounts, env.auth)
	employeeHandler := NewEmployeeHandler(env.employees)
	syncHandler := NewSyncHandler(env.resyncer)

	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:     env.jwt,
		TokenBlacklist: env.blacklist,
		SkipPaths:      []string{"/api/v1/auth/login", "/api/v1/auth/refresh"},
	}))
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.RefreshToken)
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/change-password", authHandler.ChangePassword)

	guarded := api.Group("", middleware.RequirePasswordChanged())
	guarded.GET("/accounts", middleware.RequireRole("admin", "manager"), accountHandler.List)
	guarded.POST("/accounts/:username/reset-password", middleware.RequireRole("admin"), accountHandler.ResetPassword)
	guarded.GET("/employees", employeeHandler.List)
	guarded.POST("/employees", employeeHandler.Create)
	guarded.GET("/employees/:id", employeeHandler.Get)
	guarded.PUT("/employees/:id", employeeHandler.Update)
	guarded.DELETE("/employees/:id", employeeHandler.Delete)
	guarded.POST("/sync/resync", middleware.RequireRole("admin"), syncHandler.Resync)
	return r
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

// token issues an access token directly, bypassing the login endpoint
func (env *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	view, ok := env.accounts.AccountByUsername(username)
	require.True(t, ok, "account %s", username)
	result, err := env.auth.Login(context.Background(), appidentity.LoginInput{
		Username: username,
		Password: credentialFor(username),
	})
	require.NoError(t, err)
	require.Equal(t, view.ID, result.Account.ID)
	return result.Tokens.AccessToken
}

// settle clears the must-change flag so the account can reach guarded routes
func (env *testEnv) settle(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, env.accounts.ResetCredential(context.Background(), username, defaultCredential, false))
}

func credentialFor(username string) string {
	if username == adminUsername {
		return adminCredential
	}
	return defaultCredential
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// decodeData unmarshals the data member of the envelope into v
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.True(t, resp.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, rec)
	require.NotNil(t, resp.Error, rec.Body.String())
	return resp.Error.Code
}
