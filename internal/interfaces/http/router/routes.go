package router

import (
	"github.com/erp/rostersync/internal/infrastructure/auth"
	"github.com/erp/rostersync/internal/infrastructure/config"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/erp/rostersync/internal/interfaces/http/handler"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies when HTTP.MaxBodyBytes is zero
const DefaultMaxBodyBytes = 1 << 20

// Handlers are the HTTP handlers mounted by New
type Handlers struct {
	System   *handler.SystemHandler
	Auth     *handler.AuthHandler
	Account  *handler.AccountHandler
	Employee *handler.EmployeeHandler
	Sync     *handler.SyncHandler
	Stream   *handler.SyncStreamHandler
}

// Config holds what the engine needs besides handlers
type Config struct {
	HTTP           config.HTTPConfig
	Tracing        middleware.TracingConfig
	Meter          metric.Meter // nil disables HTTP metrics
	JWTService     *auth.JWTService
	TokenBlacklist auth.TokenBlacklist
	LoginLimiter   *middleware.RateLimiter // nil disables login rate limiting
	Profiling      bool                    // label requests for the continuous profiler
	Logger         *zap.Logger
}

// New builds the gin engine with the middleware chain and every route
func New(cfg Config, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsConfig(cfg.HTTP)),
		middleware.TracingWithConfig(cfg.Tracing),
	)
	if cfg.Tracing.Enabled {
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(cfg.Meter, log))
	if cfg.Profiling {
		engine.Use(middleware.ProfilingWithConfig(middleware.DefaultProfilingConfig()))
	}

	maxBody := cfg.HTTP.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	engine.Use(middleware.BodyLimit(maxBody))

	engine.GET("/health", h.System.Health)

	// default skip paths cover login and refresh under /api/v1
	jwtConfig := middleware.DefaultJWTConfig(cfg.JWTService)
	jwtConfig.TokenBlacklist = cfg.TokenBlacklist
	jwtConfig.Logger = log
	r := NewRouter(engine, WithAPIMiddleware(middleware.JWTAuthMiddlewareWithConfig(jwtConfig)))

	permissions := middleware.PermissionConfig{Logger: log}
	adminOnly := middleware.RequireRoleWithConfig(permissions, "admin")
	staff := middleware.RequireRoleWithConfig(permissions, "admin", "manager")
	settled := middleware.RequirePasswordChanged()

	login := []gin.HandlerFunc{h.Auth.Login}
	if cfg.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{middleware.RateLimit(cfg.LoginLimiter)}, login...)
	}
	authGroup := NewDomainGroup("auth", "/auth").
		POST("/login", login...).
		POST("/refresh", h.Auth.RefreshToken).
		POST("/logout", h.Auth.Logout).
		GET("/me", h.Auth.Me).
		POST("/change-password", h.Auth.ChangePassword)

	accounts := NewDomainGroup("accounts", "/accounts").Use(settled).
		GET("", staff, h.Account.List).
		POST("/:username/reset-password", adminOnly, h.Account.ResetPassword)

	employees := NewDomainGroup("employees", "/employees").Use(settled).
		GET("", h.Employee.List).
		POST("", h.Employee.Create).
		GET("/:id", h.Employee.Get).
		PUT("/:id", h.Employee.Update).
		DELETE("/:id", h.Employee.Delete)

	syncGroup := NewDomainGroup("sync", "/sync").Use(settled).
		POST("/resync", adminOnly, h.Sync.Resync).
		GET("/stream", h.Stream.Stream)

	r.Register(authGroup).Register(accounts).Register(employees).Register(syncGroup)
	r.Setup()
	return engine
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		c.AllowOrigins = cfg.CORSAllowOrigins
	}
	if len(cfg.CORSAllowMethods) > 0 {
		c.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		c.AllowHeaders = cfg.CORSAllowHeaders
	}
	return c
}
