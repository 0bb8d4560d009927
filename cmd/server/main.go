package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appidentity "github.com/erp/rostersync/internal/application/identity"
	approster "github.com/erp/rostersync/internal/application/roster"
	"github.com/erp/rostersync/internal/infrastructure/auth"
	"github.com/erp/rostersync/internal/infrastructure/cache"
	"github.com/erp/rostersync/internal/infrastructure/config"
	"github.com/erp/rostersync/internal/infrastructure/event"
	"github.com/erp/rostersync/internal/infrastructure/gateway"
	"github.com/erp/rostersync/internal/infrastructure/logger"
	"github.com/erp/rostersync/internal/infrastructure/persistence"
	"github.com/erp/rostersync/internal/infrastructure/scheduler"
	"github.com/erp/rostersync/internal/infrastructure/telemetry"
	"github.com/erp/rostersync/internal/interfaces/http/handler"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	httprouter "github.com/erp/rostersync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			Roster Sync API
//	@version		1.0
//	@description	Employee roster proxy with derived login accounts and change streaming

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting roster sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("gateway", cfg.Gateway.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logsLevel, err := zapcore.ParseLevel(cfg.Telemetry.LogsLevel)
	if err != nil {
		log.Fatal("Invalid telemetry.logs_level", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MinLevel:          logsLevel,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = loggerProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)
	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync instruments", zap.Error(err))
	}

	// Derived account store
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbSystem := "sqlite"
	if cfg.Database.Driver == "postgres" {
		dbSystem = "postgresql"
	} else if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to prepare schema", zap.Error(err))
	}
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:  cfg.Telemetry.Enabled,
		DBSystem: dbSystem,
	}, log).Register(db.DB); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	accountStore := persistence.NewGormAccountStore(db.DB, cfg.Accounts.RecordName, log)

	// Redis is optional: blacklist, dedupe and replication fall back to memory
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		redisClient = client
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Tokens
	jwtService := auth.NewJWTService(cfg.JWT)
	var blacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	if redisClient != nil {
		blacklist = auth.NewRedisTokenBlacklist(redisClient)
	}

	session := auth.NewSession()
	if cfg.Gateway.Token != "" {
		session.SetToken(cfg.Gateway.Token)
	} else {
		go keepServiceToken(ctx, session, jwtService, cfg.Gateway, log)
	}

	// Sync router
	contextID := cfg.Sync.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	routerOpts := []event.RouterOption{
		event.WithContextID(contextID),
		event.WithIdempotencyStore(cache.NewIdempotencyStore(redisClient, contextID, log), cfg.Sync.DedupeTTL),
		event.WithRouterMetrics(syncMetrics),
	}
	if cfg.Sync.ReplicationEnabled {
		var channel event.ReplicationChannel
		if redisClient != nil {
			channel = cache.NewRedisReplicationChannel(redisClient, cfg.Sync.Channel, cache.WithChannelLogger(log))
		} else {
			log.Warn("Replication enabled without Redis, events stay in this process")
			channel = event.NewMemoryHub().Channel()
		}
		routerOpts = append(routerOpts, event.WithReplication(channel))
	}
	events := event.NewRouter(log, routerOpts...)
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn("Error closing sync router", zap.Error(err))
		}
	}()

	// Remote data gateway
	gw, err := gateway.New(cfg.Gateway, session, log,
		gateway.WithPublisher(events),
		gateway.WithMetrics(syncMetrics),
		gateway.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		log.Fatal("Failed to create gateway", zap.Error(err))
	}
	employees := gateway.NewEmployeeService(gw)

	// Account reconciler
	reconciler := appidentity.NewReconciler(accountStore, appidentity.ReconcilerConfig{
		DefaultCredential: cfg.Accounts.DefaultCredential,
		AdminUsername:     cfg.Accounts.AdminUsername,
		AdminCredential:   cfg.Accounts.AdminCredential,
	}, log, appidentity.WithPublisher(events), appidentity.WithMetrics(syncMetrics))
	events.RegisterComponent("accounts", reconciler)
	if err := reconciler.Load(ctx); err != nil {
		log.Fatal("Failed to load accounts", zap.Error(err))
	}

	if err := events.Start(ctx); err != nil {
		log.Fatal("Failed to start sync router", zap.Error(err))
	}
	events.ReadyWhen(ctx, gw.Ready())

	syncService := approster.NewSyncService(employees, reconciler, events, log)
	resyncs, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Interval:      cfg.Sync.ResyncInterval,
		JobTimeout:    2 * time.Minute,
		RetryAttempts: cfg.Sync.ResyncRetries,
		RetryDelay:    cfg.Sync.ResyncRetryDelay,
	}, scheduler.ExecutorFunc(func(ctx context.Context, job *scheduler.Job) error {
		var err error
		telemetry.WithProfilingLabels(ctx, map[string]string{
			"operation": "resync",
			"trigger":   string(job.Trigger),
		}, func(ctx context.Context) {
			_, err = syncService.Resync(ctx)
		})
		return err
	}), log)
	if err != nil {
		log.Fatal("Failed to create resync scheduler", zap.Error(err))
	}
	if err := resyncs.Start(ctx); err != nil {
		log.Fatal("Failed to start resync scheduler", zap.Error(err))
	}
	if cfg.Sync.ResyncOnStart {
		go initialResync(ctx, gw, resyncs, log)
	}

	authService := appidentity.NewAuthService(reconciler, jwtService, blacklist, log)

	stream := handler.NewSyncStreamHandler(events,
		handler.WithStreamLogger(log),
		handler.WithStreamHeartbeat(cfg.HTTP.SSEHeartbeat),
		handler.WithStreamMaxClients(cfg.HTTP.SSEMaxClients),
	)
	if err := stream.Start(); err != nil {
		log.Fatal("Failed to start sync stream", zap.Error(err))
	}

	var loginLimiter *middleware.RateLimiter
	if cfg.HTTP.LoginRateLimit > 0 {
		loginLimiter = middleware.NewRateLimiter(cfg.HTTP.LoginRateLimit, cfg.HTTP.LoginRateWindow)
		defer loginLimiter.Stop()
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := httprouter.New(httprouter.Config{
		HTTP: cfg.HTTP,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Meter:          meter,
		JWTService:     jwtService,
		TokenBlacklist: blacklist,
		LoginLimiter:   loginLimiter,
		Profiling:      profiler.IsEnabled(),
		Logger:         log,
	}, httprouter.Handlers{
		System:   handler.NewSystemHandler(cfg.App.Name, events, session),
		Auth:     handler.NewAuthHandler(authService, reconciler),
		Account:  handler.NewAccountHandler(reconciler, authService),
		Employee: handler.NewEmployeeHandler(employees),
		Sync:     handler.NewSyncHandler(syncService),
		Stream:   stream,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// streams hold their requests open until the handler stops
	stream.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := resyncs.Stop(shutdownCtx); err != nil {
		log.Warn("Resync scheduler did not stop cleanly", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error flushing metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error flushing traces", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Error stopping profiler", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error flushing logs", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// keepServiceToken mints the gateway bearer token and renews it at half its
// lifetime until ctx ends.
func keepServiceToken(ctx context.Context, session *auth.Session, jwtService *auth.JWTService, cfg config.GatewayConfig, log *zap.Logger) {
	renew := cfg.ServiceTokenTTL / 2
	for {
		token, expiresAt, err := jwtService.MintServiceToken(cfg.ServiceSubject, cfg.ServiceTokenTTL)
		wait := renew
		if err != nil {
			log.Error("Failed to mint service token", zap.Error(err))
			wait = 30 * time.Second
		} else {
			session.SetTokenWithExpiry(token, expiresAt)
			log.Info("Service token issued", zap.Time("expires_at", expiresAt))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// initialResync queues the first resync once the backend session is up
func initialResync(ctx context.Context, gw *gateway.Gateway, resyncs *scheduler.Scheduler, log *zap.Logger) {
	if err := gw.WaitReady(ctx); err != nil {
		return
	}
	if err := resyncs.Submit(scheduler.TriggerStartup); err != nil {
		log.Warn("Initial resync not queued", zap.Error(err))
	}
}
