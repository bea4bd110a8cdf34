package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	intDatabase "counselmeet-backend/internal/database"
	meetingHandler "counselmeet-backend/internal/handler/http/meeting"
	wsHandler "counselmeet-backend/internal/handler/ws"
	"counselmeet-backend/internal/middleware"
	"counselmeet-backend/internal/repository/cassandra"
	"counselmeet-backend/internal/repository/cockroach"
	"counselmeet-backend/internal/service/encoder"
	"counselmeet-backend/internal/service/meeting"
	"counselmeet-backend/internal/service/storage"
	"counselmeet-backend/pkg/audit"
	"counselmeet-backend/pkg/config"
	"counselmeet-backend/pkg/constants"
	appctx "counselmeet-backend/pkg/context"
	pkgDatabase "counselmeet-backend/pkg/database"
	"counselmeet-backend/pkg/jwt"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// collaborators are the optional backends the registry and HTTP layer use when configured
type collaborators struct {
	registryOpts []meeting.Option
	httpOpts     []meetingHandler.Option
	redis        *intDatabase.RedisClient
	closers      []func()
}

func (c *collaborators) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	production := cfg.Server.Environment == "production"
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	deps, err := connectCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	// 1. Encoder supervisor
	if err := os.MkdirAll(cfg.Encoder.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create encoder output dir: %w", err)
	}
	supervisor := encoder.NewSupervisor(&encoder.FFmpegBuilder{
		Binary:           cfg.Encoder.Binary,
		InputURLTemplate: cfg.Encoder.InputURLTemplate,
		RecordingArgs:    cfg.Encoder.RecordingArgs,
		StreamArgs:       cfg.Encoder.StreamArgs,
	}, encoder.Config{OutputDir: cfg.Encoder.OutputDir})

	// 2. Signaling hub and room registry
	hub := wsHandler.NewSignalingHub(wsHandler.HubConfig{
		MaxConnections: cfg.WebSocket.MaxConnections,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	registry := meeting.NewService(meeting.Config{
		ChatHistoryLimit:    cfg.Meeting.ChatHistoryLimit,
		InactivityThreshold: cfg.Meeting.InactivityThreshold,
		SweepInterval:       cfg.Meeting.SweepInterval,
		StartTimeout:        cfg.Meeting.RecordingStartTimeout,
		StopTimeout:         cfg.Meeting.RecordingStopTimeout,
		DefaultStreamTarget: cfg.Encoder.DefaultTarget,
		DispatchWorkers:     cfg.Meeting.DispatchWorkers,
		DispatchQueueSize:   cfg.Meeting.DispatchQueueSize,
	}, supervisor, hub, deps.registryOpts...)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go registry.Run(runCtx)

	// 3. HTTP and websocket routes
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, 15*time.Minute)
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	router := newRouter(cfg, routerDeps{
		jwtManager: jwtManager,
		metrics:    appMetrics,
		redis:      deps.redis,
		signaling:  wsHandler.NewSignalingHandler(hub, registry),
		meetings:   meetingHandler.NewHandler(registry, supervisor, cfg.Meeting.DefaultMaxParticipants, deps.httpOpts...),
		production: production,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Meeting service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment),
			zap.String("signaling", "/v1/meetings/ws"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	// 4. Graceful shutdown: stop accepting, close connections, then finalize rooms and encoders
	shutdownCtx, cancel := appctx.WithShutdownTimeout(ctx)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	hub.Shutdown()
	// Run keeps draining encoder exits while rooms finalize
	registry.Shutdown(shutdownCtx)
	cancelRun()

	logger.Info("Meeting service stopped")
	return nil
}

// connectCollaborators connects every enabled backend. Unreachable stores are
// logged and skipped; the registry runs in memory without them.
func connectCollaborators(ctx context.Context, cfg *config.Config) (*collaborators, error) {
	deps := &collaborators{}

	if cfg.Database.Enabled {
		db, err := pkgDatabase.ConnectCockroachWithRetry(ctx, &pkgDatabase.CockroachConfig{
			DSN:      cfg.Database.DSN(),
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		}, pkgDatabase.DefaultRetryConfig())
		if err != nil {
			logger.Warn("Running without meeting persistence", zap.Error(err))
		} else {
			deps.closers = append(deps.closers, db.Close)
			repo := cockroach.NewMeetingRepository(db.Pool)

			schemaCtx, cancel := appctx.WithShortTimeout(ctx)
			err := repo.EnsureSchema(schemaCtx)
			cancel()
			if err != nil {
				deps.close()
				return nil, fmt.Errorf("failed to prepare meeting schema: %w", err)
			}

			deps.registryOpts = append(deps.registryOpts, meeting.WithStore(repo))
			go db.ReportPoolStats(ctx, constants.HealthCheckPeriod)
		}
	}

	if cfg.Redis.Enabled {
		redisDB := intDatabase.NewRedisDB(ctx, &intDatabase.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		})
		deps.closers = append(deps.closers, func() { _ = redisDB.Close() })
		redisDB.StartHealthCheck(ctx, 10*time.Second)

		deps.redis = redisDB
		deps.registryOpts = append(deps.registryOpts, meeting.WithAuditTrail(audit.NewAuditLogger(redisDB)))
	}

	if cfg.Cassandra.Enabled {
		cass, err := pkgDatabase.NewCassandraDB(&pkgDatabase.CassandraConfig{
			Hosts:       cfg.Cassandra.Hosts,
			Keyspace:    cfg.Cassandra.Keyspace,
			Consistency: cfg.Cassandra.Consistency,
			Timeout:     cfg.Cassandra.Timeout,
		})
		if err != nil {
			logger.Warn("Running without chat archive", zap.Error(err))
		} else {
			deps.closers = append(deps.closers, cass.Close)
			archive := cassandra.NewChatArchiveRepository(cass.Session)
			if err := archive.EnsureSchema(ctx); err != nil {
				deps.close()
				return nil, fmt.Errorf("failed to prepare chat archive schema: %w", err)
			}
			deps.registryOpts = append(deps.registryOpts, meeting.WithChatArchive(archive))
			deps.httpOpts = append(deps.httpOpts, meetingHandler.WithTranscripts(archive))
		}
	}

	if cfg.MinIO.Enabled {
		client, err := storage.NewMinioClient(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.UseSSL)
		if err != nil {
			deps.close()
			return nil, err
		}
		uploader, err := storage.NewRecordingUploader(ctx, client, storage.UploaderConfig{Bucket: cfg.MinIO.Bucket})
		if err != nil {
			logger.Warn("Recordings will stay on local disk", zap.Error(err))
		} else {
			deps.registryOpts = append(deps.registryOpts, meeting.WithUploader(uploader))
			deps.httpOpts = append(deps.httpOpts, meetingHandler.WithDownloadSigner(uploader))
		}
	}

	return deps, nil
}

type routerDeps struct {
	jwtManager *jwt.JWTManager
	metrics    *metrics.Metrics
	redis      *intDatabase.RedisClient
	signaling  *wsHandler.SignalingHandler
	meetings   *meetingHandler.Handler
	production bool
}

func newRouter(cfg *config.Config, d routerDeps) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Warn("Failed to configure trusted proxies", zap.Error(err))
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders(d.production))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(d.metrics).Handler())

	router.GET("/metrics", middleware.MetricsHandler(d.metrics))

	var revocation middleware.RevocationChecker
	limiterCfg := middleware.RateLimiterConfig{
		Prefix:   "ratelimit:meetings:create",
		Requests: cfg.Meeting.CreateRateLimit,
		Window:   constants.RoomCreateRateWindow,
		Metrics:  d.metrics,
	}
	if d.redis != nil {
		revocation = middleware.NewRedisRevocationChecker(d.redis)
		limiterCfg.Store = d.redis
		limiterCfg.Degraded = d.redis.IsDegraded
	}
	createLimiter := middleware.NewRateLimiter(limiterCfg)

	v1 := router.Group("/v1")
	{
		// Guests connect without a token
		v1.GET("/meetings/ws", middleware.OptionalAuth(d.jwtManager, revocation), d.signaling.ServeWS)
		v1.GET("/meetings/code/:code", d.meetings.LookupAccessCode)
	}

	api := v1.Group("", middleware.Timeout(appctx.DefaultTimeout), middleware.AuthMiddleware(d.jwtManager, revocation))
	{
		api.POST("/meetings", createLimiter.Middleware(), d.meetings.CreateMeeting)
		api.GET("/meetings/:id", d.meetings.GetMeeting)
		api.POST("/meetings/:id/end", d.meetings.EndMeeting)
		api.GET("/meetings/:id/recordings", d.meetings.ListRecordings)
		api.GET("/meetings/:id/transcript", d.meetings.GetTranscript)
		api.GET("/encoders", middleware.RequireAdmin(), d.meetings.ListEncoders)
	}

	return router
}
