package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/internal/core/services"
	httphandlers "streamfy/internal/handlers/http"
	"streamfy/internal/infrastructure/activity"
	djbackup "streamfy/internal/infrastructure/backup"
	clusterbus "streamfy/internal/infrastructure/distributed"
	"streamfy/internal/infrastructure/middleware"
	"streamfy/internal/infrastructure/monitoring"
	"streamfy/internal/infrastructure/repositories"
	wssignal "streamfy/internal/infrastructure/signal"
	"streamfy/pkg/backup"
	"streamfy/pkg/config"
	"streamfy/pkg/logger"
	"streamfy/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const backupFormatVersion = "1"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.Load(config.Find(
		os.Getenv("STREAMFY_CONFIG"),
		"configs/config.yaml",
		"./config.yaml",
		"/etc/streamfy/config.yaml",
	))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	ctxLog := logger.NewContextLogger(log)

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: os.Getenv("STREAMFY_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	instanceID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(registry)

	// Storage
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	defer repoFactory.Close()

	presence := repoFactory.CreatePresenceStore()
	djRepo := repoFactory.CreateDJRepository(collector)
	locker := repoFactory.CreateLocker()

	activityLogger := activity.NewAsyncLogger(repoFactory.CreateActivitySink(zapLogger), activity.Config{
		BatchSize:     cfg.Activity.BatchSize,
		FlushInterval: cfg.Activity.FlushInterval,
	}, collector, log)
	collector.RegisterActivityBacklog(activityLogger.Pending)

	backupDone := make(chan struct{})
	if cfg.Backup.Enabled {
		scheduler, err := newBackupScheduler(ctx, cfg, djRepo, log)
		if err != nil {
			return err
		}
		go func() {
			defer close(backupDone)
			scheduler.Run(ctx)
		}()
	} else {
		close(backupDone)
	}

	// Services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	djDefaults := domain.DJSettings{
		AllowViewerRequests: cfg.DJ.AllowViewerRequests,
		MaxQueueSize:        cfg.DJ.MaxQueueSize,
		VotingEnabled:       cfg.DJ.VotingEnabled,
		AutoPlay:            cfg.DJ.AutoPlay,
	}
	djService := services.NewCachedDJService(
		services.NewDJService(djRepo, locker, djDefaults, collector, log),
		cfg.DJ.CacheTTL,
	)
	defer djService.Stop()
	collector.RegisterDJCache(djService.CacheStats)

	// Realtime hub
	hub := wssignal.NewHub(presence, activityLogger, collector, wssignal.HubConfig{
		MaxChatLength: cfg.Signal.MaxChatLength,
	}, log)
	collector.RegisterLiveChannels(func() int { return len(hub.LiveChannels()) })

	if bus := repoFactory.CreateEventBus(instanceID); bus != nil {
		hub.SetPublisher(bus)
		if live, err := bus.LiveChannels(ctx); err != nil {
			log.Warnw("Failed to load live channels", "error", err)
		} else {
			hub.SeedLiveChannels(live)
		}
		go subscribeChannelStatus(ctx, bus, hub, ctxLog)
	}
	go hub.Run(ctx)

	wsServer := wssignal.NewWebSocketServer(hub, authService, wssignal.ServerConfig{
		Client: wssignal.ClientConfig{
			PingInterval:   cfg.Signal.PingInterval,
			PongTimeout:    cfg.Signal.PongTimeout,
			WriteTimeout:   cfg.Signal.WriteTimeout,
			MaxMessageSize: cfg.Signal.MaxMessageSize,
			SendBuffer:     cfg.Signal.SendBuffer,
		},
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxConcurrent:     cfg.RateLimiting.WebSocket.MaxConcurrent,
		MessagesPerSecond: wsRate(cfg),
		Burst:             cfg.RateLimiting.WebSocket.Burst,
		RequireAuth:       cfg.Auth.RequireForWS,
	}, log)

	// Health
	health := monitoring.NewHealthChecker()
	health.AddRepositoryCheck(djRepo, 2*time.Second)
	health.AddBreakerCheck("dj_store_breaker", djRepo.State)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(ctxLog),
		middleware.RequestLoggerMiddleware(ctxLog),
		middleware.TracingMiddleware(),
		collector.HTTPMetricsMiddleware(),
		middleware.ErrorHandlerMiddleware(ctxLog),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	httphandlers.NewDJHandler(djService).SetupRoutes(router, middleware.AuthMiddleware(authService))
	httphandlers.NewRoomHandler(presence, hub, iceServers(cfg)).SetupRoutes(router)
	httphandlers.NewAuthHandler(authService, cfg.Auth.AllowTokenIssue).SetupRoutes(router)

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      monitoring.StatusHealthy,
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"instance_id": instanceID,
			"connections": hub.ConnectionCount(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting Streamfy server", "address", cfg.Server.Address, "instance_id", instanceID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Streamfy server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		_ = srv.Close()
	}

	// stopping the hub closes every client's send queue
	cancel()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}

	select {
	case <-backupDone:
	case <-shutdownCtx.Done():
	}

	if err := activityLogger.Close(shutdownCtx); err != nil {
		log.Errorw("Error flushing activity log", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("Streamfy server stopped")
	return nil
}

func subscribeChannelStatus(ctx context.Context, bus *clusterbus.EventBus, hub *wssignal.Hub, ctxLog *logger.ContextLogger) {
	log := ctxLog.For(ctx)
	for {
		err := bus.Subscribe(ctx, nil, func(e clusterbus.ChannelStatusEvent) error {
			return hub.ApplyRemoteChannelStatus(e.ChannelID, e.IsLive)
		})
		if ctx.Err() != nil {
			return
		}
		log.Warnw("Channel status subscription ended, retrying", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func newBackupScheduler(ctx context.Context, cfg *config.Config, repo ports.DJSessionRepository, log *zap.SugaredLogger) (*djbackup.Scheduler, error) {
	storage, err := backup.NewFileStorage(cfg.Backup.Directory)
	if err != nil {
		return nil, fmt.Errorf("init backup storage: %w", err)
	}
	scheduler := djbackup.NewScheduler(backup.NewService(storage, backupFormatVersion), repo, djbackup.Config{
		Interval: cfg.Backup.Interval,
		Keep:     cfg.Backup.Keep,
	}, log)

	if cfg.Backup.RestoreOnStart {
		if _, err := scheduler.Restore(ctx); err != nil {
			log.Warnw("Failed to restore DJ sessions from backup", "error", err)
		}
	}
	return scheduler, nil
}

func wsRate(cfg *config.Config) float64 {
	if !cfg.RateLimiting.Enabled {
		return 0
	}
	return cfg.RateLimiting.WebSocket.MessagesPerSecond
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	if len(cfg.WebRTC.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	servers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}
