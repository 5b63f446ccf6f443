package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/http"
	metricsadapter "github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/adapters/security"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

type Runtime struct {
	cfg         Config
	logger      *slog.Logger
	httpServer  *http.Server
	grpcServer  *grpc.Server
	grpcLis     net.Listener
	retryWorker *eventadapter.RetryQueueWorker
	statsWorker *eventadapter.StatsReporterWorker
	cleanupFn   func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping m18 cache state management", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	client, err := cacheadapter.NewCacheClient(clientConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("init cache client: %w", err)
	}

	// A store outage at boot is not fatal: the service starts degraded and
	// the health monitor keeps dialing until the store comes back.
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.ConnectTimeout+cfg.ReadyTimeout)
	if err := client.Connect(connectCtx); err != nil {
		logger.Warn("cache store unavailable at boot; serving degraded until reconnect", "error", err)
	}
	cancelConnect()

	limiters := make(map[string]ports.RateLimiter, len(cfg.RateLimitScopes))
	for _, scope := range cfg.RateLimitScopes {
		limiter, limErr := cacheadapter.NewLimiter(client, cacheadapter.LimiterConfig{
			Algorithm:    cacheadapter.Algorithm(scope.Algorithm),
			Max:          scope.Max,
			Window:       scope.Window,
			BurstMax:     scope.BurstMax,
			BurstWindow:  scope.BurstWindow,
			SustainedMax: scope.SustainedMax,
		})
		if limErr != nil {
			_ = client.Quit(context.Background())
			return nil, fmt.Errorf("build rate limit scope %q: %w", scope.Name, limErr)
		}
		limiters[scope.Name] = limiter
	}

	operator := cacheadapter.NewOperator(client)
	lockouts := cacheadapter.NewLockoutStore(client, cacheadapter.LockoutConfig{
		Threshold:    cfg.LockoutThreshold,
		Window:       cfg.LockoutWindow,
		LockDuration: cfg.LockoutDuration,
	})
	otps := cacheadapter.NewOTPStore(client)
	profiles := cacheadapter.NewProfileStore(client)
	idempotency := cacheadapter.NewIdempotencyStore(client)
	retryQueue := cacheadapter.NewQueueStore(client, cfg.EventRetryQueueKey)

	var direct ports.EventPublisher
	var closePublisher func() error
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, kafkaErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if kafkaErr != nil {
			_ = client.Quit(context.Background())
			return nil, fmt.Errorf("init kafka publisher: %w", kafkaErr)
		}
		direct = kafkaPublisher
		closePublisher = kafkaPublisher.Close
	} else {
		logger.Warn("kafka brokers not configured; events go to the log")
		direct = eventadapter.NewLoggingPublisher(logger)
	}
	publisher := eventadapter.NewRetryPublisher(logger, direct, retryQueue)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:    cfg.ServiceID,
			Version:        cfg.Version,
			DefaultTTL:     cfg.DefaultTTL,
			IdempotencyTTL: cfg.IdempotencyTTL,
			OTPLength:      cfg.OTPLength,
			OTPTTL:         cfg.OTPTTL,
			OTPMaxAttempts: cfg.OTPMaxAttempts,
		},
		Cache:       operator,
		Diagnostics: client,
		Limiters:    limiters,
		Lockouts:    lockouts,
		OTPs:        otps,
		Profiles:    profiles,
		Idempotency: idempotency,
		Events:      publisher,
	})

	healthSrv := health.NewServer()
	if client.IsReady() {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	} else {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	// Registered before the monitor starts so no transition is missed.
	client.OnHealthChange(func(status domain.HealthStatus) {
		svc.NotifyHealthChange(status)
		if status == domain.HealthCritical {
			healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	})
	client.StartHealth()

	var verifier ports.TokenVerifier
	if cfg.JWTPublicKeyPEM != "" {
		verifier, err = security.NewJWTVerifier(cfg.JWTIssuer, cfg.JWTPublicKeyPEM)
		if err != nil {
			_ = client.Quit(context.Background())
			return nil, fmt.Errorf("init jwt verifier: %w", err)
		}
	} else {
		logger.Warn("token verification disabled; trusting bearer subjects as-is (local/dev only)")
		verifier = security.NewPassthroughVerifier()
	}

	exporter, err := metricsadapter.NewExporter(client)
	if err != nil {
		_ = client.Quit(context.Background())
		return nil, fmt.Errorf("init metrics exporter: %w", err)
	}

	handler := httpadapter.NewHandler(httpadapter.HandlerDeps{
		Service:      svc,
		Verifier:     verifier,
		KeyHasher:    security.NewBcryptKeyHasher(cfg.BcryptCost),
		AdminKeyHash: cfg.AdminKeyHash,
		Limiters:     limiters,
	})
	router := httpadapter.NewRouter(handler, exporter.Handler())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcadapter.Register(grpcServer, grpcadapter.NewCacheInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = client.Quit(context.Background())
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	// The drain worker bypasses the retry decorator on purpose: re-parking
	// through it would loop parked events forever while the broker is down.
	retryWorker := eventadapter.NewRetryQueueWorker(
		logger,
		retryQueue,
		direct,
		cfg.EventRetryInterval,
		cfg.EventRetryBatchSize,
		cfg.EventRetryMaxAttempts,
	)
	statsWorker := eventadapter.NewStatsReporterWorker(logger, svc, cfg.StatsReportInterval)

	return &Runtime{
		cfg:         cfg,
		logger:      logger,
		httpServer:  httpServer,
		grpcServer:  grpcServer,
		grpcLis:     lis,
		retryWorker: retryWorker,
		statsWorker: statsWorker,
		cleanupFn: func(ctx context.Context) {
			if err := client.Quit(ctx); err != nil {
				logger.Error("cache client shutdown failed", "error", err)
			}
			if closePublisher != nil {
				_ = closePublisher()
			}
		},
	}, nil
}

func clientConfig(cfg Config) cacheadapter.ClientConfig {
	return cacheadapter.ClientConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,

		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		ReadyTimeout:   cfg.ReadyTimeout,
		MaxRetries:     cfg.MaxRetries,

		TLSEnabled:            cfg.RedisTLSEnabled,
		TLSInsecureSkipVerify: cfg.RedisTLSInsecure,

		ClusterEnabled: cfg.RedisClusterEnabled,
		ClusterNodes:   cfg.RedisClusterNodes,

		KeyPrefix:        cfg.KeyPrefix,
		SlowOpThreshold:  cfg.SlowOpThreshold,
		TTLDefaults:      cfg.TTLDefaults,
		RefreshTTLOnRead: cfg.RefreshTTLOnRead,

		Serializer: cacheadapter.SerializerConfig{
			CompressionEnabled:   cfg.CompressionEnabled,
			CompressionThreshold: cfg.CompressionThreshold,
			EncryptionEnabled:    cfg.EncryptionEnabled,
			EncryptionSecret:     cfg.EncryptionSecret,
		},
		Health: cacheadapter.HealthConfig{
			Enabled:              true,
			Interval:             cfg.HealthInterval,
			PingTimeout:          cfg.HealthPingTimeout,
			ReconnectBase:        cfg.ReconnectBase,
			ReconnectMax:         cfg.ReconnectMax,
			ReconnectMaxAttempts: cfg.ReconnectMaxAttempts,
			MemoryAlertPercent:   cfg.MemoryAlertPercent,
			LatencyAlertMs:       cfg.LatencyAlertMs,
			ConnectionAlert:      cfg.ConnectionAlert,
		},
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("cache workers started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.retryWorker.Run(gctx) })
	g.Go(func() error { return r.statsWorker.Run(gctx) })
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
