package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"

	"github.com/prometheus/client_golang/prometheus"
)

const maxRequestBytes = 1 << 20

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting gatehouse authorization service")

	ctx := context.Background()

	// OpenTelemetry (optional)
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	// Prometheus metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// PostgreSQL
	cm, err := postgres.NewConnectionManager(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	if err := postgres.RunMigrations(ctx, cm.Primary(), logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	// Redis role-name cache (optional)
	var redisClient *postgres.RedisClient
	if cfg.Storage.CacheEnabled {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to redis")
			os.Exit(1)
		}
	}

	// Role directory, with cache tiers when enabled
	var directory authz.AdminDirectory = postgres.NewRoleDirectory(cm)
	if cfg.Storage.CacheEnabled {
		directory = postgres.NewCachedDirectory(directory, redisClient, cfg.Storage, logger, metrics)
	}

	// Authenticators
	keys := postgres.NewKeyDirectory(cm)
	authenticators := []auth.Authenticator{auth.NewAPIKeyAuthenticator(keys)}
	if cfg.Auth.OIDCEnabled {
		oidcAuth, err := auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
			IssuerURL: cfg.Auth.OIDCIssuerURL,
			ClientID:  cfg.Auth.OIDCClientID,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to initialize OIDC authenticator")
			os.Exit(1)
		}
		authenticators = append(authenticators, oidcAuth)
	}
	chain := auth.NewChain(authenticators...)

	engine := authz.NewEngine(directory, logger, metrics)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(cfg.Observability.OTelServiceName)
		if err != nil {
			logger.WithError(err).Error("Failed to create OpenTelemetry instruments")
			os.Exit(1)
		}
		engine.SetOTelMetrics(otelMetrics)
	}

	// API router
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger, metrics),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)

	authMiddleware := middleware.NewAuthMiddleware(chain, logger)
	api := router.PathPrefix("/v1").Subrouter()
	api.Use(authMiddleware.Handler)

	if cfg.Server.RateLimitEnabled && redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient.Client(), &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMin,
			WindowDuration:    time.Minute,
		}, logger)
		api.Use(limiter.Handler)
	}

	authz.NewHandlers(engine, logger).RegisterRoutes(api)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authz.RequireAdminAccess(engine))
	authz.NewAdminHandlers(directory, logger).RegisterRoutes(admin)

	// Health and metrics server on its own port for probes
	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("postgres", cm.HealthCheck)
	if redisClient != nil {
		healthChecker.Register("redis", redisClient.Ping)
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.Register(func(ctx context.Context) error {
		return cm.Close()
	})
	if redisClient != nil {
		shutdown.Register(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.Register(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	go func() {
		logger.Infof("Listening on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.Wait(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
