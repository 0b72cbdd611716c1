package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/eventhorizon/horizon/internal/audit"
	"github.com/eventhorizon/horizon/internal/challenge"
	"github.com/eventhorizon/horizon/internal/clock"
	"github.com/eventhorizon/horizon/internal/config"
	"github.com/eventhorizon/horizon/internal/directory"
	"github.com/eventhorizon/horizon/internal/keys"
	"github.com/eventhorizon/horizon/internal/observability/logger"
	"github.com/eventhorizon/horizon/internal/observability/metrics"
	"github.com/eventhorizon/horizon/internal/observability/tracing"
	"github.com/eventhorizon/horizon/internal/revocation"
	"github.com/eventhorizon/horizon/internal/rotation"
	"github.com/eventhorizon/horizon/internal/store/postgres"
	"github.com/eventhorizon/horizon/internal/token"
	transportHTTP "github.com/eventhorizon/horizon/internal/transport/http"
)

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting event horizon credential service")

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
		tracer = tracing.Noop()
	}
	defer tracer.Shutdown(context.Background())

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.MetricsEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	defer meter.Shutdown(context.Background())

	credentialMetrics, err := metrics.NewCredentials(meter)
	if err != nil {
		return fmt.Errorf("failed to create credential metrics: %w", err)
	}

	// Public key directory
	repo, closeRepo, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	clk := clock.System{}
	auditLogger := audit.NewSlogLogger()

	// Credential core
	keyStore, err := keys.NewStore(keys.Config{
		MaxPreviousKeys:  cfg.Credentials.MaxPreviousKeys,
		RotationInterval: cfg.Credentials.RotationInterval,
		Clock:            clk,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize key store: %w", err)
	}
	registry := revocation.NewRegistry(clk)
	if err := metrics.ObserveRevocations(meter, func() (int, int) {
		stats := registry.Stats()
		return stats.Revoked, stats.Blacklisted
	}); err != nil {
		return fmt.Errorf("failed to observe revocation registry: %w", err)
	}

	tokens, err := token.NewAuthority(token.Config{
		Keys:        keyStore,
		Revocations: registry,
		DefaultTTL:  cfg.Credentials.AccessTokenTTL,
		Clock:       clk,
		Audit:       auditLogger,
		Metrics:     credentialMetrics,
	})
	if err != nil {
		return err
	}

	challenges, err := challenge.NewAuthenticator(challenge.Config{
		Keys:    keyStore,
		Window:  cfg.Credentials.ChallengeWindow,
		Clock:   clk,
		Audit:   auditLogger,
		Metrics: credentialMetrics,
	})
	if err != nil {
		return err
	}

	scheduler, err := rotation.NewScheduler(rotation.Config{
		Keys:             keyStore,
		Revocations:      registry,
		RotationInterval: cfg.Credentials.RotationInterval,
		CleanupInterval:  cfg.Credentials.CleanupInterval,
		Audit:            auditLogger,
		Metrics:          credentialMetrics,
	})
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// HTTP surface
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Close()

	handler := transportHTTP.NewHandler(transportHTTP.Dependencies{
		Tokens:               tokens,
		Challenges:           challenges,
		Directory:            directory.NewService(repo, auditLogger, clk),
		Keys:                 keyStore,
		Audit:                auditLogger,
		Tracer:               tracer,
		Clock:                clk,
		RequireRegisteredKey: cfg.Credentials.RequireRegisteredKey,
		TokenTTL:             cfg.Credentials.AccessTokenTTL,
	})
	router := transportHTTP.NewRouter(handler, rateLimiter, meter.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server",
			logger.Component("server"),
			logger.Operation("listen"),
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

// openDirectory returns the configured public key repository and its release function
func openDirectory(ctx context.Context, cfg *config.Config) (directory.Repository, func(), error) {
	if cfg.Directory.Driver != config.DriverPostgres {
		slog.Info("using in-memory public key directory")
		return directory.NewMemoryRepository(), func() {}, nil
	}

	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database")

	repo := directory.NewCachedRepository(postgres.NewPublicKeyRepository(db), cfg.Directory.CacheTTL)
	return repo, db.Close, nil
}

func databaseConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}
