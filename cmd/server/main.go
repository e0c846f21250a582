package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/cache"
	"github.com/oggyb/muzz-events/internal/config"
	"github.com/oggyb/muzz-events/internal/db"
	"github.com/oggyb/muzz-events/internal/logger"
	"github.com/oggyb/muzz-events/internal/server"
	"github.com/oggyb/muzz-events/internal/service/chat"
	"github.com/oggyb/muzz-events/internal/service/event"
	"github.com/oggyb/muzz-events/internal/service/explore"
	"github.com/oggyb/muzz-events/internal/service/match"
	"github.com/oggyb/muzz-events/internal/service/profile"
	"github.com/oggyb/muzz-events/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(context.Background()); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	sentryEnabled := false
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.App.ENV,
		}); err != nil {
			log.Error("sentry init failed", "err", err)
		} else {
			sentryEnabled = true
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Inject logger into app context
	appCtx := app.New(database, redisCache, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, db.SeedOptions{}); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	profiles := profile.NewProfileService(appCtx)
	if cfg.S3.Endpoint != "" {
		client, err := storage.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		profiles.WithImageStore(storage.NewS3Storage(client, cfg.S3.Bucket))
	} else {
		log.Warn("S3_ENDPOINT not set, image upload disabled")
	}

	api := server.NewHTTPApp(appCtx,
		server.HTTPOptions{Sentry: sentryEnabled, AccessLog: cfg.App.ENV == "development"},
		profile.NewRegistrar(appCtx).WithService(profiles),
		match.NewRegistrar(appCtx),
		event.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		explore.NewRegistrar(appCtx),
	)
	grpcServer, healthServer := server.NewGRPCServer()

	serverErr := make(chan error, 2)

	go func() {
		log.Info("starting gRPC health server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		if err := server.StartGRPCServer(cfg, grpcServer); err != nil {
			serverErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port)
		if err := server.Listen(api, cfg); err != nil {
			serverErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	failed := waitForShutdown(log, quit, serverErr)

	log.Info("shutting down")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	if err := api.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("HTTP shutdown failed", "err", err)
	}
	grpcServer.GracefulStop()
	log.Info("server exited")
	return failed
}

// waitForShutdown blocks until a signal arrives or a server fails.
// Returns the server error, nil on a signal.
func waitForShutdown(log *slog.Logger, quit <-chan os.Signal, serverErr <-chan error) error {
	select {
	case sig := <-quit:
		log.Info("received signal", "signal", sig.String())
		return nil
	case err := <-serverErr:
		log.Error("server stopped unexpectedly", "err", err)
		return err
	}
}
