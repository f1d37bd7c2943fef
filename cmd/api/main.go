package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docvault/docs"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/logger"
	"docvault/internal/otel"
	"docvault/internal/repository"
	"docvault/internal/repository/memory"
	"docvault/internal/repository/postgres"
	tokenredis "docvault/internal/repository/redis"
	"docvault/internal/service"
	"docvault/internal/storage"
	"docvault/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// @title                       Document Vault API
// @version                     1.0
// @description                 Multi-tenant document access control with single-use download links.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, falling back to UTC", cfg.Timezone)
		loc = time.UTC
	}

	zl, err := logger.New(cfg.Log, loc)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server_exited", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, zl)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, zl, cfg.Database.Host); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	objStore, err := storage.New(cfg.Storage, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	tokens, closeTokens, err := newTokenStore(cfg, db)
	if err != nil {
		return err
	}
	defer closeTokens()

	docRepo := postgres.NewDocumentPostgres(db)
	userRepo := postgres.NewUserPostgres(db)

	docSvc := service.NewDocumentService(
		objStore,
		docRepo,
		postgres.NewViewPostgres(db),
		postgres.NewCatalogPostgres(db),
		service.WithLogger(zl),
		service.WithStrictTransitions(cfg.StrictTransitions),
		service.WithViewLogTimeout(cfg.ViewLogTimeout),
	)

	metrics, err := service.NewDeliveryMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register delivery metrics: %w", err)
	}
	deliverySvc := service.NewDeliveryService(docSvc, docRepo, tokens, objStore, service.DeliveryConfig{
		BaseURL: cfg.PublicBaseURL,
		TTL:     cfg.Token.TTL,
		Logger:  zl,
		Metrics: metrics,
	})

	httpMetrics, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    cfg.UploadMaxBytes,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(zl))
	app.Use(httpMetrics.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, db, handlers.Deps{
		Documents: docSvc,
		Delivery:  deliverySvc,
		Auth:      middleware.Auth(cfg.Auth, userRepo, zl),
		Logger:    zl,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	sweeper, err := worker.NewTokenSweeper(tokens, cfg.Token.SweepSchedule, zl)
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start token sweeper: %w", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		zl.Info("server_starting", zap.String("addr", addr), zap.String("token_store", cfg.Token.Store), zap.String("storage_driver", cfg.Storage.Driver))
		listenErr <- app.Listen(addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("shutdown_requested")
	case err := <-listenErr:
		runErr = fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("http_shutdown_failed", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		zl.Error("sweeper_shutdown_failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Error("tracing_shutdown_failed", zap.Error(err))
	}

	zl.Info("server_stopped")
	return runErr
}

// newTokenStore picks the token backend. The returned func releases any
// connection the backend owns.
func newTokenStore(cfg *config.AppConfig, db *sql.DB) (repository.TokenRepository, func(), error) {
	switch cfg.Token.Store {
	case "", "postgres":
		return postgres.NewTokenPostgres(db), func() {}, nil
	case "redis":
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return tokenredis.NewTokenRedis(client), func() { _ = client.Close() }, nil
	case "memory":
		return memory.NewTokenMemory(), func() {}, nil
	default:
		return nil, nil, errors.New("unsupported TOKEN_STORE: " + cfg.Token.Store)
	}
}
