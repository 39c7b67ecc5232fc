package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"apmdemo/docs"
	"apmdemo/internal/cache"
	"apmdemo/internal/database"
	"apmdemo/internal/database/migration"
	handlers "apmdemo/internal/http/handler"
	"apmdemo/internal/http/middleware"
	apmotel "apmdemo/internal/otel"
	"apmdemo/internal/repository/postgres"
	"apmdemo/internal/service"
	"apmdemo/internal/storage"
	"apmdemo/internal/sysmetrics"
)

const (
	shutdownTimeout      = 10 * time.Second
	limiterIdleTTL       = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := apmotel.Init(ctx, cfg.Name, lg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			lg.Error().Err(err).Msg("tracing_shutdown_failed")
		}
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migration.EnsureMigrated(ctx, db, lg, cfg.Database.Host); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := []handlers.Check{{Name: "database", Ping: db.PingContext}}

	var c cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(cfg.Redis, reg)
		if err != nil {
			lg.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("cache_disabled")
		} else {
			c = rc
		}
	}
	defer c.Close()
	// A disabled cache reports cache.ErrUnavailable, so readiness shows it as unavailable.
	checks = append(checks, handlers.Check{Name: "cache", Ping: c.Ping, Optional: true})

	var store storage.Storage
	if cfg.MinIO.Endpoint != "" {
		store, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			lg.Warn().Err(err).Str("endpoint", cfg.MinIO.Endpoint).Msg("storage_disabled")
			store = nil
		} else {
			checks = append(checks, handlers.Check{Name: "storage", Ping: store.Ping, Optional: true})
		}
	}

	ttl := cfg.Redis.TTL()
	userRepo := postgres.NewUserPostgres(db)
	productRepo := postgres.NewProductPostgres(db)
	orderRepo := postgres.NewOrderPostgres(db)

	deps := handlers.Dependencies{
		ServiceName: cfg.Name,
		Checks:      checks,
		Users:       service.NewUserService(userRepo, c, ttl),
		Products:    service.NewProductService(productRepo, store, c, ttl),
		Orders:      service.NewOrderService(orderRepo, userRepo, productRepo, c, ttl),
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, limiterIdleTTL)
		limiter.StartCleanup(ctx, limiterCleanupPeriod)
	}

	app, err := buildApp(reg, deps, limiter)
	if err != nil {
		return err
	}

	var collector *sysmetrics.Collector
	if cfg.Metrics.SystemSchedule != "" {
		collector, err = startCollector(reg)
		if err != nil {
			lg.Warn().Err(err).Msg("system_metrics_disabled")
		}
	}

	listenErr := make(chan error, 1)
	go func() {
		lg.Info().Str("port", cfg.Port).Msg("server_starting")
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	steps := []shutdownStep{{name: "http", fn: app.ShutdownWithContext}}
	if collector != nil {
		steps = append(steps, shutdownStep{name: "system_metrics", fn: func(ctx context.Context) error {
			collector.Stop(ctx)
			return nil
		}})
	}
	return awaitShutdown(ctx, listenErr, steps...)
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// awaitShutdown blocks until the listener fails or ctx is cancelled, then runs every step in
// order under one shutdownTimeout budget. A listener failure still runs the steps.
func awaitShutdown(ctx context.Context, listenErr <-chan error, steps ...shutdownStep) error {
	var errs []error
	select {
	case err := <-listenErr:
		if err != nil {
			errs = append(errs, fmt.Errorf("listen: %w", err))
		}
	case <-ctx.Done():
		lg.Info().Msg("server_shutting_down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, step := range steps {
		if err := step.fn(shutdownCtx); err != nil {
			lg.Error().Err(err).Str("component", step.name).Msg("shutdown_failed")
			errs = append(errs, fmt.Errorf("shutdown %s: %w", step.name, err))
		}
	}

	lg.Info().Msg("server_stopped")
	return errors.Join(errs...)
}

func startCollector(reg prometheus.Registerer) (*sysmetrics.Collector, error) {
	sampler, err := sysmetrics.NewSampler()
	if err != nil {
		return nil, err
	}
	collector, err := sysmetrics.New(sampler, reg, lg)
	if err != nil {
		return nil, err
	}
	if err := collector.Start(cfg.Metrics.SystemSchedule); err != nil {
		return nil, err
	}
	return collector, nil
}

// buildApp assembles the Fiber app: global middleware, /metrics, Swagger UI and the /api routes.
// A nil limiter disables rate limiting.
func buildApp(reg *prometheus.Registry, deps handlers.Dependencies, limiter *middleware.RateLimiter) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	metrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == middleware.MetricsPath
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(lg))
	app.Use(metrics.Handler())
	if limiter != nil {
		app.Use(limiter.Handler())
	}

	app.Get(middleware.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

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

	handlers.RegisterRoutes(app, deps)
	return app, nil
}
