package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/servicehub/internal/admin"
	"github.com/sudo-init-do/servicehub/internal/alerts"
	"github.com/sudo-init-do/servicehub/internal/app"
	"github.com/sudo-init-do/servicehub/internal/auth"
	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/events"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/metrics"
	mware "github.com/sudo-init-do/servicehub/internal/middleware"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	// Event sinks: all best effort, failures are logged by the service
	feed := events.NewFeed(logger)
	sinks := events.Fanout{feed}
	var metricsSink *metrics.Sink
	if cfg.MetricsEnabled {
		metricsSink = metrics.New()
		sinks = append(sinks, metricsSink)
	}
	if cfg.EventsEnabled {
		rdb, err := events.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sinks = append(sinks, events.NewStreamPublisher(rdb, cfg.EventsStream, cfg.EventsMaxLen))
		logger.Info("publishing events to redis stream", "stream", cfg.EventsStream)
	}
	if cfg.AlertsEnabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		sinks = append(sinks, alerts.NewNotifier(client))

		worker := alerts.NewWorker(redisOpt, cfg.AlertsWorkers, logger)
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Shutdown()
	}

	svc := marketplace.NewService(backend.Store,
		marketplace.WithEventSink(sinks),
		marketplace.WithLogger(logger),
	)
	verifier := mware.NewVerifier(cfg.JWTSecret)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	e := echo.New()
	e.HideBanner = true
	e.Validator = mware.NewRequestValidator()

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := backend.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	if metricsSink != nil {
		e.GET("/metrics", echo.WrapHandler(metricsSink.Handler()))
	}

	// Bootstrap is rate limited per IP to slow down secret guessing
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(5)))
	authGroup.POST("/bootstrap", auth.NewBootstrapHandler(issuer, cfg.AdminBootstrapSecret).BootstrapAdmin)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware(verifier))
	api.GET("/auth/me", auth.Me)

	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware(verifier))
	adminGroup.Use(mware.AdminGuard)

	marketplace.NewHandler(svc, issuer, verifier, logger).RegisterRoutes(api, adminGroup)
	wallet.NewHandler(backend.Ledger).RegisterRoutes(api, adminGroup)
	admin.NewHandler(backend.Stats, backend.Ledger, logger).RegisterRoutes(adminGroup)
	feed.RegisterRoutes(api)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
