// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"

	"github.com/gonziita68/restaurante-gyz/internal/cache"
	"github.com/gonziita68/restaurante-gyz/internal/config"
	"github.com/gonziita68/restaurante-gyz/internal/database"
	"github.com/gonziita68/restaurante-gyz/internal/handlers"
	"github.com/gonziita68/restaurante-gyz/internal/i18n"
	"github.com/gonziita68/restaurante-gyz/internal/mail"
	"github.com/gonziita68/restaurante-gyz/internal/metrics"
	"github.com/gonziita68/restaurante-gyz/internal/models"
	"github.com/gonziita68/restaurante-gyz/internal/queue"
	"github.com/gonziita68/restaurante-gyz/internal/repository"
	authsvc "github.com/gonziita68/restaurante-gyz/internal/services/auth"
	"github.com/gonziita68/restaurante-gyz/internal/services/email"
	"github.com/gonziita68/restaurante-gyz/internal/services/session"
	"github.com/gonziita68/restaurante-gyz/internal/services/throttle"
	"github.com/gonziita68/restaurante-gyz/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// App holds every long-lived component of the process.
type App struct {
	Config   *config.Config
	DB       *sqlx.DB
	Repo     *repository.Repository
	Metrics  *metrics.Metrics
	Broker   queue.Broker // nil in sync mode
	Cache    cache.Cache
	Enqueuer *email.Enqueuer
	Worker   *email.Worker // nil in sync mode
	Auth     *authsvc.Service
	Sessions *session.Manager
	Echo     *echo.Echo
}

// NewApp opens the database, runs migrations and wires the email pipeline,
// the account service and the HTTP routes.
func NewApp(cfg *config.Config) (*App, error) {
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app := &App{Config: cfg, DB: db, Repo: repository.New(db), Metrics: metrics.New()}

	if err := app.init(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init() error {
	cfg := a.Config

	if err := database.RunMigrations(a.DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if cfg.Queue.Mode == config.QueueModeQueue {
		broker, err := queue.Open(&cfg.Queue, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to open queue: %w", err)
		}
		a.Broker = broker
	}

	c, err := cache.Open(cfg.Throttle.Backend, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	a.Cache = c

	renderer, err := mail.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load email templates: %w", err)
	}
	sender, err := newSender(&cfg.SMTP)
	if err != nil {
		return err
	}

	dispatcher := email.NewDispatcher(a.Repo, renderer, sender, cfg.SMTP.From, a.Metrics)
	var q queue.Queue
	if a.Broker != nil {
		q = a.Broker
		a.Worker = email.NewWorker(email.WorkerConfig{
			Workers:     cfg.Queue.Workers,
			MaxAttempts: cfg.Queue.MaxAttempts,
			RetryBase:   cfg.Queue.RetryBase,
		}, a.Broker, dispatcher, a.Metrics)
	}
	a.Enqueuer = email.NewEnqueuer(email.EnqueuerConfig{
		Mode:          cfg.Queue.Mode,
		SubmitTimeout: cfg.Queue.SubmitTimeout,
	}, dispatcher, q, a.Metrics)

	activation, reset, err := authsvc.NewTokenIssuers(&cfg.Token, a.Repo)
	if err != nil {
		return fmt.Errorf("failed to init tokens: %w", err)
	}
	a.Auth = authsvc.NewService(a.Repo, email.NewNotifier(a.Enqueuer, cfg.Brand), authsvc.Options{
		BaseURL:    cfg.Server.BaseURL,
		Activation: activation,
		Reset:      reset,
		Resend:     throttle.New(a.Cache, models.PurposeVerification, cfg.Throttle.Cooldown),
		Metrics:    a.Metrics,
	})

	a.Sessions, err = session.NewManager(&cfg.Session, cfg.Secure())
	if err != nil {
		return fmt.Errorf("failed to init sessions: %w", err)
	}

	a.Echo = newEcho(cfg, a.Sessions, a.Repo)
	a.setupRoutes()
	return nil
}

// newSender returns the SMTP transport, or a logging sender when no host is set.
func newSender(cfg *config.SMTPConfig) (mail.Sender, error) {
	if cfg.Host == "" {
		slog.Warn("no SMTP host configured, emails are logged only")
		return &mail.LogSender{Logger: slog.Default()}, nil
	}
	sender, err := mail.NewSMTPSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init SMTP sender: %w", err)
	}
	return sender, nil
}

func newEcho(cfg *config.Config, sessions *session.Manager, users UserLoader) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg, sessions, users)
	return e
}

func (a *App) setupRoutes() {
	e := a.Echo
	h := handlers.New(a.Repo)
	ah := handlers.NewAuth(a.Auth, a.Sessions)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))

	g := e.Group("/auth")
	g.POST("/register", ah.Register)
	g.POST("/login", ah.Login)
	g.POST("/logout", ah.Logout)
	g.GET("/me", ah.Me, RequireAuth())
	g.GET("/activate/:uid/:token", ah.Activate)
	g.POST("/verification/resend", ah.ResendVerification)
	g.POST("/password-reset", ah.PasswordResetRequest)
	g.GET("/password-reset/:uid/:token", ah.PasswordResetCheck)
	g.POST("/password-reset/:uid/:token", ah.PasswordResetConfirm)
	g.POST("/password", ah.ChangePassword, RequireAuth())
}

// Close releases the queue, the cache and the database.
func (a *App) Close() error {
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// Run starts the server with the given CLI command. With the in-memory queue
// the worker pool runs inside the server process.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"queue_mode", cfg.Queue.Mode,
	)

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("failed to close resources", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker outlives the signal so it can drain the memory queue after Close.
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()
	workerDone := make(chan struct{})
	inProcess := app.Worker != nil && cfg.Queue.Backend != config.BackendRedis
	if inProcess {
		go func() {
			defer close(workerDone)
			_ = app.Worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	errChan := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := app.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	drainCtx := shutdownCtx
	if inProcess {
		_ = app.Broker.Close()
		var cancelDrain context.CancelFunc
		drainCtx, cancelDrain = context.WithTimeout(context.Background(), max(shutdownTimeout, app.Worker.DrainTimeout()))
		defer cancelDrain()
	}
	select {
	case <-workerDone:
	case <-drainCtx.Done():
		cancelWorker()
		<-workerDone
	}

	slog.Info("server stopped")
	return nil
}

// RunWorker consumes the Redis queue until SIGINT or SIGTERM.
func RunWorker(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.Queue.Mode != config.QueueModeQueue || cfg.Queue.Backend != config.BackendRedis {
		return errors.New("worker needs --queue-mode=queue and --queue-backend=redis")
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			slog.Error("failed to close resources", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Worker.Run(ctx)
}

