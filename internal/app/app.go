package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/auth"
	"github.com/metalhouse/fleshrecord/internal/config"
	"github.com/metalhouse/fleshrecord/internal/dify"
	"github.com/metalhouse/fleshrecord/internal/firefly"
	"github.com/metalhouse/fleshrecord/internal/notify"
	"github.com/metalhouse/fleshrecord/internal/report"
	"github.com/metalhouse/fleshrecord/internal/scheduler"
	"github.com/metalhouse/fleshrecord/internal/server"
	"github.com/metalhouse/fleshrecord/internal/userstore"
)

// App wires the report engine and the HTTP surface over shared collaborators.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	store   *userstore.DirStore
	engine  *scheduler.Engine
	httpSrv *http.Server
}

// New constructs every collaborator. Nothing starts running until Run.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	store, err := userstore.Open(cfg.UserConfigDir)
	if err != nil {
		return nil, err
	}

	ledger := firefly.New(cfg.FireflyAPIURL, cfg.RequestTimeout, log.Named("firefly"))
	workflow := dify.New(cfg.DifyAPIURL, cfg.DifyTimeout, log.Named("dify"))
	notifier := notify.New(cfg.RequestTimeout, log.Named("notify"))

	svc := report.NewService(ledger, workflow, notifier, log.Named("report"))
	engine := scheduler.New(store, svc, log.Named("scheduler"), scheduler.Options{
		TickInterval:  cfg.TickInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxAttempts:   cfg.MaxAttempts,
	})

	guard := auth.NewGuard(store, log.Named("auth"))
	srv := server.New(store, guard, ledger, notifier, log.Named("server"), cfg.RateLimitPerMinute)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		engine:  engine,
		httpSrv: httpSrv,
	}, nil
}

// Run starts the scheduler and the HTTP server and blocks until a shutdown
// signal arrives, then drains both.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting fleshrecord",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("users", a.cfg.UserConfigDir),
		zap.Duration("tick", a.cfg.TickInterval))

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		a.engine.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case err := <-httpErr:
		a.log.Error("http server error", zap.Error(err))
		stop()
		<-engineDone
		return err
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	// The engine waits for in-flight report attempts before returning.
	<-engineDone
	a.log.Info("stopped")
	return nil
}
