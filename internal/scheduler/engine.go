package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
	"github.com/metalhouse/fleshrecord/internal/userstore"
)

// Clock supplies wall-clock time. Injectable so tests can drive ticks
// through trigger windows deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Reporter is the slice of the report service the engine drives.
type Reporter interface {
	Generate(ctx context.Context, user *domain.UserProfile, kind domain.ReportKind, now time.Time) (*domain.ReportResult, error)
	Deliver(ctx context.Context, user *domain.UserProfile, res *domain.ReportResult) error
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	TickInterval  time.Duration // default 60s
	MaxConcurrent int           // default 4
	MaxAttempts   int           // default 3, per (user, kind, period)
	Clock         Clock         // default wall clock
}

// Engine evaluates every configured user's report triggers on a fixed tick
// and dispatches at most one successful fire per (user, kind, period).
type Engine struct {
	store    userstore.Store
	svc      Reporter
	log      *zap.Logger
	clock    Clock
	interval time.Duration
	window   time.Duration
	table    *TriggerTable
	sem      chan struct{}
	wg       sync.WaitGroup
}

// New creates an engine. The due-window equals the tick interval (with a
// one-minute floor) so a tick coarser than a minute still catches its
// triggers exactly once.
func New(store userstore.Store, svc Reporter, log *zap.Logger, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	window := opts.TickInterval
	if window < time.Minute {
		window = time.Minute
	}
	return &Engine{
		store:    store,
		svc:      svc,
		log:      log,
		clock:    opts.Clock,
		interval: opts.TickInterval,
		window:   window,
		table:    NewTriggerTable(opts.MaxAttempts),
		sem:      make(chan struct{}, opts.MaxConcurrent),
	}
}

// Run drives the tick loop until ctx is canceled, then waits for in-flight
// fire attempts to drain.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("scheduler started",
		zap.Duration("interval", e.interval),
		zap.Duration("window", e.window))

	for {
		select {
		case <-ctx.Done():
			e.log.Info("scheduler stopping")
			e.wg.Wait()
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick evaluates every (user, kind) trigger once. Per-user problems are
// logged and skipped; they never stop the sweep.
func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()

	ids, err := e.store.List()
	if err != nil {
		e.log.Error("listing users failed", zap.Error(err))
		return
	}

	for _, id := range ids {
		user, err := e.store.Get(id)
		if err != nil {
			var cfgErr *domain.ConfigError
			if errors.As(err, &cfgErr) {
				e.log.Warn("skipping user with invalid config",
					zap.String("user", id), zap.Error(err))
			} else if !errors.Is(err, domain.ErrUserNotFound) {
				e.log.Error("loading user failed", zap.String("user", id), zap.Error(err))
			}
			continue
		}

		for _, kind := range domain.Kinds() {
			e.evaluate(ctx, user, kind, now)
		}
	}
}

// evaluate claims and dispatches one fire attempt if the trigger is newly
// satisfied (or owed a retry) for the current period.
func (e *Engine) evaluate(ctx context.Context, user *domain.UserProfile, kind domain.ReportKind, now time.Time) {
	pair := pairKey{UserID: user.UserID, Kind: kind}
	period := kind.PeriodKey(now)
	due := user.Reports.DueAt(kind, now, e.window)

	ok, skip := e.table.Begin(pair, period, due)
	if !ok {
		if skip == SkipInflight {
			// Previous attempt still running; silently skip per
			// scheduling-conflict policy.
			e.log.Debug("fire attempt already in flight",
				zap.String("user", user.UserID), zap.String("kind", string(kind)),
				zap.Error(domain.ErrSchedulingConflict))
		}
		return
	}

	e.wg.Add(1)
	go e.fire(ctx, user, pair, kind, period, now)
}

// fire runs one bounded attempt: generate, deliver, record the outcome.
// Concurrency across pairs is capped by the semaphore; attempts for the same
// pair are serialized by the in-flight claim taken in evaluate.
func (e *Engine) fire(ctx context.Context, user *domain.UserProfile, pair pairKey, kind domain.ReportKind, period string, now time.Time) {
	defer e.wg.Done()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		e.table.Finish(pair, period, false)
		return
	}

	res, err := e.svc.Generate(ctx, user, kind, now)
	if err == nil {
		err = e.svc.Deliver(ctx, user, res)
	}

	attempts, exhausted := e.table.Finish(pair, period, err == nil)
	fields := []zap.Field{
		zap.String("user", user.UserID),
		zap.String("kind", string(kind)),
		zap.String("period", period),
		zap.Int("attempt", attempts),
	}
	switch {
	case err == nil:
		e.log.Info("report fired", fields...)
	case exhausted:
		e.log.Error("report failed, attempt budget exhausted for period",
			append(fields, zap.Error(err))...)
	default:
		e.log.Warn("report attempt failed, will retry on a later tick",
			append(fields, zap.Error(err))...)
	}
}
