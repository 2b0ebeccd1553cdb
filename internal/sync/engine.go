package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/njoerd114/newssync/internal/notify"
	"github.com/njoerd114/newssync/internal/unread"
)

const (
	otelScope     = "newssync/sync"
	spanSync      = "sync.run"
	metricApplied = "newssync.sync.items.applied"
	metricPushed  = "newssync.sync.markers.pushed"
	metricPruned  = "newssync.sync.items.pruned"
	metricErrors  = "newssync.sync.errors"

	flightKey = "sync"
)

// State is the engine's position in its sync state machine.
type State int

const (
	StateIdle State = iota
	StateInitialSyncing
	StateSyncing
	StateBackgroundSyncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialSyncing:
		return "initial-syncing"
	case StateSyncing:
		return "syncing"
	case StateBackgroundSyncing:
		return "background-syncing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the Engine's collaborators and tunables.
type Config struct {
	API   API
	Store Store
	// Cache, Hub and Badge are created when nil.
	Cache *unread.Cache
	Hub   *notify.Hub
	Badge notify.BadgeSink

	// KeepMonths is the retention for read, unstarred items. Zero or less
	// disables pruning.
	KeepMonths int
	// Interval is the polling period of Run.
	Interval time.Duration
	// Background makes Run use background passes after the first one.
	Background bool
	Logger     *slog.Logger
}

// Engine orchestrates sync passes and local mutations. Create one with
// [NewEngine]; a pass is started with [Engine.Sync], [Engine.BackgroundSync]
// or the polling loop [Engine.Run].
type Engine struct {
	api        API
	store      Store
	cache      *unread.Cache
	hub        *notify.Hub
	badge      notify.BadgeSink
	keepMonths int
	interval   time.Duration
	background bool
	log        *slog.Logger
	now        func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	state  State

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer     trace.Tracer
	cntApplied metric.Int64Counter
	cntPushed  metric.Int64Counter
	cntPruned  metric.Int64Counter
	cntErrors  metric.Int64Counter
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		api:        cfg.API,
		store:      cfg.Store,
		cache:      cfg.Cache,
		hub:        cfg.Hub,
		badge:      cfg.Badge,
		keepMonths: cfg.KeepMonths,
		interval:   cfg.Interval,
		background: cfg.Background,
		log:        logger,
		now:        time.Now,

		tracer:     tracer,
		cntApplied: mustCounter(metricApplied, "Number of folders, feeds and items applied from the server"),
		cntPushed:  mustCounter(metricPushed, "Number of pending markers pushed to the server"),
		cntPruned:  mustCounter(metricPruned, "Number of old read items pruned locally"),
		cntErrors:  mustCounter(metricErrors, "Number of failed sync steps"),
	}
	if e.cache == nil {
		e.cache = unread.New()
	}
	if e.hub == nil {
		e.hub = notify.NewHub(logger)
	}
	if e.badge == nil {
		e.badge = notify.NopBadge{}
	}
	return e
}

// Cache returns the engine's unread cache.
func (e *Engine) Cache() *unread.Cache { return e.cache }

// Hub returns the engine's event hub.
func (e *Engine) Hub() *notify.Hub { return e.hub }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsSyncing reports whether a pass is in progress.
func (e *Engine) IsSyncing() bool {
	return e.State() != StateIdle
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// LoadCache rebuilds the unread cache from the store without contacting the
// server.
func (e *Engine) LoadCache(ctx context.Context) error {
	rows, err := e.store.UnreadStates(ctx)
	if err != nil {
		return err
	}
	e.cache.Rebuild(rows)
	return nil
}

// Sync runs a foreground pass: initial when the store has no items, repeat
// otherwise. A call made while another foreground pass is running joins it
// and receives the same report. A call made during a background pass waits
// for it and then runs its own pass, so pending markers are always pushed.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	return e.do(ctx, false)
}

// BackgroundSync runs a pull-only pass. Pending markers are left for the
// next foreground pass. A call made while any pass is running joins it.
func (e *Engine) BackgroundSync(ctx context.Context) (*Report, error) {
	return e.do(ctx, true)
}

func (e *Engine) do(ctx context.Context, background bool) (*Report, error) {
	for {
		v, err, _ := e.flight.Do(flightKey, func() (any, error) {
			return e.run(ctx, background)
		})
		rep, _ := v.(*Report)
		// A foreground call that joined a background pass has pushed nothing
		// yet, so it runs its own pass once that one is done.
		if background || rep == nil || rep.Mode != ModeBackground || ctx.Err() != nil {
			return rep, err
		}
	}
}

// run performs one pass, recording a trace span and metrics.
func (e *Engine) run(ctx context.Context, background bool) (*Report, error) {
	count, err := e.store.CountItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	mode, st := ModeRepeat, StateSyncing
	switch {
	case background:
		mode, st = ModeBackground, StateBackgroundSyncing
	case count == 0:
		mode, st = ModeInitial, StateInitialSyncing
	}

	ctx, span := e.tracer.Start(ctx, spanSync, trace.WithAttributes(attribute.String("sync.mode", mode.String())))
	defer span.End()

	e.setState(st)
	e.hub.Publish(notify.Event{Kind: notify.SyncStarted, Mode: mode.String(), Unread: e.cache.Total()})
	e.log.Debug("sync started", "mode", mode, "stored_items", count)

	var rep *Report
	switch mode {
	case ModeInitial:
		rep, err = e.initialSync(ctx)
	case ModeRepeat:
		rep, err = e.repeatSync(ctx)
	default:
		rep, err = e.backgroundSync(ctx, count == 0)
	}
	rep.Finished = e.now()

	e.finish(ctx, rep, err)

	applied := rep.Total(StepPullFolders, StepPullFeeds, StepPullItems, StepPullUnread, StepPullStarred)
	pushed := rep.Total(StepPushRead, StepPushUnread, StepPushStarred, StepPushUnstarred)
	pruned := rep.Total(StepPrune)
	failed := rep.FailedSteps()

	// Counters are safe to record even if the span is a no-op.
	if applied > 0 {
		e.cntApplied.Add(ctx, int64(applied))
	}
	if pushed > 0 {
		e.cntPushed.Add(ctx, int64(pushed))
	}
	if pruned > 0 {
		e.cntPruned.Add(ctx, int64(pruned))
	}
	if failed > 0 {
		e.cntErrors.Add(ctx, int64(failed))
	}

	span.SetAttributes(
		attribute.Int("sync.applied", applied),
		attribute.Int("sync.pushed", pushed),
		attribute.Int("sync.pruned", pruned),
		attribute.Int("sync.failed_steps", failed),
		attribute.Int64("sync.watermark", rep.Watermark),
	)
	if err != nil {
		span.RecordError(err)
	}

	e.log.Info("sync complete",
		"mode", mode,
		"applied", applied,
		"pushed", pushed,
		"pruned", pruned,
		"failed_steps", failed,
		"unread", e.cache.Total(),
		"duration", rep.Finished.Sub(rep.Started),
	)
	for _, s := range rep.Steps {
		if s.Status == StepFailed {
			e.log.Warn("sync step failed", "step", s.Name, "error", s.Err)
		}
	}

	if err != nil {
		return rep, fmt.Errorf("%s sync: %w", mode, err)
	}
	return rep, nil
}

// finish returns the engine to idle, rebuilds the cache from the store and
// announces the result.
func (e *Engine) finish(ctx context.Context, rep *Report, passErr error) {
	e.setState(StateIdle)

	if err := e.LoadCache(ctx); err != nil {
		e.log.Error("rebuilding unread cache", "error", err)
	}
	if passErr == nil {
		if err := e.store.SetLastSync(ctx, rep.Finished); err != nil {
			e.log.Error("recording last sync time", "error", err)
		}
	}

	total := e.cache.Total()
	e.hub.Publish(notify.Event{Kind: notify.SyncCompleted, Mode: rep.Mode.String(), Unread: total, Err: passErr})
	e.updateBadge(ctx, total)
}

func (e *Engine) updateBadge(ctx context.Context, n int) {
	if err := e.badge.SetBadge(ctx, n); err != nil {
		e.log.Warn("updating badge", "unread", n, "error", err)
	}
}

// unreadChanged publishes the current total after a local change.
func (e *Engine) unreadChanged(ctx context.Context) {
	total := e.cache.Total()
	e.hub.Publish(notify.Event{Kind: notify.UnreadChanged, Unread: total})
	e.updateBadge(ctx, total)
}

// Run performs an immediate pass, then one every Interval until ctx is
// cancelled. In background mode the ticks run pull-only passes.
func (e *Engine) Run(ctx context.Context) error {
	if e.interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// Run an immediate first pass.
	if _, err := e.Sync(ctx); err != nil {
		e.log.Error("initial sync pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			var err error
			if e.background {
				_, err = e.BackgroundSync(ctx)
			} else {
				_, err = e.Sync(ctx)
			}
			if err != nil {
				e.log.Error("sync pass failed", "error", err)
			}
		}
	}
}
