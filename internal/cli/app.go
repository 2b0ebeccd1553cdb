package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/newssync/internal/config"
	"github.com/njoerd114/newssync/internal/credentials"
	"github.com/njoerd114/newssync/internal/newsapi"
	"github.com/njoerd114/newssync/internal/notify"
	"github.com/njoerd114/newssync/internal/state"
	syncp "github.com/njoerd114/newssync/internal/sync"
	"github.com/njoerd114/newssync/internal/telemetry"
)

// app is everything a command needs after startup.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *state.Store
	client *newsapi.Client
	engine *syncp.Engine

	closers []func() error
}

// newLogger builds the process logger: text on stderr, copied into OTel logs
// when telemetry is enabled.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(telemetry.NewLogHandler(text, telemetry.DefaultServiceName))
	slog.SetDefault(logger)
	return logger
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\n\nRun 'newssync setup' to create one", err)
	}
	return cfg, nil
}

// resolvePassword prefers the config file, then the keyring.
func resolvePassword(cfg *config.Config) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}
	pw, err := credentials.New("").Load(cfg.ServerURL, cfg.Username)
	if errors.Is(err, credentials.ErrNotFound) {
		return "", fmt.Errorf("no password for %s: run 'newssync login' or set password in the config", cfg.Username)
	}
	return pw, err
}

// openApp loads config, telemetry, the store, the API client and the engine,
// then fills the unread cache from the store. Call close when done.
func openApp(ctx context.Context, withTelemetry bool) (*app, error) {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if withTelemetry && cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.FromConfig(cfg.Telemetry))
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.closers = append(a.closers, func() error {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return shutdownTel(flushCtx)
			})
		}
	}

	password, err := resolvePassword(cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	a.client, err = newsapi.NewClient(cfg.ServerURL, cfg.Username, password, logger,
		newsapi.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, a.fail(err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		if dbPath, err = state.DefaultDBPath(); err != nil {
			return nil, a.fail(fmt.Errorf("resolving state DB path: %w", err))
		}
	}
	a.store, err = state.Open(dbPath)
	if err != nil {
		return nil, a.fail(fmt.Errorf("opening state DB at %q: %w", dbPath, err))
	}
	a.closers = append(a.closers, a.store.Close)
	logger.Debug("state DB opened", "path", dbPath)

	var badge notify.BadgeSink = notify.LogBadge{Log: logger}
	if cfg.BadgeFile != "" {
		badge = notify.FileBadge{Path: cfg.BadgeFile}
	}

	a.engine = syncp.NewEngine(syncp.Config{
		API:        a.client,
		Store:      a.store,
		Badge:      badge,
		KeepMonths: cfg.Retention(),
		Interval:   cfg.SyncInterval,
		Background: cfg.Background,
		Logger:     logger,
	})
	if err := a.engine.LoadCache(ctx); err != nil {
		return nil, a.fail(fmt.Errorf("loading unread cache: %w", err))
	}
	return a, nil
}

func (a *app) fail(err error) error {
	return errors.Join(err, a.close())
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
