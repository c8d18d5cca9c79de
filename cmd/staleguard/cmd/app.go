package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/dispatch"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
	"github.com/good-yellow-bee/staleguard/internal/recipients"
	"github.com/good-yellow-bee/staleguard/internal/storage"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *Config
	logger     *zap.Logger
	store      *storage.SQLiteStorage
	redis      *redis.Client
	redisState *storage.RedisStateStore
	states     alerting.StateStore
	catalog    *alerting.CatalogHolder
	controller *alerting.Controller
	notifier   *notifier.Dispatcher
	orch       *dispatch.Orchestrator
}

// openStore opens and migrates the SQLite database.
func openStore(cfg *Config) (*storage.SQLiteStorage, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path, cfg.Alerts.TerminalStatuses)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.Database.Path, err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// loadCatalog returns the configured rules file, or the built-in catalog.
func loadCatalog(cfg *Config) (*alerting.Catalog, error) {
	if cfg.Rules.File == "" {
		return alerting.DefaultCatalog(), nil
	}
	cat, err := alerting.LoadCatalogFromFile(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return cat, nil
}

// newApp wires storage, the controller, notifiers and the orchestrator.
func newApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	a.catalog = alerting.NewCatalogHolder(cat)
	metrics.CatalogRules.Set(float64(cat.Len()))

	if err := a.initStateStore(ctx); err != nil {
		return err
	}

	hours, err := cfg.businessHours()
	if err != nil {
		return err
	}
	a.controller = alerting.NewController(a.states, a.store.AlertHistory(), &alerting.ControllerOptions{
		DailyCap:      cfg.Alerts.DailyCap,
		BusinessHours: hours,
		Now:           time.Now,
		Logger:        a.logger.Named("controller"),
	})

	dispatcher, err := buildNotifier(cfg, a.logger)
	if err != nil {
		return err
	}
	a.notifier = dispatcher

	templates, err := notifier.LoadTemplates()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	a.orch, err = dispatch.New(dispatch.Options{
		Catalog:       a.catalog,
		Controller:    a.controller,
		Source:        a.store.Entities(),
		Resolver:      recipients.NewResolver(cfg.Recipients),
		Notifier:      a.notifier,
		Composer:      templates,
		NotifyTimeout: mustDuration(cfg.Alerts.NotifyTimeout),
		MinAgeDays:    cfg.Alerts.MinAgeDays,
		Logger:        a.logger.Named("dispatch"),
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	return nil
}

func (a *app) initStateStore(ctx context.Context) error {
	switch a.cfg.State.Backend {
	case StateBackendMemory:
		a.logger.Warn("using in-memory cooldown state, history fallback applies after restarts")
		a.states = alerting.NewMemoryStateStore()
	case StateBackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Address,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		rs := storage.NewRedisStateStore(a.redis, storage.RedisStateOptions{
			Prefix: a.cfg.Redis.Prefix,
			TTL:    mustDuration(a.cfg.Redis.StateTTL),
			Logger: a.logger.Named("redis"),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return fmt.Errorf("connect redis at %s: %w", a.cfg.Redis.Address, err)
		}
		a.redisState = rs
		a.states = rs
	default:
		a.states = a.store.CooldownStates()
	}
	return nil
}

// buildNotifier registers the configured channels behind a rate-limited
// dispatcher. Email is the primary channel; Slack and Teams mirror it.
// Dry-run mode registers only the log notifier.
func buildNotifier(cfg *Config, logger *zap.Logger) (*notifier.Dispatcher, error) {
	rl := notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notifiers.RateLimit.MaxPerWindow,
		Window:       mustDuration(cfg.Notifiers.RateLimit.Window),
		Enabled:      cfg.Notifiers.RateLimit.Enabled == nil || *cfg.Notifiers.RateLimit.Enabled,
	}
	d := notifier.NewDispatcherWithRateLimit(rl, logger.Named("notifier"))

	if cfg.Alerts.DryRun {
		d.Register(notifier.NewLogNotifier(logger.Named("dry-run")))
		return d, nil
	}

	if cfg.Notifiers.Email.Enabled {
		e := cfg.Notifiers.Email
		email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:       e.Host,
			Port:       e.Port,
			Username:   e.Username,
			Password:   e.Password,
			From:       e.From,
			RequireTLS: e.RequireTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		d.Register(email)
	}

	if cfg.Notifiers.Slack.Enabled {
		level, err := models.ParseLevel(cfg.Notifiers.Slack.MinLevel)
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		slack, err := notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL: cfg.Notifiers.Slack.WebhookURL,
			MinLevel:   level,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		d.RegisterMirror(slack)
	}

	if cfg.Notifiers.Teams.Enabled {
		level, err := models.ParseLevel(cfg.Notifiers.Teams.MinLevel)
		if err != nil {
			return nil, fmt.Errorf("teams notifier: %w", err)
		}
		teams, err := notifier.NewTeamsNotifier(notifier.TeamsConfig{
			WebhookURL: cfg.Notifiers.Teams.WebhookURL,
			MinLevel:   level,
		})
		if err != nil {
			return nil, fmt.Errorf("teams notifier: %w", err)
		}
		d.RegisterMirror(teams)
	}

	return d, nil
}

// Close releases every resource the app opened.
func (a *app) Close() error {
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// withApp loads config, builds the app and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// withStore loads config and opens the database only.
func withStore(fn func(cfg *Config, store *storage.SQLiteStorage) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}
