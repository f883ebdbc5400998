package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"speculum/internal/audit"
	"speculum/internal/config"
	"speculum/internal/definitions"
	"speculum/internal/generator"
	"speculum/internal/logging"
	"speculum/internal/processing"
	"speculum/internal/retry"
	"speculum/internal/services/github"
	"speculum/internal/state"
	"speculum/internal/telemetry"
	"speculum/internal/tracker"
)

type commandContext struct {
	configPath string

	// newTracker and newGenerator are replaced in tests.
	newTracker   func(*config.Config) (tracker.Tracker, error)
	newGenerator func(*config.Config) generator.Generator
	newLogger    func(*config.Config) (*slog.Logger, error)

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{
		newTracker: func(cfg *config.Config) (tracker.Tracker, error) {
			return github.NewFromConfig(cfg)
		},
		newGenerator: func(cfg *config.Config) generator.Generator {
			return generator.NewTemplateGenerator(filepath.Join(cfg.Paths.DefinitionsDir, "templates"))
		},
		newLogger: logging.NewFromConfig,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime holds everything a processing command needs. Close releases it in
// reverse order and flushes metrics.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *state.Store
	repo      *definitions.Repository
	audit     *audit.Store
	registry  *prometheus.Registry
	processor *processing.Processor
	watcher   *definitions.Watcher
	lock      *flock.Flock
}

type runtimeOptions struct {
	// exclusive takes the single-instance lock.
	exclusive bool
	// tracker builds the tracker client; read-only commands skip it.
	tracker bool
	// watch starts the definition watcher when the config enables it.
	watch bool
}

func (c *commandContext) openRuntime(ctx context.Context, opts runtimeOptions) (rt *runtime, err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	rt = &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if opts.exclusive {
		rt.lock = flock.New(cfg.LockPath())
		ok, lockErr := rt.lock.TryLock()
		if lockErr != nil {
			return rt, fmt.Errorf("acquire lock: %w", lockErr)
		}
		if !ok {
			rt.lock = nil
			return rt, errors.New("another speculum process holds " + cfg.LockPath())
		}
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, time.Now(),
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{filepath.Join(cfg.Paths.LogDir, "speculum.log")}},
	)

	rt.store, err = state.Open(cfg.StateFile(), state.Options{Logger: logger, Retry: retry.FromConfig(cfg, logger)})
	if err != nil {
		return rt, err
	}

	rt.repo = definitions.New(cfg.Paths.DefinitionsDir, definitions.Options{
		Strict:         cfg.Workflows.Strict,
		RescanInterval: cfg.RescanInterval(),
		Logger:         logger,
	})
	if err = rt.repo.Refresh(ctx); err != nil {
		return rt, err
	}
	if opts.watch && cfg.Workflows.Watch {
		rt.watcher, err = definitions.NewWatcher(rt.repo, 0, logger)
		if err != nil {
			return rt, fmt.Errorf("definition watcher: %w", err)
		}
		if err = rt.watcher.Start(ctx); err != nil {
			return rt, fmt.Errorf("definition watcher: %w", err)
		}
	}

	var sinks []telemetry.Sink
	if cfg.Telemetry.Enabled {
		sinks = append(sinks, telemetry.NewLogSink(logger))
		if cfg.Telemetry.Metrics {
			rt.registry = prometheus.NewRegistry()
			metrics, mErr := telemetry.NewMetricsSink(rt.registry)
			if mErr != nil {
				return rt, fmt.Errorf("metrics: %w", mErr)
			}
			sinks = append(sinks, metrics)
		}
	}
	if cfg.Telemetry.Audit {
		rt.audit, err = audit.Open(cfg.Paths.AuditDB)
		if err != nil {
			return rt, err
		}
		if cfg.Telemetry.Enabled {
			sinks = append(sinks, rt.audit)
		}
	}

	var client tracker.Tracker = unavailableTracker{}
	if opts.tracker {
		base, tErr := c.newTracker(cfg)
		if tErr != nil {
			return rt, tErr
		}
		client = tracker.WithRetry(base, retry.FromConfig(cfg, logger), cfg.TrackerTimeout())
	}

	procOpts := processing.Options{
		Config:      cfg,
		Store:       rt.store,
		Definitions: rt.repo,
		Tracker:     client,
		Generator:   c.newGenerator(cfg),
		Telemetry:   telemetry.NewPublisher(logger, sinks...),
		Logger:      logger,
	}
	if rt.audit != nil {
		procOpts.Audit = rt.audit
	}
	rt.processor, err = processing.New(procOpts)
	if err != nil {
		return rt, err
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.watcher != nil {
		_ = rt.watcher.Stop()
	}
	if rt.registry != nil {
		if err := telemetry.WriteTextfile(rt.cfg.MetricsFile(), rt.registry); err != nil {
			logging.WarnWithContext(rt.logger, "metrics textfile write failed", "metrics_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics from this run are not exported"),
			)
		}
	}
	if rt.audit != nil {
		_ = rt.audit.Close()
	}
	if rt.lock != nil {
		_ = rt.lock.Unlock()
	}
}

// pruneAudit drops audit rows older than the log retention window.
func (rt *runtime) pruneAudit(ctx context.Context) {
	if rt.audit == nil || rt.cfg.Logging.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -rt.cfg.Logging.RetentionDays)
	removed, err := rt.audit.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(rt.logger, "audit prune failed", "audit_prune_failed", logging.Error(err))
		return
	}
	if removed > 0 {
		rt.logger.Info("audit history pruned", logging.Int64("removed", removed))
	}
}
