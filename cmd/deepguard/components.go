package main

import (
	"fmt"
	"log/slog"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/audit/archive"
	"mercator-hq/deepguard/pkg/audit/recorder"
	"mercator-hq/deepguard/pkg/audit/storage"
	"mercator-hq/deepguard/pkg/config"
	"mercator-hq/deepguard/pkg/decision/engine"
	"mercator-hq/deepguard/pkg/explain"
	"mercator-hq/deepguard/pkg/policy"
)

// openStorage opens the configured audit backend.
func openStorage(cfg *config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite audit storage: %w", err)
		}
		return store, nil
	case "jsonl":
		store, err := storage.NewJSONLStorage(storage.JSONLConfig{
			Path: cfg.JSONL.Path,
			Sync: cfg.JSONL.Sync,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open JSONL audit storage: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Backend)
	}
}

// newRecorder wraps store in the async recorder.
func newRecorder(store audit.Storage, cfg *config.RecorderConfig, logger *slog.Logger, observer recorder.Observer) *recorder.Recorder {
	opts := []recorder.Option{recorder.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, recorder.WithObserver(observer))
	}
	return recorder.New(store, &recorder.Config{
		BufferSize:     cfg.BufferSize,
		EnqueueTimeout: cfg.EnqueueTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}, opts...)
}

// newArchiver builds the archiver for store from the audit config.
func newArchiver(store audit.Storage, cfg *config.ArchiveConfig, logger *slog.Logger) (*archive.Archiver, error) {
	acfg := archive.DefaultConfig()
	acfg.Dir = cfg.Path
	acfg.Schedule = cfg.Schedule
	if cfg.Format != "" {
		acfg.Format = cfg.Format
	}
	return archive.New(store, acfg, logger)
}

// loadRules loads the configured rule file. No file means no rules.
func loadRules(cfg *config.PolicyConfig) (*policy.RuleSet, error) {
	if cfg.RulesFile == "" {
		return policy.Empty(), nil
	}
	return policy.LoadFile(cfg.RulesFile)
}

// buildEngine assembles a decision engine from the reloadable parts of the
// configuration: thresholds, rules and explanation templates.
func buildEngine(cfg *config.Config, sink audit.Sink, opts ...engine.Option) (*engine.Engine, error) {
	rules, err := loadRules(&cfg.Policy)
	if err != nil {
		return nil, err
	}
	synth, err := explain.New(cfg.Explanation.Templates)
	if err != nil {
		return nil, err
	}
	return engine.New(&engine.Config{
		Thresholds:   cfg.Decision.Thresholds,
		RequireAudit: cfg.Decision.RequireAudit,
	}, rules, synth, sink, opts...)
}
