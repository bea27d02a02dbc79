package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/deepguard/pkg/agent"
	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/audit/archive"
	"mercator-hq/deepguard/pkg/audit/recorder"
	"mercator-hq/deepguard/pkg/cli"
	"mercator-hq/deepguard/pkg/config"
	"mercator-hq/deepguard/pkg/decision/engine"
	"mercator-hq/deepguard/pkg/policy/watcher"
	"mercator-hq/deepguard/pkg/server"
	"mercator-hq/deepguard/pkg/telemetry/health"
	"mercator-hq/deepguard/pkg/telemetry/metrics"
	"mercator-hq/deepguard/pkg/telemetry/tracing"
)

var runFlags struct {
	input    string
	output   string
	workers  int
	listen   string
	noServer bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision agent",
	Long: `Run the decision agent over a stream of scores.

Scores are read one per line from --input (default stdin), either as bare
numbers or as JSON objects:

  0.92
  {"media_id":"clip-017.mp4","score":0.72,"attributes":{"source":"upload"}}

One JSON result per line is written to --output (default stdout) in input
order. The agent exits at end of input or on SIGINT/SIGTERM.

While running, the ops server exposes /metrics, /health, /ready and
/version. SIGHUP, or a change to the rules file when policy.watch is set,
reloads thresholds, rules and explanation templates without a restart.

Examples:
  # Stream scores from a detector
  detector --emit-scores | deepguard run --config deepguard.yaml

  # Batch a file of scores into a results file
  deepguard run --input scores.jsonl --output decisions.jsonl --workers 8`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.input, "input", "i", "", "input file, - for stdin (overrides agent.input)")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "", "output file, - for stdout (overrides agent.output)")
	runCmd.Flags().IntVarP(&runFlags.workers, "workers", "w", 0, "concurrent decisions (overrides agent.workers)")
	runCmd.Flags().StringVarP(&runFlags.listen, "listen", "l", "", "ops server address (overrides telemetry.metrics.listen_address)")
	runCmd.Flags().BoolVar(&runFlags.noServer, "no-server", false, "do not start the ops server")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError(err)
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	checker := health.New(cfg.Telemetry.Health.CheckTimeout)

	// Audit trail.
	var sink audit.Sink = audit.Discard
	var store audit.Storage
	var rec *recorder.Recorder
	if cfg.Audit.Enabled {
		store, err = openStorage(&cfg.Audit)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer store.Close()

		rec = newRecorder(store, &cfg.Audit.Recorder, logger, collector)
		// Closed before the storage so queued events are written.
		defer rec.Close()
		sink = rec

		checker.RegisterCheck("audit_storage", health.StorageCheck(store))
		checker.RegisterCheck("audit_recorder", health.RecorderCheck(rec))
	} else {
		logger.Warn("audit trail disabled; decisions will not be recorded")
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTracer(tracer.Tracer()),
		engine.WithObserver(collector),
	}
	eng, err := buildEngine(cfg, sink, engineOpts...)
	if err != nil {
		return cli.WrapConfigError(err)
	}
	handle := engine.NewHandle(eng)
	collector.SetThresholds(eng.Thresholds())
	checker.RegisterCheck("engine", health.EngineCheck(handle))

	logger.Info("decision engine ready",
		"high_threshold", eng.Thresholds().High,
		"low_threshold", eng.Thresholds().Low,
		"rule_set", eng.RuleSetVersion(),
		"audit_backend", auditBackend(cfg),
	)

	reload := func() error {
		err := reloadEngine(handle, sink, engineOpts, collector, logger)
		collector.ObserveReload(err)
		return err
	}

	in, closeIn, err := openInput(cfg.Agent.Input, cmd.InOrStdin())
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer closeIn()
	out, closeOut, err := openOutput(cfg.Agent.Output, cmd.OutOrStdout())
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer closeOut()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if !runFlags.noServer {
		srv := server.NewServer(&cfg.Telemetry.Metrics, collector.Handler(), checker,
			server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
			server.WithLogger(logger))
		g.Go(func() error { return srv.Start(runCtx) })
	}

	if cfg.Policy.Watch {
		fw, err := watcher.New(watcher.Config{Path: cfg.Policy.RulesFile, Debounce: cfg.Policy.Debounce}, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer fw.Stop()
		g.Go(func() error { return fw.Watch(runCtx, reload) })
	}

	hup, stopHUP := cli.ReloadSignals()
	defer stopHUP()
	g.Go(func() error {
		for {
			select {
			case <-runCtx.Done():
				return nil
			case <-hup:
				logger.Info("SIGHUP received, reloading")
				if err := reload(); err != nil {
					logger.Error("reload failed, keeping current engine", "error", err)
				}
			}
		}
	})

	if store != nil && cfg.Audit.Archive.Schedule != "" {
		archiver, err := newArchiver(store, &cfg.Audit.Archive, logger)
		if err != nil {
			return cli.WrapConfigError(err)
		}
		sched := archive.NewScheduler(archiver)
		if err := sched.Start(runCtx); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer sched.Stop()
	}

	ag := agent.New(handle, agent.WithWorkers(cfg.Agent.Workers), agent.WithLogger(logger))
	g.Go(func() error {
		// End of input ends the run.
		defer cancelRun()
		_, err := ag.Run(runCtx, in, out)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}

	if rec != nil {
		stats := rec.Stats()
		logger.Info("agent stopped",
			"audit_recorded", stats.Recorded,
			"audit_dropped", stats.Dropped,
			"audit_failed", stats.Failed,
		)
	}
	return nil
}

func applyRunFlags(cfg *config.Config) {
	if runFlags.input != "" {
		cfg.Agent.Input = runFlags.input
	}
	if runFlags.output != "" {
		cfg.Agent.Output = runFlags.output
	}
	if runFlags.workers > 0 {
		cfg.Agent.Workers = runFlags.workers
	}
	if runFlags.listen != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.listen
	}
}

// reloadEngine re-reads the configuration and swaps in a new engine built
// from its thresholds, rules and templates. Audit and telemetry settings
// need a restart. On failure the current engine stays in place.
func reloadEngine(handle *engine.Handle, sink audit.Sink, opts []engine.Option, collector *metrics.Collector, logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg, sink, opts...)
	if err != nil {
		return err
	}

	prev := handle.Swap(eng)
	collector.SetThresholds(eng.Thresholds())
	logger.Info("decision engine reloaded",
		"high_threshold", eng.Thresholds().High,
		"low_threshold", eng.Thresholds().Low,
		"rule_set", eng.RuleSetVersion(),
		"previous_rule_set", prev.RuleSetVersion(),
	)
	return nil
}

func auditBackend(cfg *config.Config) string {
	if !cfg.Audit.Enabled {
		return "disabled"
	}
	return cfg.Audit.Backend
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
