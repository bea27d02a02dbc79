package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/audit/export"
)

// WatermarkFile is the file in the archive directory that records the
// RecordedAt of the last archived event.
const WatermarkFile = ".watermark"

// Config configures the archiver.
type Config struct {
	// Dir receives archive files. Created if missing.
	Dir string `yaml:"path"`

	// Format is the export format: json, jsonl or csv.
	// Default: "jsonl".
	Format string `yaml:"format"`

	// Schedule is a standard five-field cron expression. Empty disables
	// scheduled runs; Run can still be called directly.
	// Example: "0 3 * * *" (daily at 3 AM).
	Schedule string `yaml:"schedule"`

	// SettleDelay excludes events recorded within this window before a run,
	// so events still in the recorder queue land in the next archive.
	// Default: 30s.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:         "data/archive",
		Format:      export.FormatJSONL,
		SettleDelay: 30 * time.Second,
	}
}

// Result describes one archive run.
type Result struct {
	// Path of the written archive. Empty when there was nothing to archive.
	Path string

	// Count of events written.
	Count int

	// Since and Until bound the RecordedAt of the archived window.
	Since time.Time
	Until time.Time
}

// Archiver copies audit events recorded since its previous run into
// timestamped files. It never modifies or removes events from storage.
type Archiver struct {
	store    audit.Storage
	config   Config
	exporter export.Exporter
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex // serialises runs
}

// New creates an archiver.
func New(store audit.Storage, config *Config, logger *slog.Logger) (*Archiver, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Dir == "" {
		return nil, errors.New("archive directory is required")
	}
	if cfg.Format == "" {
		cfg.Format = export.FormatJSONL
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("settle delay must be >= 0, got %s", cfg.SettleDelay)
	}

	exporter, err := export.New(cfg.Format)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Archiver{
		store:    store,
		config:   cfg,
		exporter: exporter,
		logger:   logger.With("component", "audit.archiver"),
		now:      time.Now,
	}, nil
}

// Run archives every event recorded after the watermark and before
// now minus SettleDelay, then advances the watermark.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.config.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create archive directory: %w", err)
	}

	since, err := a.readWatermark()
	if err != nil {
		return Result{}, err
	}
	until := a.now().UTC().Add(-a.config.SettleDelay)

	q := &audit.Query{EndTime: &until, SortOrder: audit.SortAsc}
	if !since.IsZero() {
		start := since.Add(time.Nanosecond)
		if start.After(until) {
			return Result{Since: since, Until: until}, nil
		}
		q.StartTime = &start
	}

	name := fmt.Sprintf("audit-%s%s", until.Format("20060102T150405Z"), export.Extension(a.config.Format))
	final := filepath.Join(a.config.Dir, name)

	tmp, err := os.CreateTemp(a.config.Dir, ".archive-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	last, count, err := a.write(ctx, q, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Result{}, fmt.Errorf("archive export failed: %w", err)
	}

	result := Result{Since: since, Until: until, Count: count}
	if count == 0 {
		a.logger.Debug("nothing to archive", "since", since, "until", until)
		return result, nil
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return Result{}, fmt.Errorf("failed to finalise archive: %w", err)
	}
	if err := a.writeWatermark(last); err != nil {
		return Result{}, err
	}

	result.Path = final
	a.logger.Info("audit events archived",
		"path", final,
		"count", count,
		"since", since,
		"until", until,
	)
	return result, nil
}

// write streams q into w and returns the RecordedAt of the last event.
func (a *Archiver) write(ctx context.Context, q *audit.Query, w *os.File) (time.Time, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventsCh, errCh, err := a.store.QueryStream(ctx, q)
	if err != nil {
		return time.Time{}, 0, err
	}

	// Forward events while remembering the newest one.
	var last time.Time
	forwarded := make(chan *audit.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(forwarded)
		for e := range eventsCh {
			if e.RecordedAt.After(last) {
				last = e.RecordedAt
			}
			select {
			case forwarded <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	count, err := a.exporter.ExportStream(ctx, forwarded, w)
	cancel()
	<-done
	if err != nil {
		return time.Time{}, count, err
	}
	if err := <-errCh; err != nil {
		return time.Time{}, count, err
	}
	return last, count, nil
}

// Watermark returns the RecordedAt of the last archived event, or the zero
// time if nothing was archived yet.
func (a *Archiver) Watermark() (time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readWatermark()
}

func (a *Archiver) readWatermark() (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(a.config.Dir, WatermarkFile))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read archive watermark: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt archive watermark: %w", err)
	}
	return t, nil
}

func (a *Archiver) writeWatermark(t time.Time) error {
	path := filepath.Join(a.config.Dir, WatermarkFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write archive watermark: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write archive watermark: %w", err)
	}
	return nil
}
