package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/audit/export"
	"mercator-hq/deepguard/pkg/audit/recorder"
	"mercator-hq/deepguard/pkg/cli"
	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/explain"
)

var auditFlags struct {
	since     string
	until     string
	verdict   string
	risk      string
	mediaID   string
	requestID string
	rule      string
	eventType string
	limit     int
	offset    int
	order     string
	format    string
	verify    bool

	exportFormat string
	output       string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Review the audit trail",
	Long: `Query, export and archive the decision audit trail.

The audit trail is append-only: none of these commands modify recorded
events.

Subcommands:
  query    - List events matching filters
  export   - Stream matching events to a file
  archive  - Copy events recorded since the last archive into the archive directory
  verify   - Check every event's payload hash`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	Long: `Query audit events with filters.

Time filters accept RFC3339 timestamps or a duration meaning "that long ago".

Examples:
  # Deepfakes in the last 24 hours
  deepguard audit query --since 24h --verdict DEEPFAKE

  # Decisions changed by a rule, as CSV
  deepguard audit query --rule near-high --format csv

  # Everything about one file
  deepguard audit query --media-id clip-017.mp4 --format json`,
	RunE: queryAudit,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events",
	Long: `Stream audit events matching the filters to a file or stdout without
loading them all into memory.

Examples:
  deepguard audit export --format csv -o audit.csv
  deepguard audit export --since 2026-10-01T00:00:00Z --format jsonl > october.jsonl`,
	RunE: exportAudit,
}

var auditArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive new audit events",
	Long: `Write events recorded since the previous archive run to a new file in
audit.archive.path and advance the watermark. The same run is scheduled by
audit.archive.schedule while the agent is running.`,
	RunE: archiveAudit,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit event hashes",
	Long: `Recompute the payload hash of every matching event and report events
whose payload no longer matches the hash recorded when it was written.`,
	RunE: verifyAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditExportCmd, auditArchiveCmd, auditVerifyCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditExportCmd, auditVerifyCmd} {
		c.Flags().StringVar(&auditFlags.since, "since", "", "start time (RFC3339 or duration ago, e.g. 24h)")
		c.Flags().StringVar(&auditFlags.until, "until", "", "end time (RFC3339 or duration ago)")
		c.Flags().StringVar(&auditFlags.verdict, "verdict", "", "filter by verdict (REAL, DEEPFAKE, UNCERTAIN)")
		c.Flags().StringVar(&auditFlags.risk, "risk", "", "filter by risk level (LOW, MEDIUM, HIGH)")
		c.Flags().StringVar(&auditFlags.mediaID, "media-id", "", "filter by media id")
		c.Flags().StringVar(&auditFlags.requestID, "request-id", "", "filter by request id")
		c.Flags().StringVar(&auditFlags.rule, "rule", "", "filter by applied policy rule")
		c.Flags().StringVar(&auditFlags.eventType, "event-type", "", "filter by event type")
		c.Flags().StringVar(&auditFlags.order, "order", "desc", "sort order by time: asc, desc")
	}

	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json, csv")
	auditQueryCmd.Flags().BoolVar(&auditFlags.verify, "verify", false, "verify payload hashes of returned events")

	auditExportCmd.Flags().StringVar(&auditFlags.exportFormat, "format", "jsonl", "export format: json, jsonl, csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
}

// eventTable renders events for text output.
type eventTable []*audit.Event

func (t eventTable) Header() []string {
	return []string{"RECORDED", "MEDIA", "SCORE", "VERDICT", "CONFIDENCE", "RISK", "RULES", "REQUEST"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		p := e.Payload
		media := p.MediaID
		if media == "" {
			media = "-"
		}
		rules := strings.Join(p.AppliedRules, ",")
		if rules == "" {
			rules = "-"
		}
		rows = append(rows, []string{
			e.RecordedAt.UTC().Format(time.RFC3339),
			media,
			fmt.Sprintf("%.4f", p.Score),
			string(p.Verdict),
			explain.FormatConfidence(p.Confidence),
			string(p.RiskLevel),
			rules,
			p.RequestID,
		})
	}
	return rows
}

// buildQuery builds a query from the shared filter flags.
func buildQuery(now time.Time) (*audit.Query, error) {
	q := &audit.Query{
		MediaID:   auditFlags.mediaID,
		RequestID: auditFlags.requestID,
		Rule:      auditFlags.rule,
		EventType: auditFlags.eventType,
		SortOrder: auditFlags.order,
	}

	var err error
	if q.StartTime, err = parseTimeFlag("--since", auditFlags.since, now); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTimeFlag("--until", auditFlags.until, now); err != nil {
		return nil, err
	}
	if auditFlags.verdict != "" {
		if q.Verdict, err = decision.ParseVerdict(auditFlags.verdict); err != nil {
			return nil, err
		}
	}
	if auditFlags.risk != "" {
		if q.RiskLevel, err = decision.ParseRiskLevel(auditFlags.risk); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// parseTimeFlag accepts an RFC3339 timestamp or a duration before now.
func parseTimeFlag(name, value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid %s %q: expected RFC3339 time or a positive duration", name, value)
	}
	t := now.Add(-d)
	return &t, nil
}

// openAuditStorage opens the configured backend for reading.
func openAuditStorage() (audit.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := newLogger(cfg, os.Stderr); err != nil {
		return nil, err
	}
	store, err := openStorage(&cfg.Audit)
	if err != nil {
		return nil, cli.NewCommandError("audit", err)
	}
	return store, nil
}

func queryAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(auditFlags.format)
	if err != nil {
		return err
	}
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}
	q.Limit = auditFlags.limit
	q.Offset = auditFlags.offset
	if err := q.Validate(); err != nil {
		return err
	}

	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}

	if auditFlags.verify {
		if err := verifyEvents(cmd.ErrOrStderr(), events); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	switch format {
	case cli.FormatText:
		if len(events) == 0 {
			_, err := fmt.Fprintln(w, "No audit events found.")
			return err
		}
		if err := cli.NewFormatter(format).FormatTo(w, eventTable(events)); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\n%d event(s)\n", len(events))
		return err
	default:
		exporter, err := export.New(string(format))
		if err != nil {
			return err
		}
		return exporter.Export(cmd.Context(), events, w)
	}
}

func exportAudit(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(auditFlags.exportFormat)
	if err != nil {
		return err
	}
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}

	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	var w io.Writer = cmd.OutOrStdout()
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		defer f.Close()
		w = f
	}

	n, err := export.Stream(cmd.Context(), store, q, exporter, w)
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}
	if auditFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d event(s) to %s\n", n, auditFlags.output)
	}
	return nil
}

func archiveAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	store, err := openStorage(&cfg.Audit)
	if err != nil {
		return cli.NewCommandError("audit archive", err)
	}
	defer store.Close()

	archiver, err := newArchiver(store, &cfg.Audit.Archive, logger)
	if err != nil {
		return cli.WrapConfigError(err)
	}
	res, err := archiver.Run(cmd.Context())
	if err != nil {
		return cli.NewCommandError("audit archive", err)
	}

	w := cmd.OutOrStdout()
	if res.Count == 0 {
		_, err := fmt.Fprintln(w, "No new audit events to archive.")
		return err
	}
	_, err = fmt.Fprintf(w, "✓ Archived %d event(s) to %s\n", res.Count, res.Path)
	return err
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}

	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	events, errCh, err := store.QueryStream(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("audit verify", err)
	}

	var checked, bad int
	for e := range events {
		checked++
		ok, err := recorder.Verify(e)
		if err != nil || !ok {
			bad++
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s (request %s): payload hash mismatch\n", e.ID, e.Payload.RequestID)
		}
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("audit verify", err)
	}

	if bad > 0 {
		return cli.NewCommandError("audit verify", fmt.Errorf("%d of %d event(s) failed verification", bad, checked))
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ %d event(s) verified\n", checked)
	return err
}

// verifyEvents reports tampered events among an already loaded result set.
func verifyEvents(w io.Writer, events []*audit.Event) error {
	bad := 0
	for _, e := range events {
		if ok, err := recorder.Verify(e); err != nil || !ok {
			bad++
			fmt.Fprintf(w, "✗ %s: payload hash mismatch\n", e.ID)
		}
	}
	if bad > 0 {
		return cli.NewCommandError("audit query", fmt.Errorf("%d event(s) failed verification", bad))
	}
	return nil
}
