package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/cli"
	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/explain"
	"mercator-hq/deepguard/pkg/telemetry/logging"
)

var decideFlags struct {
	attrs   []string
	mediaID string
	format  string
	noAudit bool
}

var decideCmd = &cobra.Command{
	Use:   "decide SCORE...",
	Short: "Decide one or more scores",
	Long: `Classify scores with the configured thresholds and rules and print the
decisions. Each decision is recorded in the audit trail unless --no-audit is
given.

Examples:
  deepguard decide 0.92
  deepguard decide 0.72 --attr source=upload --media-id clip-017.mp4
  deepguard decide 0.92 0.50 0.10 --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: decideScores,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringArrayVar(&decideFlags.attrs, "attr", nil, "media attribute key=value (repeatable)")
	decideCmd.Flags().StringVar(&decideFlags.mediaID, "media-id", "", "media identifier recorded with each decision")
	decideCmd.Flags().StringVar(&decideFlags.format, "format", "text", "output format: text, json, csv")
	decideCmd.Flags().BoolVar(&decideFlags.noAudit, "no-audit", false, "do not record decisions in the audit trail")
}

// decisionRow is one decided score.
type decisionRow struct {
	Score    float64         `json:"score"`
	MediaID  string          `json:"media_id,omitempty"`
	Decision decision.Record `json:"decision"`
}

type decisionTable []decisionRow

func (t decisionTable) Header() []string {
	return []string{"SCORE", "VERDICT", "CONFIDENCE", "RISK", "EXPLANATION"}
}

func (t decisionTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			string(r.Decision.Verdict),
			explain.FormatConfidence(r.Decision.Confidence),
			string(r.Decision.RiskLevel),
			r.Decision.Explanation,
		})
	}
	return rows
}

func decideScores(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(decideFlags.format)
	if err != nil {
		return err
	}
	attrs, err := parseAttrs(decideFlags.attrs)
	if err != nil {
		return err
	}
	scores := make([]float64, 0, len(args))
	for _, arg := range args {
		score, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("%w: score %q is not a number", decision.ErrValidation, arg)
		}
		// All scores are checked before the first one is decided and audited.
		if err := decision.ValidateScore(score); err != nil {
			return cli.NewCommandError("decide", err)
		}
		scores = append(scores, score)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var sink audit.Sink = audit.Discard
	if cfg.Audit.Enabled && !decideFlags.noAudit {
		store, err := openStorage(&cfg.Audit)
		if err != nil {
			return cli.NewCommandError("decide", err)
		}
		defer store.Close()
		rec := newRecorder(store, &cfg.Audit.Recorder, logger, nil)
		defer rec.Close()
		sink = rec
	}

	eng, err := buildEngine(cfg, sink)
	if err != nil {
		return cli.WrapConfigError(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithMediaID(ctx, decideFlags.mediaID)

	table := make(decisionTable, 0, len(scores))
	for _, score := range scores {
		rec, err := eng.Evaluate(ctx, &decision.Request{
			MediaID:    decideFlags.mediaID,
			Score:      score,
			Attributes: attrs,
		})
		if err != nil {
			return cli.NewCommandError("decide", err)
		}
		table = append(table, decisionRow{Score: score, MediaID: decideFlags.mediaID, Decision: rec})
	}

	var data any = table
	if format == cli.FormatText && len(table) == 1 {
		data = table[0].Decision
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), data)
}

// parseAttrs parses repeated key=value flags.
func parseAttrs(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --attr %q: expected key=value", kv)
		}
		attrs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return attrs, nil
}
