package export

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/deepguard/pkg/audit"
)

// CSVExporter writes events as flat CSV rows.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Format returns "csv".
func (e *CSVExporter) Format() string { return FormatCSV }

// Header returns the column names.
func (e *CSVExporter) Header() []string {
	return []string{
		"id", "event_type", "recorded_at", "request_id", "media_id",
		"verdict", "confidence", "risk_level", "score",
		"base_verdict", "base_risk_level", "applied_rules", "flags", "attributes",
		"high_threshold", "low_threshold", "rule_set_version", "decided_at",
		"explanation", "payload_hash",
	}
}

// Export writes events as CSV.
func (e *CSVExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(e.Header()); err != nil {
			return audit.NewExportError(FormatCSV, 0, err)
		}
	}
	for i, event := range events {
		if err := writer.Write(e.row(event)); err != nil {
			return audit.NewExportError(FormatCSV, i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError(FormatCSV, len(events), err)
	}
	return nil
}

// ExportStream writes events from eventsCh as CSV, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(e.Header()); err != nil {
			return 0, audit.NewExportError(FormatCSV, 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, audit.NewExportError(FormatCSV, count, err)
				}
				return count, nil
			}

			if err := writer.Write(e.row(event)); err != nil {
				return count, audit.NewExportError(FormatCSV, count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, audit.NewExportError(FormatCSV, count, err)
				}
			}
		}
	}
}

func (e *CSVExporter) row(event *audit.Event) []string {
	p := event.Payload
	return []string{
		event.ID,
		event.Type,
		formatTime(event.RecordedAt),
		p.RequestID,
		p.MediaID,
		string(p.Verdict),
		formatFloat(p.Confidence),
		string(p.RiskLevel),
		formatFloat(p.Score),
		string(p.BaseVerdict),
		string(p.BaseRiskLevel),
		strings.Join(p.AppliedRules, ";"),
		strings.Join(p.Flags, ";"),
		formatAttributes(p.Attributes),
		formatFloat(p.Thresholds.High),
		formatFloat(p.Thresholds.Low),
		p.RuleSetVersion,
		formatTime(p.DecidedAt),
		p.Explanation,
		event.PayloadHash,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatAttributes renders attributes as k=v pairs sorted by key.
func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + attrs[k]
	}
	return strings.Join(pairs, ";")
}
