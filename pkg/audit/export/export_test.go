package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/audit/storage"
	"mercator-hq/deepguard/pkg/decision"
)

func createTestEvent(id string) *audit.Event {
	return &audit.Event{
		ID:         id,
		Type:       audit.EventDecisionMade,
		RecordedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload: audit.Payload{
			RequestID: "req-" + id,
			MediaID:   "clip-" + id + ".mp4",
			Record: decision.Record{
				Verdict:     decision.VerdictUncertain,
				Confidence:  0.72,
				RiskLevel:   decision.RiskHigh,
				Explanation: "The media is classified as UNCERTAIN, with \"quotes\", commas.",
			},
			Score:          0.72,
			BaseVerdict:    decision.VerdictUncertain,
			BaseRiskLevel:  decision.RiskMedium,
			AppliedRules:   []string{"near-high", "screen-capture"},
			Attributes:     map[string]string{"source": "screen", "codec": "h264"},
			Thresholds:     decision.DefaultThresholds(),
			RuleSetVersion: "abc123",
			DecidedAt:      time.Date(2026, 1, 2, 3, 4, 4, 0, time.UTC),
		},
		PayloadHash: "deadbeef",
	}
}

func feed(events ...*audit.Event) <-chan *audit.Event {
	ch := make(chan *audit.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name   string
		events []*audit.Event
		want   int
	}{
		{"empty", nil, 0},
		{"single", []*audit.Event{createTestEvent("1")}, 1},
		{"multiple", []*audit.Event{createTestEvent("1"), createTestEvent("2"), createTestEvent("3")}, 3},
	}

	for _, tt := range tests {
		for _, pretty := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/pretty=%t", tt.name, pretty), func(t *testing.T) {
				var buf bytes.Buffer
				if err := NewJSONExporter(pretty).Export(context.Background(), tt.events, &buf); err != nil {
					t.Fatalf("Export() error = %v", err)
				}

				var decoded []audit.Event
				if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
					t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
				}
				if len(decoded) != tt.want {
					t.Errorf("decoded %d events, want %d", len(decoded), tt.want)
				}
			})
		}
	}
}

func TestJSONExporter_ExportStream(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer
		n, err := NewJSONExporter(pretty).ExportStream(context.Background(), feed(createTestEvent("1"), createTestEvent("2")), &buf)
		if err != nil {
			t.Fatalf("ExportStream() error = %v", err)
		}
		if n != 2 {
			t.Errorf("ExportStream() = %d, want 2", n)
		}

		var decoded []audit.Event
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("pretty=%t: output is not valid JSON: %v\n%s", pretty, err, buf.String())
		}
		if decoded[1].ID != "2" || decoded[1].Payload.Verdict != decision.VerdictUncertain {
			t.Errorf("decoded[1] = %+v", decoded[1])
		}
	}

	// Empty stream is an empty array.
	var buf bytes.Buffer
	NewJSONExporter(true).ExportStream(context.Background(), feed(), &buf)
	if buf.String() != "[]" {
		t.Errorf("empty stream = %q, want []", buf.String())
	}
}

func TestJSONLExporter(t *testing.T) {
	var buf bytes.Buffer
	events := []*audit.Event{createTestEvent("1"), createTestEvent("2")}
	if err := NewJSONLExporter().Export(context.Background(), events, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var e audit.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

func TestCSVExporter_Export(t *testing.T) {
	exporter := NewCSVExporter(true)
	var buf bytes.Buffer
	if err := exporter.Export(context.Background(), []*audit.Event{createTestEvent("1")}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	header, row := rows[0], rows[1]
	if len(row) != len(header) {
		t.Fatalf("row has %d columns, header %d", len(row), len(header))
	}

	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("missing column %q", name)
		return ""
	}

	checks := map[string]string{
		"id":              "1",
		"verdict":         "UNCERTAIN",
		"risk_level":      "HIGH",
		"confidence":      "0.72",
		"base_risk_level": "MEDIUM",
		"applied_rules":   "near-high;screen-capture",
		"attributes":      "codec=h264;source=screen",
		"high_threshold":  "0.75",
		"recorded_at":     "2026-01-02T03:04:05Z",
		"explanation":     "The media is classified as UNCERTAIN, with \"quotes\", commas.",
	}
	for name, want := range checks {
		if got := col(name); got != want {
			t.Errorf("column %s = %q, want %q", name, got, want)
		}
	}
}

func TestCSVExporter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	NewCSVExporter(false).Export(context.Background(), []*audit.Event{createTestEvent("1")}, &buf)
	if strings.HasPrefix(buf.String(), "id,") {
		t.Error("header written with IncludeHeader=false")
	}
}

func TestCSVExporter_ExportStream(t *testing.T) {
	events := make([]*audit.Event, 250)
	for i := range events {
		events[i] = createTestEvent(fmt.Sprint(i))
	}

	var buf bytes.Buffer
	n, err := NewCSVExporter(true).ExportStream(context.Background(), feed(events...), &buf)
	if err != nil || n != 250 {
		t.Fatalf("ExportStream() = %d, %v; want 250", n, err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if len(rows) != 251 {
		t.Errorf("rows = %d, want 251", len(rows))
	}
}

func TestExportStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	never := make(chan *audit.Event)
	for _, format := range []string{FormatJSON, FormatJSONL, FormatCSV} {
		exporter, _ := New(format)
		var buf bytes.Buffer
		if _, err := exporter.ExportStream(ctx, never, &buf); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: ExportStream() error = %v, want context.Canceled", format, err)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "JSON", "jsonl", "ndjson", "csv"} {
		exporter, err := New(format)
		if err != nil {
			t.Errorf("New(%q) error = %v", format, err)
			continue
		}
		if !strings.HasPrefix(Extension(format), ".") {
			t.Errorf("Extension(%q) = %q", format, Extension(format))
		}
		_ = exporter.Format()
	}
	if _, err := New("xml"); err == nil {
		t.Error("New(xml) should fail")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteError(t *testing.T) {
	err := NewJSONExporter(false).Export(context.Background(), []*audit.Event{createTestEvent("1")}, failingWriter{})
	var exportErr *audit.ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("Export() error = %v, want *ExportError", err)
	}
	if exportErr.Format != FormatJSON {
		t.Errorf("Format = %q, want json", exportErr.Format)
	}
}

func TestStream(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := createTestEvent(fmt.Sprint(i))
		e.RecordedAt = e.RecordedAt.Add(time.Duration(i) * time.Second)
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	var buf bytes.Buffer
	n, err := Stream(ctx, store, &audit.Query{SortOrder: audit.SortAsc}, NewJSONLExporter(), &buf)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Stream() = %d, want 5", n)
	}
	if got := strings.Count(buf.String(), "\n"); got != 5 {
		t.Errorf("lines = %d, want 5", got)
	}
}
