package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/decision/engine"
	"mercator-hq/deepguard/pkg/explain"
	"mercator-hq/deepguard/pkg/telemetry/logging"
)

type captureSink struct {
	mu       sync.Mutex
	payloads []*audit.Payload
}

func (s *captureSink) Record(_ context.Context, _ string, p *audit.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return nil
}

func newTestAgent(t *testing.T, sink audit.Sink, opts ...Option) *Agent {
	t.Helper()
	e, err := engine.New(nil, nil, explain.Default(), sink)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(engine.NewHandle(e), opts...)
}

func decodeResults(t *testing.T, out string) []Result {
	t.Helper()
	var results []Result
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("output line %q is not JSON: %v", sc.Text(), err)
		}
		results = append(results, r)
	}
	return results
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		wantErr bool
		score   float64
		mediaID string
	}{
		{"bare number", "0.92", true, false, 0.92, ""},
		{"padded number", "  0.1 \r", true, false, 0.1, ""},
		{"object", `{"media_id":"a.mp4","score":0.5,"attributes":{"source":"upload"}}`, true, false, 0.5, "a.mp4"},
		{"out of range is parsed", "1.5", true, false, 1.5, ""},
		{"blank", "   ", false, false, 0, ""},
		{"comment", "# header", false, false, 0, ""},
		{"not a number", "high", true, true, 0, ""},
		{"missing score", `{"media_id":"a.mp4"}`, true, true, 0, ""},
		{"unknown field", `{"score":0.5,"scroe":1}`, true, true, 0, ""},
		{"bad json", `{"score":`, true, true, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok, err := ParseLine([]byte(tt.line))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !ok || tt.wantErr {
				return
			}
			if req.Score != tt.score || req.MediaID != tt.mediaID {
				t.Errorf("req = %+v, want score %v media %q", req, tt.score, tt.mediaID)
			}
		})
	}
}

func TestAgent_Run(t *testing.T) {
	sink := &captureSink{}
	a := newTestAgent(t, sink, WithWorkers(3))

	in := strings.Join([]string{
		"# scores from detector",
		"0.92",
		`{"request_id":"r-2","media_id":"clip.mp4","score":0.10}`,
		"",
		"1.5",
		"0.50",
		"abc",
	}, "\n")

	var out strings.Builder
	stats, err := a.Run(context.Background(), strings.NewReader(in), &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Decided != 3 || stats.Failed != 2 {
		t.Errorf("stats = %+v, want 3 decided 2 failed", stats)
	}

	results := decodeResults(t, out.String())
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5\n%s", len(results), out.String())
	}

	wantLines := []int{2, 3, 5, 6, 7}
	for i, r := range results {
		if r.Line != wantLines[i] {
			t.Errorf("results[%d].Line = %d, want %d", i, r.Line, wantLines[i])
		}
	}

	if results[0].Decision == nil || results[0].Decision.Verdict != decision.VerdictDeepfake {
		t.Errorf("line 2 = %+v, want DEEPFAKE", results[0])
	}
	if results[0].RequestID == "" {
		t.Error("line 2 has no generated request id")
	}
	if results[1].RequestID != "r-2" || results[1].MediaID != "clip.mp4" || results[1].Decision.Verdict != decision.VerdictReal {
		t.Errorf("line 3 = %+v", results[1])
	}
	if results[2].Error == nil || results[2].Error.Kind != "validation" {
		t.Errorf("line 5 = %+v, want validation error", results[2])
	}
	if results[3].Decision == nil || results[3].Decision.RiskLevel != decision.RiskMedium {
		t.Errorf("line 6 = %+v, want MEDIUM", results[3])
	}
	if results[4].Error == nil || results[4].Error.Kind != KindInput {
		t.Errorf("line 7 = %+v, want input error", results[4])
	}

	if len(sink.payloads) != 3 {
		t.Errorf("audit events = %d, want 3", len(sink.payloads))
	}
	found := false
	for _, p := range sink.payloads {
		if p.RequestID == results[0].RequestID {
			found = true
		}
	}
	if !found {
		t.Error("output request id does not match any audit event")
	}
}

func TestAgent_Ordering(t *testing.T) {
	a := newTestAgent(t, audit.Discard, WithWorkers(8))

	var in strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&in, "{\"media_id\":\"m-%d\",\"score\":%.3f}\n", i, float64(i%100)/100)
	}

	var out strings.Builder
	if _, err := a.Run(context.Background(), strings.NewReader(in.String()), &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results := decodeResults(t, out.String())
	if len(results) != 200 {
		t.Fatalf("results = %d, want 200", len(results))
	}
	for i, r := range results {
		if r.MediaID != fmt.Sprintf("m-%d", i) {
			t.Fatalf("results[%d].MediaID = %q, out of order", i, r.MediaID)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestAgent_WriteError(t *testing.T) {
	a := newTestAgent(t, audit.Discard)

	in := strings.Repeat("0.5\n", 100)
	_, err := a.Run(context.Background(), strings.NewReader(in), failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Run() error = %v, want write failure", err)
	}
}

func TestAgent_Cancelled(t *testing.T) {
	a := newTestAgent(t, audit.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	_, err := a.Run(ctx, strings.NewReader("0.5\n0.6\n"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("cancelled run wrote %q", out.String())
	}
}

func TestAgent_CancelWhileInputIdle(t *testing.T) {
	a := newTestAgent(t, audit.Discard)

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		stats Stats
		err   error
	}
	done := make(chan runResult, 1)
	go func() {
		stats, err := a.Run(ctx, pr, io.Discard)
		done <- runResult{stats, err}
	}()

	// Returns once the agent has consumed the line; the pipe then stays open
	// with nothing more to read.
	if _, err := pw.Write([]byte("0.5\n")); err != nil {
		t.Fatalf("pipe write error = %v", err)
	}
	cancel()

	select {
	case res := <-done:
		if !errors.Is(res.err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation with idle input")
	}
}

func TestAgent_LineTooLong(t *testing.T) {
	a := newTestAgent(t, audit.Discard)

	in := "0.5\n" + strings.Repeat("1", maxLineSize+1) + "\n"
	var out strings.Builder
	stats, err := a.Run(context.Background(), strings.NewReader(in), &out)
	if err == nil {
		t.Fatal("Run() error = nil, want read error")
	}
	if stats.Decided != 1 {
		t.Errorf("Decided = %d, want 1 before the failure", stats.Decided)
	}
}
