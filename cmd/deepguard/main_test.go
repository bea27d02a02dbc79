package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/deepguard/pkg/agent"
	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/cli"
)

const testRules = `
version: 1
rules:
  - name: near-high
    builtin: near_threshold
    pivot: 0.75
    margin: 0.05
`

// writeTestConfig writes a config using a fresh SQLite audit database and
// returns its path.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
decision:
  thresholds:
    high: 0.75
    low: 0.25
audit:
  backend: sqlite
  sqlite:
    path: %s
    driver: sqlite
  archive:
    path: %s
telemetry:
  logging:
    level: error
  metrics:
    listen_address: 127.0.0.1:0
%s`, filepath.Join(dir, "audit.db"), filepath.Join(dir, "archive"), extra)

	path := filepath.Join(dir, "deepguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func resetFlags() {
	cfgFile, logLevel = "", ""
	runFlags.input, runFlags.output, runFlags.workers, runFlags.listen, runFlags.noServer = "", "", 0, "", false
	decideFlags.attrs, decideFlags.mediaID, decideFlags.format, decideFlags.noAudit = nil, "", "text", false
	validateFlags.rulesFile, validateFlags.format = "", "text"
	auditFlags.since, auditFlags.until, auditFlags.verdict, auditFlags.risk = "", "", "", ""
	auditFlags.mediaID, auditFlags.requestID, auditFlags.rule, auditFlags.eventType = "", "", "", ""
	auditFlags.limit, auditFlags.offset, auditFlags.order = 100, 0, "desc"
	auditFlags.format, auditFlags.verify = "text", false
	auditFlags.exportFormat, auditFlags.output = "jsonl", ""
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDecide_Text(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := execute(t, "decide", "0.92", "--config", cfg, "--no-audit")
	if err != nil {
		t.Fatalf("decide error = %v", err)
	}
	if !strings.Contains(out, "verdict=DEEPFAKE") || !strings.Contains(out, "risk_level=HIGH") {
		t.Errorf("output = %q", out)
	}
}

func TestDecide_JSONAndAudit(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := execute(t, "decide", "0.92", "0.10", "0.50", "--config", cfg, "--media-id", "clip.mp4", "--format", "json")
	if err != nil {
		t.Fatalf("decide error = %v", err)
	}

	var rows []decisionRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	want := []string{"DEEPFAKE", "REAL", "UNCERTAIN"}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if string(r.Decision.Verdict) != want[i] {
			t.Errorf("rows[%d].Verdict = %s, want %s", i, r.Decision.Verdict, want[i])
		}
	}

	out, err = execute(t, "audit", "query", "--config", cfg, "--format", "json", "--media-id", "clip.mp4")
	if err != nil {
		t.Fatalf("audit query error = %v", err)
	}
	var events []*audit.Event
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("audit output is not JSON: %v\n%s", err, out)
	}
	if len(events) != 3 {
		t.Errorf("audit events = %d, want 3", len(events))
	}

	out, err = execute(t, "audit", "query", "--config", cfg, "--verdict", "deepfake")
	if err != nil {
		t.Fatalf("audit query error = %v", err)
	}
	if !strings.Contains(out, "1 event(s)") || !strings.Contains(out, "clip.mp4") {
		t.Errorf("text query output = %q", out)
	}

	out, err = execute(t, "audit", "verify", "--config", cfg)
	if err != nil {
		t.Fatalf("audit verify error = %v", err)
	}
	if !strings.Contains(out, "3 event(s) verified") {
		t.Errorf("verify output = %q", out)
	}

	exportPath := filepath.Join(t.TempDir(), "audit.csv")
	if _, err := execute(t, "audit", "export", "--config", cfg, "--format", "csv", "-o", exportPath); err != nil {
		t.Fatalf("audit export error = %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Errorf("csv export has %d lines, want header + 3", lines)
	}

	out, err = execute(t, "audit", "archive", "--config", cfg)
	if err != nil {
		t.Fatalf("audit archive error = %v", err)
	}
	if !strings.Contains(out, "No new audit events") {
		t.Errorf("archive output = %q, want settle delay to hold back fresh events", out)
	}
}

func TestDecide_Errors(t *testing.T) {
	cfg := writeTestConfig(t, "")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"out of range", []string{"decide", "1.5", "--config", cfg}, cli.ExitInput},
		{"not a number", []string{"decide", "abc", "--config", cfg}, cli.ExitInput},
		{"bad attr", []string{"decide", "0.5", "--attr", "novalue", "--config", cfg}, cli.ExitError},
		{"bad format", []string{"decide", "0.5", "--format", "xml", "--config", cfg}, cli.ExitError},
		{"missing config", []string{"decide", "0.5", "--config", filepath.Join(t.TempDir(), "none.yaml")}, cli.ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("error = nil")
			}
			if got := cli.ExitCode(err); got != tt.code {
				t.Errorf("ExitCode(%v) = %d, want %d", err, got, tt.code)
			}
		})
	}
}

func TestDecide_InvalidScoreAuditsNothing(t *testing.T) {
	cfg := writeTestConfig(t, "")

	_, err := execute(t, "decide", "0.5", "1.5", "--config", cfg)
	if cli.ExitCode(err) != cli.ExitInput {
		t.Fatalf("ExitCode(%v) = %d, want %d", err, cli.ExitCode(err), cli.ExitInput)
	}

	out, err := execute(t, "audit", "query", "--config", cfg, "--format", "json")
	if err != nil {
		t.Fatalf("audit query error = %v", err)
	}
	var events []*audit.Event
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("audit output is not JSON: %v\n%s", err, out)
	}
	if len(events) != 0 {
		t.Errorf("audit events = %d, want 0 when any score is rejected", len(events))
	}
}

func TestDecide_InvalidThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("decision:\n  thresholds:\n    high: 0.3\n    low: 0.6\n"), 0o644)

	_, err := execute(t, "decide", "0.5", "--config", path)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("ExitCode(%v) = %d, want %d", err, cli.ExitCode(err), cli.ExitConfig)
	}
}

func TestExplain(t *testing.T) {
	out, err := execute(t, "explain", "uncertain", "high", "0.72")
	if err != nil {
		t.Fatalf("explain error = %v", err)
	}
	if !strings.Contains(out, "72.00%") || !strings.Contains(out, "UNCERTAIN") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "explain", "FAKE", "HIGH", "0.9"); err == nil {
		t.Error("explain with unknown verdict error = nil")
	}
	if _, err := execute(t, "explain", "REAL", "LOW", "2"); err == nil {
		t.Error("explain with out-of-range confidence error = nil")
	}
}

func TestValidate(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(rules, []byte(testRules), 0o644)
	cfg := writeTestConfig(t, "")

	out, err := execute(t, "validate", "--config", cfg, "--rules", rules, "--format", "json")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	var report validationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(report.Rules) != 1 || report.Rules[0] != "near-high" {
		t.Errorf("Rules = %v", report.Rules)
	}
	if report.HighThreshold != 0.75 || report.AuditBackend != "sqlite" {
		t.Errorf("report = %+v", report)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("rules:\n  - name: x\n    builtin: nope\n"), 0o644)
	_, err = execute(t, "validate", "--config", cfg, "--rules", bad)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("invalid rules ExitCode = %d, want %d (err %v)", cli.ExitCode(err), cli.ExitConfig, err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, "")
	in := filepath.Join(dir, "scores.txt")
	out := filepath.Join(dir, "decisions.jsonl")
	os.WriteFile(in, []byte("0.92\n{\"media_id\":\"b.mp4\",\"score\":0.72}\n1.5\n"), 0o644)

	rules := filepath.Join(dir, "rules.yaml")
	os.WriteFile(rules, []byte(testRules), 0o644)
	t.Setenv("DEEPGUARD_POLICY_RULES_FILE", rules)

	if _, err := execute(t, "run", "--config", cfg, "--input", in, "--output", out, "--no-server"); err != nil {
		t.Fatalf("run error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines = %d, want 3:\n%s", len(lines), data)
	}

	var results []agent.Result
	for _, line := range lines {
		var r agent.Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		results = append(results, r)
	}
	if results[1].Decision == nil || results[1].Decision.RiskLevel != "HIGH" {
		t.Errorf("near-threshold score = %+v, want risk raised to HIGH", results[1])
	}
	if results[2].Error == nil || results[2].Error.Kind != "validation" {
		t.Errorf("out-of-range score = %+v, want validation error", results[2])
	}

	queryOut, err := execute(t, "audit", "query", "--config", cfg, "--rule", "near-high", "--format", "json")
	if err != nil {
		t.Fatalf("audit query error = %v", err)
	}
	var events []*audit.Event
	json.Unmarshal([]byte(queryOut), &events)
	if len(events) != 1 || events[0].Payload.MediaID != "b.mp4" {
		t.Errorf("events with near-high = %d, want the b.mp4 decision", len(events))
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "DeepGuard "+Version) {
		t.Errorf("output = %q", out)
	}
}
