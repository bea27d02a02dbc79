// Package export serialises audit events for offline review and archival.
//
// Three formats are supported:
//
//   - json: a single JSON array, optionally indented
//   - jsonl: one JSON object per line, readable by the JSONL storage backend
//   - csv: one flat row per event with a fixed column set
//
// Every exporter can work from a slice or stream from a channel, which pairs
// with audit.Storage.QueryStream for exports larger than memory:
//
//	eventsCh, errCh, err := store.QueryStream(ctx, q)
//	if err != nil {
//	    return err
//	}
//	n, err := exporter.ExportStream(ctx, eventsCh, w)
//	if err == nil {
//	    err = <-errCh
//	}
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"mercator-hq/deepguard/pkg/audit"
)

// Supported formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// Exporter serialises audit events.
type Exporter interface {
	// Format returns the format name.
	Format() string

	// Export writes events to w.
	Export(ctx context.Context, events []*audit.Event, w io.Writer) error

	// ExportStream writes events from eventsCh until it is closed and
	// returns the number written.
	ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) (int, error)
}

// New returns the exporter for a format name.
func New(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return NewJSONExporter(true), nil
	case FormatJSONL, "ndjson":
		return NewJSONLExporter(), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want json, jsonl or csv)", format)
	}
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatJSONL, "ndjson":
		return ".jsonl"
	case FormatCSV:
		return ".csv"
	default:
		return ".json"
	}
}

// Stream queries storage and writes the result through exporter. It returns
// the number of events written.
func Stream(ctx context.Context, store audit.Storage, q *audit.Query, exporter Exporter, w io.Writer) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventsCh, errCh, err := store.QueryStream(ctx, q)
	if err != nil {
		return 0, err
	}

	n, err := exporter.ExportStream(ctx, eventsCh, w)
	if err != nil {
		return n, err
	}
	if err := <-errCh; err != nil {
		return n, err
	}
	return n, nil
}
