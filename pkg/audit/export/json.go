package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/deepguard/pkg/audit"
)

// JSONExporter writes events as a single JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Format returns "json".
func (e *JSONExporter) Format() string { return FormatJSON }

// Export writes events as a JSON array. An empty slice produces "[]".
func (e *JSONExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	if events == nil {
		events = []*audit.Event{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return audit.NewExportError(FormatJSON, 0, err)
	}

	if _, err := w.Write(data); err != nil {
		return audit.NewExportError(FormatJSON, 0, err)
	}
	return nil
}

// ExportStream writes events from eventsCh as a JSON array without holding
// them all in memory. It returns when the channel is closed or ctx is done.
func (e *JSONExporter) ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, audit.NewExportError(FormatJSON, 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				closing := "]"
				if e.Pretty && count > 0 {
					closing = "\n]"
				}
				if _, err := io.WriteString(w, closing); err != nil {
					return count, audit.NewExportError(FormatJSON, count, err)
				}
				return count, nil
			}

			sep := ","
			if count == 0 {
				sep = ""
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return count, audit.NewExportError(FormatJSON, count, err)
			}

			data, err := e.marshal(event)
			if err != nil {
				return count, audit.NewExportError(FormatJSON, count, err)
			}
			if _, err := w.Write(data); err != nil {
				return count, audit.NewExportError(FormatJSON, count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) marshal(event *audit.Event) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(event, "  ", "  ")
	}
	return json.Marshal(event)
}

// JSONLExporter writes one JSON object per line, the same layout the JSONL
// storage backend uses, so an export can be re-imported as a store.
type JSONLExporter struct{}

// NewJSONLExporter creates a new JSON Lines exporter.
func NewJSONLExporter() *JSONLExporter {
	return &JSONLExporter{}
}

// Format returns "jsonl".
func (e *JSONLExporter) Format() string { return FormatJSONL }

// Export writes each event on its own line.
func (e *JSONLExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(event); err != nil {
			return audit.NewExportError(FormatJSONL, i, err)
		}
	}
	return nil
}

// ExportStream writes events from eventsCh, one per line.
func (e *JSONLExporter) ExportStream(ctx context.Context, eventsCh <-chan *audit.Event, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case event, ok := <-eventsCh:
			if !ok {
				return count, nil
			}
			if err := enc.Encode(event); err != nil {
				return count, audit.NewExportError(FormatJSONL, count, err)
			}
			count++
		}
	}
}
