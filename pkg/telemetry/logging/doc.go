// Package logging builds the agent's structured logger on log/slog.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
// Context-aware calls pick up ids stored on the context:
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	ctx = logging.WithMediaID(ctx, "clip.mp4")
//	logger.InfoContext(ctx, "decision made") // includes request_id and media_id
//
// When the context carries an active span, trace_id and span_id are added
// as well.
//
// Logs go to stderr by default; stdout carries decision output.
package logging
