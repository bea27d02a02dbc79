package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newSampler builds a parent-based sampler from a ratio. 1 samples every
// root span and 0 none; anything between samples by trace ID hash, so the
// decision is stable for a given trace across services.
//
//	telemetry:
//	  tracing:
//	    sample_ratio: 0.1  # 10% of decisions
//
// Child spans follow their parent's decision.
func newSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var base sdktrace.Sampler
	switch ratio {
	case 1:
		base = sdktrace.AlwaysSample()
	case 0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(base), nil
}
