// Package tracing provides OpenTelemetry tracing for the decision agent.
//
// Each decision is one span ("decision.decide") carrying the score, media
// ID, final verdict, risk level and the rules that changed the result.
// Spans are exported over OTLP/gRPC when enabled; otherwise a noop tracer
// is used and tracing costs almost nothing.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	eng, err := engine.New(engCfg, rules, explainer, sink, engine.WithTracer(tracer.Tracer()))
//
// Sampling is parent-based: a sampled caller's trace is always continued,
// and root spans are sampled by trace ID at telemetry.tracing.sample_ratio.
package tracing
