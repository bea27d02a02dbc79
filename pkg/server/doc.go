// The ops server binds telemetry.metrics.listen_address and serves:
//
//   - <telemetry.metrics.path> (default /metrics): Prometheus exposition
//   - /health: liveness
//   - /ready: readiness (engine loaded, audit storage reachable)
//   - /version: build information
//
// Decisions are not served over HTTP; the agent reads scores from its input
// stream.
//
//	srv := server.NewServer(&cfg.Telemetry.Metrics, collector.Handler(), checker, info,
//	    server.WithLogger(logger))
//	go srv.Start(ctx)

package server
