// Package metrics exposes decision, audit and reload metrics for Prometheus.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng, err := engine.New(engCfg, rules, explainer, rec, engine.WithObserver(collector))
//	rec := recorder.New(store, recCfg, recorder.WithObserver(collector))
//	mux.Handle("/metrics", collector.Handler())
//
// Rule names are used as label values and are capped to keep cardinality
// bounded; once the cap is hit further rules are counted as "other".
package metrics
