// Package observability provides an OpenTelemetry-based metrics
// extension for Payflow. The MetricsExtension implements lifecycle
// hooks to record workflow throughput, per-stage latency, suspension
// and resume rates, and the reviewer decision mix.
//
// Register it like any other extension:
//
//	hooks := ext.NewRegistry(logger)
//	hooks.Register(observability.NewMetricsExtension())
//
//	eng, err := engine.New(st, st, inv, engine.WithHooks(hooks))
package observability
