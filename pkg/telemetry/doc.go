// Package telemetry provides observability instrumentation for Stratus.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and a Prometheus textfile snapshot into a unified system
// suited to short-lived CLI invocations.
//
// # Architecture
//
// The telemetry system is built on three pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with otlp/stdout exporters
//  3. Metrics Snapshot - Registry gauges written to a node-exporter
//     textfile collector after every mutation
//
// There is no metrics HTTP endpoint and no in-process event bus: every
// stratus invocation is a fresh process that loads state, mutates, and
// exits, so only point-in-time gauges and flushed spans are meaningful.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "stratus"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Component packages derive child loggers:
//
//	logger := tel.Logger.NewComponentLogger("nodemap")
//
// The metrics snapshot writer plugs into the node-map manager as its
// SnapshotWriter, so every power-on, power-off, and rebuild refreshes the
// textfile with the current registry state.
package telemetry
