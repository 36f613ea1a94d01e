// Package otel publishes sessionauth engine metrics through
// go.opentelemetry.io/otel/metric.
//
// [NewOTelExporter] groups the engine counters into a few observable
// counters split by attribute, so sessionauth_login_total carries
// outcome=success, outcome=bad_credentials and outcome=rate_limited data
// points. A single callback reads the engine snapshot on each collection
// cycle.
//
// Authenticate latency is a synchronous histogram. Create a
// [LatencyRecorder] and pass its Observe method to
// sessionauth.Builder.WithAuthenticateObserver.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
