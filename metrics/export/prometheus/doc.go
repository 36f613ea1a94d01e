// Package prometheus exposes sessionauth engine metrics through
// github.com/prometheus/client_golang.
//
// [PrometheusExporter] is a [prometheus.Collector] that reads an engine
// snapshot on every scrape. Counter names are prefixed sessionauth_*_total;
// the single histogram is sessionauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount
//     [PrometheusExporter.Handler] or call [PrometheusExporter.Register].
//   - Mutate engine state.
package prometheus
