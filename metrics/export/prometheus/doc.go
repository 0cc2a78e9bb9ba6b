// Package prometheus publishes tipgate engine metrics through
// client_golang.
//
// [NewCollector] returns a prometheus.Collector that callers register in
// their own registry; [Handler] serves one from a private registry. Counter
// names are prefixed tipgate_*_total; the single histogram is
// tipgate_login_latency_seconds.
package prometheus
