// Package otel binds tipgate engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one observable counter per engine counter, a
// cumulative login latency gauge keyed by an "le" attribute, the audit drop
// counter and, for a live engine, the global failed-login gauge. The caller
// owns the MeterProvider.
package otel
