package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tipgate.MetricsSnapshot
	AuditDropped() uint64
}

// failedLoginSource is implemented by *tipgate.Engine. Sources without it
// do not get the failed-login gauge.
type failedLoginSource interface {
	FailedLoginAttempts(ctx context.Context) (int64, error)
}

type latencyInstruments struct {
	id      tipgate.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics through one meter callback. Counters
// keep their Prometheus names; a latency histogram becomes one cumulative
// gauge with an "le" attribute per bucket plus a count gauge.
type Exporter struct {
	source       metricsSource
	failed       failedLoginSource
	registration metric.Registration

	counters     map[tipgate.MetricID]metric.Int64ObservableCounter
	latency      []latencyInstruments
	bucketOpts   []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
	failedGauge  metric.Int64ObservableGauge
}

func NewExporter(meter metric.Meter, engine *tipgate.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make(map[tipgate.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		bucketOpts: bucketOptions(),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		e.latency = append(e.latency, latencyInstruments{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	if fs, ok := source.(failedLoginSource); ok {
		gauge, err := meter.Int64ObservableGauge(internaldefs.FailedLoginsName,
			metric.WithDescription(internaldefs.FailedLoginsHelp))
		if err != nil {
			return nil, fmt.Errorf("create failed login gauge: %w", err)
		}
		e.failed = fs
		e.failedGauge = gauge
		observables = append(observables, gauge)
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(ctx context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, l := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, v := range cumulative {
			o.ObserveInt64(l.buckets, int64(v), e.bucketOpts[i])
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.failed == nil {
		return nil
	}
	n, err := e.failed.FailedLoginAttempts(ctx)
	if err != nil {
		return fmt.Errorf("read failed login counter: %w", err)
	}
	o.ObserveInt64(e.failedGauge, n)
	return nil
}

// bucketOptions returns one "le" attribute option per engine bucket, the
// last one being +Inf.
func bucketOptions() []metric.ObserveOption {
	opts := make([]metric.ObserveOption, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, b := range internaldefs.HistogramUpperBounds {
		opts = append(opts, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	return append(opts, metric.WithAttributes(attribute.String("le", "+Inf")))
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
