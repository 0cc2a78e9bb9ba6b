package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() tipgate.MetricsSnapshot
	AuditDropped() uint64
}

// failedLoginSource is implemented by *tipgate.Engine.
type failedLoginSource interface {
	FailedLoginAttempts(ctx context.Context) (int64, error)
}

// failedLoginTimeout bounds the counter read done on each scrape.
const failedLoginTimeout = time.Second

// Collector publishes engine counters as a prometheus.Collector. Values are
// read from the engine snapshot on every scrape.
type Collector struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
	failedLogins *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(engine *tipgate.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	if _, ok := source.(failedLoginSource); ok {
		c.failedLogins = prometheus.NewDesc(internaldefs.FailedLoginsName, internaldefs.FailedLoginsHelp, nil, nil)
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
	if c.failedLogins != nil {
		ch <- c.failedLogins
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		// Metrics disabled on the engine.
		ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
		c.collectFailedLogins(ch)
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[j]
		}
		// The engine keeps counts only, so the sum is not known.
		ch <- prometheus.MustNewConstHistogram(c.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
	c.collectFailedLogins(ch)
}

// collectFailedLogins skips the series when the counter backend is down.
func (c *Collector) collectFailedLogins(ch chan<- prometheus.Metric) {
	if c.failedLogins == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), failedLoginTimeout)
	defer cancel()
	n, err := c.source.(failedLoginSource).FailedLoginAttempts(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.failedLogins, prometheus.GaugeValue, float64(n))
}

// Handler serves the collector from a private registry, leaving the
// process-global registry untouched.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
