// Package metrics exposes Prometheus metrics for scans run by the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "brokenlink"

// Collector holds the scan metrics and the registry they live in.
// Each Collector has its own registry so tests and embedded servers do not
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	ScansStarted  prometheus.Counter
	ScansFinished *prometheus.CounterVec
	ScansRunning  prometheus.Gauge
	LinksChecked  *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	PagesCrawled  prometheus.Counter
}

// NewCollector creates and registers all metrics, together with the Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		ScansStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scans_started_total",
			Help:      "Total number of scans started",
		}),
		ScansFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scans_finished_total",
			Help:      "Total number of scans finished, by final job status",
		}, []string{"status"}),
		ScansRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "scans_in_progress",
			Help:      "Number of scans currently running",
		}),
		LinksChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_checked_total",
			Help:      "Total number of links validated, by link status",
		}, []string{"status"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of finished scans in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}),
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_crawled_total",
			Help:      "Total number of pages whose links were extracted",
		}),
	}
}

// ScanStarted records a scan moving to in_progress.
func (c *Collector) ScanStarted() {
	c.ScansStarted.Inc()
	c.ScansRunning.Inc()
}

// ScanFinished records a scan reaching a terminal status. started is false
// for scans that failed before they began running.
func (c *Collector) ScanFinished(status model.JobStatus, started bool, duration time.Duration) {
	if started {
		c.ScansRunning.Dec()
		c.ScanDuration.Observe(duration.Seconds())
	}
	c.ScansFinished.WithLabelValues(string(status)).Inc()
}

// LinkChecked records one validated link.
func (c *Collector) LinkChecked(rec model.LinkRecord) {
	c.LinksChecked.WithLabelValues(string(rec.Status)).Inc()
	if rec.Kind == model.KindPage {
		c.PagesCrawled.Inc()
	}
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
