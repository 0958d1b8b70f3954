// Package metrics exposes crawl counters in the Prometheus text format.
// A Collector observes crawler events and is written to a node_exporter
// textfile when the run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

const namespace = "docmirror"

// Collector holds the metrics of one process on a private registry.
type Collector struct {
	registry *prometheus.Registry

	EventsTotal    *prometheus.CounterVec
	ResponsesTotal *prometheus.CounterVec
	CacheHitsTotal prometheus.Counter
	RemainingQueue prometheus.Gauge
	RunDuration    prometheus.Gauge
	RunInfo        *prometheus.GaugeVec
}

// NewCollector registers the crawl metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Manifest events by kind and block reason.",
			},
			[]string{"kind", "reason"},
		),
		ResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Stored responses by HTTP status class.",
			},
			[]string{"status"},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Responses served from the on-disk cache.",
			},
		),
		RemainingQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "remaining_queue",
				Help:      "URLs left in the queue when the run ended.",
			},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of the last run.",
			},
		),
		RunInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_info",
				Help:      "Identifier of the last run; always 1.",
			},
			[]string{"run_id", "interrupted"},
		),
	}
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnEvent updates counters from a crawler event.
func (c *Collector) OnEvent(ev model.Event) {
	reason := ev.Reason
	if reason == "" {
		reason = ev.BlockedBy
	}
	c.EventsTotal.WithLabelValues(string(ev.Kind), reason).Inc()

	if ev.StatusCode > 0 && (ev.Kind == model.EventFetched || ev.Kind == model.EventBlocked) {
		c.ResponsesTotal.WithLabelValues(statusClass(ev.StatusCode)).Inc()
	}
	if ev.FromCache {
		c.CacheHitsTotal.Inc()
	}
}

// ObserveSummary records the end-of-run gauges.
func (c *Collector) ObserveSummary(s *model.Summary) {
	if s == nil {
		return
	}
	c.RemainingQueue.Set(float64(s.RemainingQueue))
	c.RunDuration.Set(s.DurationSeconds)
	c.RunInfo.Reset()
	c.RunInfo.WithLabelValues(s.RunID, strconv.FormatBool(s.Interrupted)).Set(1)
}

// WriteTextfile writes all metrics to path atomically, in the format read
// by the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirPerm); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
