// Package metrics exports pipeline activity as Prometheus metrics. It plugs
// into lookbook.Config through the OnItem, OnCall and OnPanic callbacks.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anatolykoptev/go-lookbook"
)

const namespace = "lookbook"

// Collector holds the pipeline metrics.
type Collector struct {
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	panics       *prometheus.CounterVec
}

// New registers the pipeline metrics with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Batch items by outcome, verdict and error kind.",
		}, []string{"outcome", "verdict", "kind"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Time from worker slot to terminal state per item.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "External call attempts by stage and result.",
		}, []string{"stage", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "External call attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Recovered panics by site.",
		}, []string{"site"}),
	}
	for _, col := range []prometheus.Collector{c.items, c.itemDuration, c.calls, c.callDuration, c.panics} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// Instrument sets cfg's callbacks, chaining any already present.
func (c *Collector) Instrument(cfg *lookbook.Config) {
	prevItem, prevCall, prevPanic := cfg.OnItem, cfg.OnCall, cfg.OnPanic
	cfg.OnItem = func(ev lookbook.ItemEvent) {
		c.OnItem(ev)
		if prevItem != nil {
			prevItem(ev)
		}
	}
	cfg.OnCall = func(ev lookbook.CallEvent) {
		c.OnCall(ev)
		if prevCall != nil {
			prevCall(ev)
		}
	}
	cfg.OnPanic = func(tag string, r any) {
		c.OnPanic(tag, r)
		if prevPanic != nil {
			prevPanic(tag, r)
		}
	}
}

// OnItem records one finished item.
func (c *Collector) OnItem(ev lookbook.ItemEvent) {
	c.items.WithLabelValues(string(ev.Outcome), string(ev.Verdict), string(ev.Kind)).Inc()
	if ev.Duration > 0 {
		c.itemDuration.WithLabelValues(string(ev.Outcome)).Observe(ev.Duration.Seconds())
	}
}

// OnCall records one external call attempt.
func (c *Collector) OnCall(ev lookbook.CallEvent) {
	c.calls.WithLabelValues(ev.Stage, callResult(ev.Err)).Inc()
	c.callDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
}

// OnPanic counts a recovered panic.
func (c *Collector) OnPanic(tag string, _ any) {
	c.panics.WithLabelValues(tag).Inc()
}

func callResult(err error) string {
	var se *lookbook.ServiceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, lookbook.ErrTimeout):
		return "timeout"
	case errors.Is(err, lookbook.ErrMalformedModelOutput):
		return "malformed"
	case errors.As(err, &se):
		return se.Category.String()
	default:
		return "error"
	}
}

// RegisterCache exposes cache stats as gauges and counters read at scrape
// time.
func RegisterCache(reg prometheus.Registerer, cache *lookbook.HashCache) error {
	stat := func(name, help string, typ prometheus.ValueType, pick func(lookbook.CacheStats) float64) prometheus.Collector {
		desc := prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
		return &statCollector{desc: desc, typ: typ, read: func() float64 { return pick(cache.Stats()) }}
	}
	for _, col := range []prometheus.Collector{
		stat("entries", "Fingerprints currently cached.", prometheus.GaugeValue,
			func(s lookbook.CacheStats) float64 { return float64(s.Size) }),
		stat("hits_total", "Near-duplicate lookups that matched.", prometheus.CounterValue,
			func(s lookbook.CacheStats) float64 { return float64(s.Hits) }),
		stat("misses_total", "Near-duplicate lookups without a match.", prometheus.CounterValue,
			func(s lookbook.CacheStats) float64 { return float64(s.Misses) }),
		stat("evictions_total", "Entries evicted by the size bound.", prometheus.CounterValue,
			func(s lookbook.CacheStats) float64 { return float64(s.Evictions) }),
		stat("expirations_total", "Entries dropped after the TTL.", prometheus.CounterValue,
			func(s lookbook.CacheStats) float64 { return float64(s.Expirations) }),
	} {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register cache metrics: %w", err)
		}
	}
	return nil
}

type statCollector struct {
	desc *prometheus.Desc
	typ  prometheus.ValueType
	read func() float64
}

func (s *statCollector) Describe(ch chan<- *prometheus.Desc) { ch <- s.desc }

func (s *statCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(s.desc, s.typ, s.read())
}
