// Package metrics exposes the relay's counters, gauges and latency
// histograms in the Prometheus text exposition format.
package metrics

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector the relay records into.
var Collector = NewMetricsCollector()

// MetricsCollector holds metric series keyed by name and label set.
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// series identifies one exposed line family member: a metric name plus its
// rendered label set (`kind="text"`, or empty).
type series struct {
	name   string
	help   string
	labels string
}

func (s series) key() string { return s.name + "{" + s.labels + "}" }

// Counter only goes up.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge goes up and down; the relay uses it for in-flight events.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram counts observations into cumulative buckets. The last bucket is
// always +Inf so _count and the top bucket agree.
type Histogram struct {
	series
	mu     sync.Mutex
	count  int64
	sum    float64
	bounds []float64
	counts []int64
}

// Observe records one value, typically seconds from Since.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// Counter returns the counter for name and labels, creating it on first use.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	s := series{name: name, help: help, labels: labels}
	return getOrCreate(c, c.counters, s.key(), func() *Counter { return &Counter{series: s} })
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	s := series{name: name, help: help, labels: labels}
	return getOrCreate(c, c.gauges, s.key(), func() *Gauge { return &Gauge{series: s} })
}

// Histogram returns the histogram for name and labels, creating it with the
// given upper bounds on first use. The caller's slice is not modified.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	s := series{name: name, help: help, labels: labels}
	return getOrCreate(c, c.histograms, s.key(), func() *Histogram {
		bounds := slices.Clone(buckets)
		slices.Sort(bounds)
		bounds = slices.Compact(bounds)
		if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
			bounds = append(bounds, math.Inf(1))
		}
		return &Histogram{series: s, bounds: bounds, counts: make([]int64, len(bounds))}
	})
}

func getOrCreate[T any](c *MetricsCollector, m map[string]*T, key string, create func() *T) *T {
	c.mu.RLock()
	v, ok := m[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := m[key]; ok {
		return v
	}
	v = create()
	m[key] = v
	return v
}

// sortedValues returns the map's values ordered by metric name, then labels,
// so a scrape is stable and each family's HELP/TYPE header is written once.
func sortedValues[T any](m map[string]*T, id func(*T) series) []*T {
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *T) int {
		sa, sb := id(a), id(b)
		if c := cmp.Compare(sa.name, sb.name); c != 0 {
			return c
		}
		return cmp.Compare(sa.labels, sb.labels)
	})
	return out
}

// Handler serves the current values in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.Render(w)
	}
}

// Render writes every series to w.
func (c *MetricsCollector) Render(w io.Writer) {
	c.mu.RLock()
	counters := sortedValues(c.counters, func(v *Counter) series { return v.series })
	gauges := sortedValues(c.gauges, func(v *Gauge) series { return v.series })
	histograms := sortedValues(c.histograms, func(v *Histogram) series { return v.series })
	c.mu.RUnlock()

	writeHeader(w, series{name: "tgrelay_uptime_seconds", help: "Time since start in seconds"}, "gauge")
	fmt.Fprintf(w, "tgrelay_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	last := ""
	for _, ctr := range counters {
		if ctr.name != last {
			writeHeader(w, ctr.series, "counter")
			last = ctr.name
		}
		fmt.Fprintf(w, "%s%s %d\n", ctr.name, braces(ctr.labels), ctr.Value())
	}

	last = ""
	for _, g := range gauges {
		if g.name != last {
			writeHeader(w, g.series, "gauge")
			last = g.name
		}
		fmt.Fprintf(w, "%s%s %d\n", g.name, braces(g.labels), g.Value())
	}

	last = ""
	for _, h := range histograms {
		if h.name != last {
			writeHeader(w, h.series, "histogram")
			last = h.name
		}
		h.render(w)
	}
}

func (h *Histogram) render(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, le := range h.bounds {
		bound := "+Inf"
		if !math.IsInf(le, 1) {
			bound = strconv.FormatFloat(le, 'g', -1, 64)
		}
		labels := `le="` + bound + `"`
		if h.labels != "" {
			labels = h.labels + "," + labels
		}
		fmt.Fprintf(w, "%s_bucket{%s} %d\n", h.name, labels, h.counts[i])
	}
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, braces(h.labels), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, braces(h.labels), h.count)
}

func writeHeader(w io.Writer, s series, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, kind)
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Since returns seconds elapsed since start, for latency histograms.
func Since(start time.Time) float64 {
	return time.Since(start).Seconds()
}

var (
	MessagesReceived = Collector.Counter("tgrelay_messages_received_total", "Inbound events handed to the relay", "")
	MessagesRelayed  = Collector.Counter("tgrelay_messages_relayed_total", "Inbound events that produced at least one post", "")
	MessagesSkipped  = Collector.Counter("tgrelay_messages_skipped_total", "Inbound events with neither text nor media", "")
	MessagesFailed   = Collector.Counter("tgrelay_messages_failed_total", "Inbound events aborted by an unexpected failure", "")

	TranslationFailures = Collector.Counter("tgrelay_translation_failures_total", "Translations that fell back to the original text", "")
	MediaDownloads      = Collector.Counter("tgrelay_media_downloads_total", "Media items downloaded to transient storage", "")
	MediaFailures       = Collector.Counter("tgrelay_media_failures_total", "Media items dropped because the download failed", "")
	CleanupFailures     = Collector.Counter("tgrelay_cleanup_failures_total", "Transient files that could not be removed", "")

	DispatchCalls    = Collector.Counter("tgrelay_dispatch_calls_total", "Webhook posts attempted", "")
	DispatchFailures = Collector.Counter("tgrelay_dispatch_failures_total", "Webhook posts that failed and were dropped", "")

	InFlight = Collector.Gauge("tgrelay_inflight_messages", "Relay invocations currently running", "")

	DispatchLatency = Collector.Histogram("tgrelay_dispatch_latency_seconds", "Webhook post latency in seconds", "",
		[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60})
	TranslationLatency = Collector.Histogram("tgrelay_translation_latency_seconds", "Translation latency in seconds", "",
		[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
)
