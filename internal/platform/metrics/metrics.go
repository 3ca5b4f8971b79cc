package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Opts struct {
	Name string
	Help string
}

type collector interface {
	name() string
	writePrometheus(*strings.Builder)
}

type Registry struct {
	mu         sync.RWMutex
	collectors map[string]collector
}

func NewRegistry() *Registry {
	return &Registry{
		collectors: map[string]collector{},
	}
}

func (r *Registry) MustRegister(items ...collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		name := item.name()
		if _, exists := r.collectors[name]; exists {
			panic("metrics collector already registered: " + name)
		}
		r.collectors[name] = item
	}
}

// Expose renders every registered collector in the Prometheus text format,
// sorted by metric name.
func (r *Registry) Expose() string {
	r.mu.RLock()
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	collectors := make([]collector, 0, len(names))
	for _, name := range names {
		collectors = append(collectors, r.collectors[name])
	}
	r.mu.RUnlock()

	var sb strings.Builder
	for _, c := range collectors {
		c.writePrometheus(&sb)
	}
	return sb.String()
}

func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Expose()))
	})
}

var Default = NewRegistry()
var processStart = time.Now()

func DefaultHandler() http.Handler {
	return Default.Handler()
}

type GaugeFunc struct {
	opts Opts
	fn   func() float64
}

func NewGaugeFunc(opts Opts, fn func() float64) *GaugeFunc {
	return &GaugeFunc{opts: opts, fn: fn}
}

func (g *GaugeFunc) name() string {
	return g.opts.Name
}

func (g *GaugeFunc) writePrometheus(sb *strings.Builder) {
	writeMetricHead(sb, g.opts.Name, "gauge", g.opts.Help)
	v := 0.0
	if g.fn != nil {
		v = g.fn()
	}
	fmt.Fprintf(sb, "%s %s\n", g.opts.Name, floatToString(v))
}

// series holds one value per label combination. Counters and gauges differ
// only in which mutations they expose.
type series struct {
	opts       Opts
	kind       string
	labelNames []string

	mu     sync.RWMutex
	values map[string]float64
}

func newSeries(opts Opts, kind string, labelNames []string) *series {
	copied := make([]string, len(labelNames))
	copy(copied, labelNames)
	return &series{
		opts:       opts,
		kind:       kind,
		labelNames: copied,
		values:     map[string]float64{},
	}
}

func (s *series) name() string {
	return s.opts.Name
}

func (s *series) update(labelValues []string, fn func(float64) float64) {
	if len(labelValues) != len(s.labelNames) {
		return
	}
	key := strings.Join(labelValues, "\xff")
	s.mu.Lock()
	s.values[key] = fn(s.values[key])
	s.mu.Unlock()
}

func (s *series) value(labelValues ...string) float64 {
	key := strings.Join(labelValues, "\xff")
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *series) writePrometheus(sb *strings.Builder) {
	writeMetricHead(sb, s.opts.Name, s.kind, s.opts.Help)

	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	values := make(map[string]float64, len(keys))
	for _, key := range keys {
		values[key] = s.values[key]
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(s.opts.Name)
		if len(s.labelNames) > 0 {
			labelValues := strings.Split(key, "\xff")
			sb.WriteString("{")
			for idx, labelName := range s.labelNames {
				if idx > 0 {
					sb.WriteString(",")
				}
				sb.WriteString(labelName)
				sb.WriteString(`="`)
				sb.WriteString(escapeLabelValue(labelValues[idx]))
				sb.WriteString(`"`)
			}
			sb.WriteString("}")
		}
		sb.WriteString(" ")
		sb.WriteString(floatToString(values[key]))
		sb.WriteString("\n")
	}
}

type CounterVec struct {
	*series
}

func NewCounterVec(opts Opts, labelNames []string) *CounterVec {
	return &CounterVec{series: newSeries(opts, "counter", labelNames)}
}

func (c *CounterVec) WithLabelValues(values ...string) *Counter {
	return &Counter{parent: c, labelValues: values}
}

// Value returns the current count for one label combination.
func (c *CounterVec) Value(values ...string) float64 {
	return c.value(values...)
}

type Counter struct {
	parent      *CounterVec
	labelValues []string
}

func (c *Counter) Add(v float64) {
	if c == nil || c.parent == nil || v < 0 {
		return
	}
	c.parent.update(c.labelValues, func(old float64) float64 { return old + v })
}

func (c *Counter) Inc() { c.Add(1) }

type GaugeVec struct {
	*series
}

func NewGaugeVec(opts Opts, labelNames []string) *GaugeVec {
	return &GaugeVec{series: newSeries(opts, "gauge", labelNames)}
}

func (g *GaugeVec) Set(v float64, labelValues ...string) {
	g.update(labelValues, func(float64) float64 { return v })
}

func (g *GaugeVec) Value(labelValues ...string) float64 {
	return g.value(labelValues...)
}

// Gauge is a GaugeVec without labels.
type Gauge struct {
	GaugeVec
}

func NewGauge(opts Opts) *Gauge {
	return &Gauge{GaugeVec: GaugeVec{series: newSeries(opts, "gauge", nil)}}
}

func (g *Gauge) Set(v float64) { g.GaugeVec.Set(v) }

func (g *Gauge) Add(v float64) {
	g.update(nil, func(old float64) float64 { return old + v })
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Value() float64 { return g.GaugeVec.Value() }

func writeMetricHead(sb *strings.Builder, name, metricType, help string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, metricType)
}

func floatToString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func init() {
	Default.MustRegister(
		NewGaugeFunc(Opts{
			Name: "process_uptime_seconds",
			Help: "Seconds since process start.",
		}, func() float64 {
			return time.Since(processStart).Seconds()
		}),
		NewGaugeFunc(Opts{
			Name: "go_goroutines",
			Help: "Number of goroutines.",
		}, func() float64 {
			return float64(runtime.NumGoroutine())
		}),
		NewGaugeFunc(Opts{
			Name: "go_memstats_heap_inuse_bytes",
			Help: "Heap in-use bytes.",
		}, func() float64 {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			return float64(mem.HeapInuse)
		}),
	)
}
