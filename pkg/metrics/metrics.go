// Package metrics is a small Prometheus text-format registry with counters,
// gauges and histograms keyed by name plus labels, and the metric set the
// obdpulse binaries export.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are histogram buckets in seconds.
var DefaultBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Counter only goes up.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc() { c.val.Add(1) }
func (c *Counter) Add(n int64) { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64) { g.val.Store(n) }
func (g *Gauge) Inc() { g.val.Add(1) }
func (g *Gauge) Dec() { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram counts observations into fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // non-cumulative, one per bound
	sum    float64
	count  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b))}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

func (h *Histogram) write(b *strings.Builder, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var cum uint64
	for i, bound := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(b, "%s_bucket%s %d\n", name, joinLabels(labels, fmt.Sprintf(`le="%g"`, bound)), cum)
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n", name, joinLabels(labels, `le="+Inf"`), h.count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, joinLabels(labels, ""), h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, joinLabels(labels, ""), h.count)
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family groups every labelled series of one metric name.
type family struct {
	kind   kind
	help   string
	series map[string]any // label string -> *Counter | *Gauge | *Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// get returns the series for a name such as `foo{k="v"}`, creating it with
// mk on first use.
func (r *Registry) get(name, help string, k kind, mk func() any) any {
	base, labels := splitName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[base]
	if !ok {
		f = &family{kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if help != "" {
		f.help = help
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter returns (or creates) the counter for name.
func (r *Registry) Counter(name, help string) *Counter {
	return r.get(name, help, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns (or creates) the gauge for name.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.get(name, help, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns (or creates) the histogram for name. Nil buckets use
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return r.get(name, help, kindHistogram, func() any { return newHistogram(buckets) }).(*Histogram)
}

// WithLabels appends label pairs to name: WithLabels("foo", "k", "v") is
// `foo{k="v"}`. An odd number of kvs returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// splitName separates `foo{k="v"}` into "foo" and `k="v"`.
func splitName(name string) (string, string) {
	i := strings.IndexByte(name, '{')
	if i == -1 {
		return name, ""
	}
	return name[:i], strings.TrimSuffix(name[i+1:], "}")
}

func joinLabels(labels, extra string) string {
	switch {
	case labels == "" && extra == "":
		return ""
	case labels == "":
		return "{" + extra + "}"
	case extra == "":
		return "{" + labels + "}"
	}
	return "{" + labels + "," + extra + "}"
}

// Render returns the registry in the Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, name := range r.order {
		f := r.families[name]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, f.kind)
		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, labels := range keys {
			switch s := f.series[labels].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s%s %d\n", name, joinLabels(labels, ""), s.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s%s %d\n", name, joinLabels(labels, ""), s.Value())
			case *Histogram:
				s.write(&b, name, labels)
			}
		}
	}
	return b.String()
}

// Handler serves Render output.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}

// ServeAsync serves /metrics on port until ctx is done.
func (r *Registry) ServeAsync(ctx context.Context, port int, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", r.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("metrics listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "port", port, "err", err)
		}
	}()
}
