// Package metrics implements the node's Metrics Bus (C7): dynamic-name
// counters, gauges, and histograms with retention and percentile export.
// Unlike a client_golang-style registry (dropped, see DESIGN.md), names and
// label sets are created on first write rather than declared ahead of
// time, and histograms keep a fixed-size reservoir for on-demand
// percentile interpolation instead of fixed buckets — the shape the spec
// actually calls for. Endpoint/mux wiring below is adapted from the
// teacher's dedicated-registry + loopback-only /metrics+/healthz pattern.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	histogramReservoirSize = 1000
	defaultGaugeRetention  = 24 * time.Hour
)

// Bus is the process-wide metrics registry. One instance is constructed at
// startup and threaded through every component's constructor.
type Bus struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string][]gaugeSample
	histograms map[string][]float64
	retention  time.Duration
	startTime  time.Time
}

type gaugeSample struct {
	value float64
	at    time.Time
}

func New() *Bus {
	return &Bus{
		counters:   make(map[string]float64),
		gauges:     make(map[string][]gaugeSample),
		histograms: make(map[string][]float64),
		retention:  defaultGaugeRetention,
		startTime:  time.Now(),
	}
}

// Labels is a convenience alias; keys are rendered sorted so the same
// label set always produces the same metric identity.
type Labels map[string]string

func metricKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Inc adds delta to a monotonic counter. Retention cleanup runs on every
// write, per spec.
func (b *Bus) Inc(name string, labels Labels, delta float64) {
	key := metricKey(name, labels)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[key] += delta
	b.cleanupLocked()
}

// Set records the last value for a gauge, retaining samples for
// b.retention (default 24h).
func (b *Bus) Set(name string, labels Labels, value float64) {
	key := metricKey(name, labels)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gauges[key] = append(b.gauges[key], gaugeSample{value: value, at: time.Now()})
	b.cleanupLocked()
}

// Observe appends a sample to a histogram's reservoir, keeping only the
// most recent histogramReservoirSize samples per name.
func (b *Bus) Observe(name string, labels Labels, value float64) {
	key := metricKey(name, labels)
	b.mu.Lock()
	defer b.mu.Unlock()
	samples := b.histograms[key]
	samples = append(samples, value)
	if len(samples) > histogramReservoirSize {
		samples = samples[len(samples)-histogramReservoirSize:]
	}
	b.histograms[key] = samples
	b.cleanupLocked()
}

// cleanupLocked drops gauge samples older than b.retention. Must be called
// with b.mu held.
func (b *Bus) cleanupLocked() {
	cutoff := time.Now().Add(-b.retention)
	for key, samples := range b.gauges {
		i := 0
		for i < len(samples) && samples[i].at.Before(cutoff) {
			i++
		}
		if i > 0 {
			b.gauges[key] = samples[i:]
		}
	}
}

// Percentile returns the pXX value for a histogram via linear interpolation
// on the sorted reservoir. p is in [0,100]. Returns (0, false) if the
// histogram has no samples.
func (b *Bus) Percentile(name string, labels Labels, p float64) (float64, bool) {
	key := metricKey(name, labels)
	b.mu.Lock()
	samples := append([]float64(nil), b.histograms[key]...)
	b.mu.Unlock()
	if len(samples) == 0 {
		return 0, false
	}
	sort.Float64s(samples)
	return interpolatePercentile(samples, p), true
}

func interpolatePercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CounterValue returns the current value of a counter, for tests and the
// operator status command.
func (b *Bus) CounterValue(name string, labels Labels) float64 {
	key := metricKey(name, labels)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters[key]
}

// GaugeValue returns the last-written gauge value, for tests and the
// operator status command.
func (b *Bus) GaugeValue(name string, labels Labels) (float64, bool) {
	key := metricKey(name, labels)
	b.mu.Lock()
	defer b.mu.Unlock()
	samples := b.gauges[key]
	if len(samples) == 0 {
		return 0, false
	}
	return samples[len(samples)-1].value, true
}

// WriteText renders every registered metric in a Prometheus-like text
// exposition format: one family per name with a TYPE line, even though
// this bus is not itself Prometheus (see DESIGN.md).
func (b *Bus) WriteText(w *strings.Builder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	for key, v := range b.counters {
		name := baseName(key)
		fmt.Fprintf(w, "# TYPE %s counter\n%s %v\n", name, key, v)
	}
	for key, samples := range b.gauges {
		if len(samples) == 0 {
			continue
		}
		name := baseName(key)
		fmt.Fprintf(w, "# TYPE %s gauge\n%s %v\n", name, key, samples[len(samples)-1].value)
	}
	for key, samples := range b.histograms {
		if len(samples) == 0 {
			continue
		}
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		name := baseName(key)
		fmt.Fprintf(w, "# TYPE %s histogram\n", name)
		for _, p := range []float64{50, 95, 99} {
			fmt.Fprintf(w, "%s_p%v %v\n", key, int(p), interpolatePercentile(sorted, p))
		}
		fmt.Fprintf(w, "%s_count %d\n", key, len(sorted))
	}
}

func baseName(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		return key[:i]
	}
	return key
}

// ServeHTTP starts a loopback-bound HTTP server exposing the bus's text
// exposition at /metrics and an always-200 /healthz, blocking until ctx is
// cancelled. This is ambient operational tooling, not the externally-facing
// CRUD surface excluded by SPEC_FULL §1.
func (b *Bus) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		b.WriteText(&sb)
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sb.String()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}
