package metrics

import "testing"

func TestCounterAccumulates(t *testing.T) {
	b := New()
	b.Inc("windows_total", Labels{"sensor_id": "t1"}, 1)
	b.Inc("windows_total", Labels{"sensor_id": "t1"}, 2)
	if got := b.CounterValue("windows_total", Labels{"sensor_id": "t1"}); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestGaugeTracksLastValue(t *testing.T) {
	b := New()
	b.Set("cache_size", nil, 5)
	b.Set("cache_size", nil, 8)
	got, ok := b.GaugeValue("cache_size", nil)
	if !ok || got != 8 {
		t.Fatalf("expected last value 8, got %v ok=%v", got, ok)
	}
}

func TestHistogramPercentiles(t *testing.T) {
	b := New()
	for i := 1; i <= 100; i++ {
		b.Observe("latency_ms", nil, float64(i))
	}
	p50, ok := b.Percentile("latency_ms", nil, 50)
	if !ok {
		t.Fatal("expected histogram to have samples")
	}
	if p50 < 49 || p50 > 51 {
		t.Fatalf("expected p50 near 50, got %v", p50)
	}
}

func TestHistogramReservoirBounded(t *testing.T) {
	b := New()
	for i := 0; i < histogramReservoirSize+500; i++ {
		b.Observe("latency_ms", nil, float64(i))
	}
	b.mu.Lock()
	n := len(b.histograms[metricKey("latency_ms", nil)])
	b.mu.Unlock()
	if n != histogramReservoirSize {
		t.Fatalf("expected reservoir bounded at %d, got %d", histogramReservoirSize, n)
	}
}

func TestDifferentLabelsAreDifferentMetrics(t *testing.T) {
	b := New()
	b.Inc("x", Labels{"a": "1"}, 1)
	b.Inc("x", Labels{"a": "2"}, 5)
	if got := b.CounterValue("x", Labels{"a": "1"}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := b.CounterValue("x", Labels{"a": "2"}); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}
