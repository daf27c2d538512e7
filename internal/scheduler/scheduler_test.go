package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rodiolabs/oraclenode/internal/adapter"
)

func TestAtMostOneInFlightPerSensor(t *testing.T) {
	var inFlight int32
	var maxObserved int32

	reader := func(ctx context.Context) (adapter.RawSample, error) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxObserved) {
			atomic.StoreInt32(&maxObserved, n)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return adapter.RawSample{Value: 20, Signal: adapter.SignalGood, Ts: time.Now()}, nil
	}
	temp := adapter.NewTemperature("t1", reader)
	temp.Interval = 5 * time.Millisecond

	events := make(chan WindowEvent, 100)
	s := New([]adapter.Adapter{temp}, nil, func(e WindowEvent) { events <- e }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt32(&maxObserved) > 1 {
		t.Fatalf("expected at most one in-flight read, observed %d", maxObserved)
	}
}

func TestTransientFailureTriggersBackoffNotBlockingOtherSensors(t *testing.T) {
	failing := adapter.NewTemperature("failing", func(ctx context.Context) (adapter.RawSample, error) {
		return adapter.RawSample{}, context.DeadlineExceeded
	})
	failing.Interval = 5 * time.Millisecond

	var healthyTicks int32
	healthy := adapter.NewTemperature("healthy", func(ctx context.Context) (adapter.RawSample, error) {
		atomic.AddInt32(&healthyTicks, 1)
		return adapter.RawSample{Value: 20, Signal: adapter.SignalGood, Ts: time.Now()}, nil
	})
	healthy.Interval = 5 * time.Millisecond

	s := New([]adapter.Adapter{failing, healthy}, nil, func(WindowEvent) {}, func(string, error) {}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt32(&healthyTicks) < 2 {
		t.Fatalf("expected healthy sensor to keep polling despite the other failing, got %d ticks", healthyTicks)
	}
}
