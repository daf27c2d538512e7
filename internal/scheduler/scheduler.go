// Package scheduler drives each sensor adapter at its cadence, enforcing
// at-most-one in-flight read per sensor, drift-bounded scheduling, and
// exponential backoff on transient failures. Grounded on the teacher's
// per-worker goroutine pool in cmd/octoreflex/main.go and the ticker-driven
// background-loop shape of internal/budget's refill goroutine.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rodiolabs/oraclenode/internal/adapter"
	"github.com/rodiolabs/oraclenode/internal/model"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// WindowEvent is forwarded to the Peer Collector once a reading has been
// successfully read, validated, and transformed.
type WindowEvent struct {
	Key     model.WindowKey
	Reading model.Reading
}

// Signer attaches an authenticity signature to a locally produced Reading
// before it enters the consensus pipeline. Readings without one never pass
// the aggregator's signature check.
type Signer interface {
	Sign(r model.Reading) []byte
}

// Scheduler polls a fixed set of adapters and emits WindowEvents.
type Scheduler struct {
	adapters []adapter.Adapter
	log      *zap.Logger
	onEvent  func(WindowEvent)
	onFail   func(sensorID string, err error)
	signer   Signer
}

// New builds a Scheduler. signer may be nil, in which case readings are
// emitted unsigned — only useful in tests that don't exercise the
// aggregator's signature check.
func New(adapters []adapter.Adapter, log *zap.Logger, onEvent func(WindowEvent), onFail func(string, error), signer Signer) *Scheduler {
	return &Scheduler{adapters: adapters, log: log, onEvent: onEvent, onFail: onFail, signer: signer}
}

// Run starts one polling goroutine per adapter and blocks until ctx is
// cancelled, then waits for all in-flight reads to finish.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.adapters))
	for _, a := range s.adapters {
		go func(a adapter.Adapter) {
			s.pollLoop(ctx, a)
			done <- struct{}{}
		}(a)
	}
	for range s.adapters {
		<-done
	}
}

// pollLoop is the per-sensor drift-bounded cadence loop: next tick is
// scheduled as last_start + interval, and a tick is skipped (not queued)
// if the previous read is still running — which this single goroutine
// structure guarantees by construction (at-most-one in flight per sensor).
func (s *Scheduler) pollLoop(ctx context.Context, a adapter.Adapter) {
	backoff := initialBackoff
	interval := a.PollingInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		ok := s.pollOnce(ctx, a)
		if ok {
			backoff = initialBackoff
			timer.Reset(nextDelay(start, interval))
		} else {
			timer.Reset(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// nextDelay computes the drift-bounded delay to the next tick: if the read
// took longer than interval, fire immediately rather than stacking ticks.
func nextDelay(start time.Time, interval time.Duration) time.Duration {
	next := start.Add(interval)
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) pollOnce(ctx context.Context, a adapter.Adapter) bool {
	readCtx, cancel := context.WithTimeout(ctx, a.PollingInterval())
	defer cancel()

	raw, err := a.Read(readCtx)
	if err != nil {
		if s.onFail != nil {
			s.onFail(a.SensorID(), model.Wrap(model.KindTransientAdapter, err, "adapter read failed"))
		}
		return false
	}
	if !a.Validate(raw) {
		if s.onFail != nil {
			s.onFail(a.SensorID(), model.New(model.KindInvalidReading, "reading failed validation"))
		}
		return true // not transient; do not back off, just skip this tick
	}
	reading, err := a.Transform(raw)
	if err != nil {
		if s.onFail != nil {
			s.onFail(a.SensorID(), model.Wrap(model.KindInvalidReading, err, "transform failed"))
		}
		return true
	}
	if s.signer != nil {
		reading.Signature = s.signer.Sign(reading)
	}

	windowTS := reading.Timestamp.UnixNano() / int64(a.PollingInterval())
	if s.onEvent != nil {
		s.onEvent(WindowEvent{Key: model.WindowKey{SensorID: a.SensorID(), WindowTS: windowTS}, Reading: reading})
	}
	return true
}
