// Package ingest provides the bounded backpressure buffer between the Peer
// Collector and the Aggregator: under sustained overload it drops the
// oldest unread entry (counted, not fatal) rather than growing without
// bound. Adapted from the teacher's ring-buffer event processor, with the
// BPF ring buffer and per-event dispatch replaced by a plain buffered
// channel of reading batches.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/rodiolabs/oraclenode/internal/metrics"
	"github.com/rodiolabs/oraclenode/internal/model"
)

// Batch is one window's worth of readings ready for aggregation.
type Batch struct {
	Key      model.WindowKey
	Readings []model.Reading
}

// Buffer is a bounded channel of Batches with drop-oldest backpressure.
type Buffer struct {
	queue   chan Batch
	log     *zap.Logger
	metrics *metrics.Bus
}

// NewBuffer creates a Buffer with the given capacity (default 128, per the
// ledger submission queue's sizing in SPEC_FULL §5).
func NewBuffer(capacity int, log *zap.Logger, bus *metrics.Bus) *Buffer {
	if capacity <= 0 {
		capacity = 128
	}
	return &Buffer{queue: make(chan Batch, capacity), log: log, metrics: bus}
}

// Push enqueues a batch, dropping the oldest unread entry if the buffer is
// full rather than blocking the Peer Collector's fan-in goroutine.
func (b *Buffer) Push(batch Batch) {
	select {
	case b.queue <- batch:
		if b.metrics != nil {
			b.metrics.Set("ingest_queue_depth", nil, float64(len(b.queue)))
		}
		return
	default:
	}
	// Full: drop the oldest entry to make room, then push.
	select {
	case old := <-b.queue:
		if b.metrics != nil {
			b.metrics.Inc("ingest_dropped_total", metrics.Labels{"sensor_id": old.Key.SensorID}, 1)
		}
		if b.log != nil {
			b.log.Warn("ingest buffer full, dropping oldest batch",
				zap.String("sensor_id", old.Key.SensorID), zap.Int64("window_ts", old.Key.WindowTS))
		}
	default:
	}
	select {
	case b.queue <- batch:
	default:
		// Extremely unlikely race (concurrent drains); drop the new batch
		// rather than block.
		if b.metrics != nil {
			b.metrics.Inc("ingest_dropped_total", metrics.Labels{"sensor_id": batch.Key.SensorID}, 1)
		}
	}
}

// Run delivers batches to handle until ctx is cancelled, draining
// whatever remains queued before returning.
func (b *Buffer) Run(ctx context.Context, handle func(Batch)) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case batch := <-b.queue:
					handle(batch)
				default:
					return
				}
			}
		case batch := <-b.queue:
			handle(batch)
		}
	}
}

// Len reports the current queue depth, for tests and metrics.
func (b *Buffer) Len() int { return len(b.queue) }
