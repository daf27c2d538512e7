package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

func TestPushDropsOldestWhenFull(t *testing.T) {
	b := NewBuffer(2, nil, nil)
	b.Push(Batch{Key: model.WindowKey{SensorID: "a", WindowTS: 1}})
	b.Push(Batch{Key: model.WindowKey{SensorID: "b", WindowTS: 2}})
	b.Push(Batch{Key: model.WindowKey{SensorID: "c", WindowTS: 3}})

	if b.Len() != 2 {
		t.Fatalf("expected buffer to stay bounded at 2, got %d", b.Len())
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	b := NewBuffer(4, nil, nil)
	b.Push(Batch{Key: model.WindowKey{SensorID: "a", WindowTS: 1}})
	b.Push(Batch{Key: model.WindowKey{SensorID: "b", WindowTS: 2}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var handled []string
	done := make(chan struct{})
	go func() {
		b.Run(ctx, func(batch Batch) { handled = append(handled, batch.Key.SensorID) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if len(handled) != 2 {
		t.Fatalf("expected drain to process 2 queued batches, got %d", len(handled))
	}
}
