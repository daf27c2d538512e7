package node

import (
	"sync"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// windowStore holds this node's own recent readings, keyed by window, so
// peers pulling GetWindow can read them and so the local contribution can
// be folded into the aggregation pipeline alongside peer readings. Entries
// older than retention are dropped on each Put to bound memory use.
type windowStore struct {
	mu        sync.Mutex
	retention time.Duration
	entries   map[model.WindowKey]storedReading
}

type storedReading struct {
	reading model.Reading
	storedAt time.Time
}

func newWindowStore(retention time.Duration) *windowStore {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &windowStore{retention: retention, entries: make(map[model.WindowKey]storedReading)}
}

// Put records r as this node's contribution for key.
func (w *windowStore) Put(key model.WindowKey, r model.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[key] = storedReading{reading: r, storedAt: time.Now()}
	w.pruneLocked()
}

// LocalReading implements peer.WindowSource.
func (w *windowStore) LocalReading(sensorID string, windowTS int64) (model.Reading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sr, ok := w.entries[model.WindowKey{SensorID: sensorID, WindowTS: windowTS}]
	if !ok {
		return model.Reading{}, false
	}
	return sr.reading, true
}

func (w *windowStore) pruneLocked() {
	cutoff := time.Now().Add(-w.retention)
	for k, v := range w.entries {
		if v.storedAt.Before(cutoff) {
			delete(w.entries, k)
		}
	}
}
