package node

import (
	"testing"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

func TestWindowStorePutAndLocalReading(t *testing.T) {
	ws := newWindowStore(time.Minute)
	key := model.WindowKey{SensorID: "temp-1", WindowTS: 1000}
	ws.Put(key, model.Reading{SensorID: "temp-1", Value: 21.5})

	r, ok := ws.LocalReading("temp-1", 1000)
	if !ok {
		t.Fatal("expected stored reading to be found")
	}
	if r.Value != 21.5 {
		t.Fatalf("expected value 21.5, got %v", r.Value)
	}

	if _, ok := ws.LocalReading("temp-1", 2000); ok {
		t.Fatal("expected no reading for unknown window")
	}
}

func TestWindowStorePrunesExpiredEntries(t *testing.T) {
	ws := newWindowStore(time.Millisecond)
	key := model.WindowKey{SensorID: "temp-1", WindowTS: 1000}
	ws.Put(key, model.Reading{SensorID: "temp-1", Value: 21.5})

	time.Sleep(5 * time.Millisecond)
	ws.Put(model.WindowKey{SensorID: "temp-1", WindowTS: 2000}, model.Reading{SensorID: "temp-1", Value: 22.0})

	if _, ok := ws.LocalReading("temp-1", 1000); ok {
		t.Fatal("expected expired entry to be pruned")
	}
}

func TestWindowStoreDefaultsRetention(t *testing.T) {
	ws := newWindowStore(0)
	if ws.retention != 10*time.Minute {
		t.Fatalf("expected default retention of 10m, got %v", ws.retention)
	}
}
