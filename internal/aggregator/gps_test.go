package aggregator

import (
	"time"

	"testing"

	"github.com/rodiolabs/oraclenode/internal/model"
)

func gpsReading(nodeID string, lat, lon float64, ts time.Time) model.Reading {
	return model.Reading{
		SensorID:   "gps-1",
		SensorType: model.SensorGPS,
		NodeID:     nodeID,
		GPS:        &model.GPSValue{Lat: lat, Lon: lon, Alt: 10},
		Timestamp:  ts,
		Signature:  validSig,
	}
}

func makeGPSReadings(coords [][2]float64) []model.Reading {
	now := time.Now()
	out := make([]model.Reading, len(coords))
	for i, c := range coords {
		out[i] = gpsReading(nodeName(i), c[0], c[1], now.Add(time.Duration(i)*time.Second))
	}
	return out
}

func TestAggregateGPSAllAgree(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeGPSReadings([][2]float64{
		{37.7749, -122.4194},
		{37.7750, -122.4195},
		{37.7748, -122.4193},
		{37.7751, -122.4196},
		{37.7747, -122.4192},
	}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result.GPS == nil {
		t.Fatal("expected GPS result to be populated")
	}
	if out.Result.GPS.Lat < 37.77 || out.Result.GPS.Lat > 37.78 {
		t.Fatalf("expected consensus lat near 37.77, got %v", out.Result.GPS.Lat)
	}
	if out.Result.GPS.Lon > -122.41 || out.Result.GPS.Lon < -122.43 {
		t.Fatalf("expected consensus lon near -122.42, got %v", out.Result.GPS.Lon)
	}
}

func TestAggregateGPSOutlierFlagged(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeGPSReadings([][2]float64{
		{37.7749, -122.4194},
		{37.7750, -122.4195},
		{10.0000, -10.0000}, // node "c", wildly off
		{37.7751, -122.4196},
		{37.7747, -122.4192},
	}))
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	found := false
	for _, f := range out.Flags {
		if f.NodeID == "c" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the far-off node to be flagged")
	}
}

func TestAggregateGPSInsufficientContributors(t *testing.T) {
	agg := New(DefaultConfig(), nil)
	out := agg.Aggregate(makeGPSReadings([][2]float64{
		{37.7749, -122.4194},
		{37.7750, -122.4195},
	}))
	if out.Err == nil {
		t.Fatal("expected error")
	}
	if out.Err.Kind != model.KindInsufficientContribs {
		t.Fatalf("expected InsufficientContributors, got %v", out.Err.Kind)
	}
}
