// Package adapter implements the sensor adapter variant: a small capability
// set {Read, Validate, Transform, PollingInterval} consumed by the polling
// scheduler. Each sensor type is a concrete variant rather than a subclass;
// the scheduler only ever sees the Adapter interface.
package adapter

import (
	"context"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// RawSample is the untyped reading straight off the concrete transport
// (MQTT, serial, …). The transport itself is out of scope; adapters receive
// RawSample already decoded into named fields.
type RawSample struct {
	NodeID  string
	Value   float64
	GPS     *RawGPS
	Battery float64 // 0..1
	Signal  SignalQuality
	Ts      time.Time
}

// RawGPS carries the GPS-specific raw fields.
type RawGPS struct {
	Lat         float64
	Lon         float64
	Alt         float64
	Satellites  int
	HDOP        float64
	FixQuality  string
}

// SignalQuality is a coarse, adapter-reported signal grade.
type SignalQuality string

const (
	SignalGood SignalQuality = "good"
	SignalFair SignalQuality = "fair"
	SignalPoor SignalQuality = "poor"
)

// Adapter is the capability set the Polling Scheduler drives. Implementations
// must honor ctx's deadline inside Read.
type Adapter interface {
	Read(ctx context.Context) (RawSample, error)
	Validate(raw RawSample) bool
	Transform(raw RawSample) (model.Reading, error)
	PollingInterval() time.Duration
	SensorID() string
	SensorType() model.SensorType
}

// batteryQualityFactor returns the low-battery quality penalty applied by
// the temperature adapter: 0.7 below 20%, 0.9 below 50%, 1.0 otherwise.
func batteryQualityFactor(battery float64) float64 {
	switch {
	case battery < 0.20:
		return 0.7
	case battery < 0.50:
		return 0.9
	default:
		return 1.0
	}
}

// signalQualityFactor returns the shared signal-grade quality penalty.
func signalQualityFactor(signal SignalQuality) float64 {
	switch signal {
	case SignalFair:
		return 0.8
	case SignalPoor:
		return 0.5
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
