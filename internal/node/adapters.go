package node

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rodiolabs/oraclenode/internal/adapter"
	"github.com/rodiolabs/oraclenode/internal/config"
)

// buildAdapters turns the configured sensor map into concrete Adapter
// instances. Physical transport (MQTT, serial, etc.) is out of scope per
// SPEC_FULL; each adapter is wired to a synthetic reader producing
// plausible RawSamples so the rest of the pipeline has something to poll.
func buildAdapters(nodeID string, sensors map[string]config.SensorConfig) []adapter.Adapter {
	out := make([]adapter.Adapter, 0, len(sensors))
	for id, sc := range sensors {
		switch sc.Adapter {
		case "temperature":
			a := adapter.NewTemperature(id, syntheticScalarReader(nodeID, 20.0, 3.0))
			if sc.PollingInterval > 0 {
				a.Interval = sc.PollingInterval
			}
			out = append(out, a)
		case "humidity":
			a := adapter.NewHumidity(id, syntheticScalarReader(nodeID, 45.0, 8.0))
			if sc.PollingInterval > 0 {
				a.Interval = sc.PollingInterval
			}
			out = append(out, a)
		case "gps":
			a := adapter.NewGPS(id, syntheticGPSReader(nodeID))
			if sc.PollingInterval > 0 {
				a.Interval = sc.PollingInterval
			}
			out = append(out, a)
		}
	}
	return out
}

// syntheticScalarReader produces a noisy reading centered on mean with the
// given standard deviation, a stand-in for a real sensor transport.
func syntheticScalarReader(nodeID string, mean, stddev float64) func(context.Context) (adapter.RawSample, error) {
	return func(ctx context.Context) (adapter.RawSample, error) {
		value := mean + stddev*gaussian()
		return adapter.RawSample{
			NodeID:  nodeID,
			Value:   value,
			Battery: 0.9,
			Signal:  adapter.SignalGood,
			Ts:      time.Now(),
		}, nil
	}
}

func syntheticGPSReader(nodeID string) func(context.Context) (adapter.RawSample, error) {
	return func(ctx context.Context) (adapter.RawSample, error) {
		return adapter.RawSample{
			NodeID: nodeID,
			GPS: &adapter.RawGPS{
				Lat:        37.7749 + 0.0005*gaussian(),
				Lon:        -122.4194 + 0.0005*gaussian(),
				Alt:        10,
				Satellites: 9,
				HDOP:       0.9,
				FixQuality: "GPS",
			},
			Battery: 0.9,
			Signal:  adapter.SignalGood,
			Ts:      time.Now(),
		}, nil
	}
}

// gaussian returns a standard-normal sample via the Box-Muller transform.
func gaussian() float64 {
	u1, u2 := rand.Float64(), rand.Float64()
	return math.Sqrt(-2*math.Log(u1+1e-12)) * math.Cos(2*math.Pi*u2)
}
