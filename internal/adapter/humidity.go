package adapter

import (
	"context"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// Humidity is the variant for a relative-humidity sensor. Values are
// percent, clamped to [0,100] after a calibration offset is applied.
type Humidity struct {
	ID          string
	Interval    time.Duration
	CalOffset   float64
	Reader      func(ctx context.Context) (RawSample, error)
}

func NewHumidity(id string, reader func(ctx context.Context) (RawSample, error)) *Humidity {
	return &Humidity{ID: id, Interval: 60 * time.Second, Reader: reader}
}

func (h *Humidity) SensorID() string              { return h.ID }
func (h *Humidity) SensorType() model.SensorType   { return model.SensorHumidity }
func (h *Humidity) PollingInterval() time.Duration { return h.Interval }

func (h *Humidity) Read(ctx context.Context) (RawSample, error) { return h.Reader(ctx) }

func (h *Humidity) Validate(raw RawSample) bool {
	return raw.Signal != SignalPoor
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (h *Humidity) Transform(raw RawSample) (model.Reading, error) {
	v := clampPercent(raw.Value + h.CalOffset)
	quality := 0.95
	return model.Reading{
		SensorID:     h.ID,
		SensorType:   model.SensorHumidity,
		Value:        v,
		Unit:         "percent",
		Timestamp:    raw.Ts,
		NodeID:       raw.NodeID,
		QualityScore: quality,
	}, nil
}
