package adapter

import (
	"context"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// GPS is the variant for a satellite positioning sensor.
type GPS struct {
	ID       string
	Interval time.Duration
	Reader   func(ctx context.Context) (RawSample, error)
}

func NewGPS(id string, reader func(ctx context.Context) (RawSample, error)) *GPS {
	return &GPS{ID: id, Interval: 10 * time.Second, Reader: reader}
}

func (g *GPS) SensorID() string              { return g.ID }
func (g *GPS) SensorType() model.SensorType   { return model.SensorGPS }
func (g *GPS) PollingInterval() time.Duration { return g.Interval }

func (g *GPS) Read(ctx context.Context) (RawSample, error) { return g.Reader(ctx) }

func (g *GPS) Validate(raw RawSample) bool {
	if raw.GPS == nil {
		return false
	}
	r := raw.GPS
	if r.FixQuality != "GPS" {
		return false
	}
	if r.Satellites < 4 {
		return false
	}
	if r.HDOP > 5.0 {
		return false
	}
	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return false
	}
	return true
}

func (g *GPS) Transform(raw RawSample) (model.Reading, error) {
	r := raw.GPS
	quality := 1.0
	switch {
	case r.HDOP > 2:
		quality *= 0.7
	case r.HDOP > 1.5:
		quality *= 0.9
	}
	switch {
	case r.Satellites >= 8:
		quality *= 1.1
	case r.Satellites < 6:
		quality *= 0.8
	}
	quality = clamp01(quality)

	return model.Reading{
		SensorID:   g.ID,
		SensorType: model.SensorGPS,
		GPS: &model.GPSValue{
			Lat:      r.Lat,
			Lon:      r.Lon,
			Alt:      r.Alt,
			Accuracy: r.HDOP,
		},
		Unit:         "coordinates",
		Timestamp:    raw.Ts,
		NodeID:       raw.NodeID,
		QualityScore: quality,
	}, nil
}
