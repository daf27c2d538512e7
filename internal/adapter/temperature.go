package adapter

import (
	"context"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// TemperatureUnit names the unit a raw sample arrives in; all are converted
// to celsius on Transform.
type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "celsius"
	UnitFahrenheit TemperatureUnit = "fahrenheit"
	UnitKelvin     TemperatureUnit = "kelvin"
)

// Temperature is the variant for a temperature sensor.
type Temperature struct {
	ID       string
	Interval time.Duration
	SourceUnit TemperatureUnit
	Min, Max float64 // valid celsius range, default -50..100
	Reader   func(ctx context.Context) (RawSample, error)
}

// NewTemperature builds a Temperature adapter with spec defaults applied to
// any zero-valued field.
func NewTemperature(id string, reader func(ctx context.Context) (RawSample, error)) *Temperature {
	return &Temperature{
		ID:         id,
		Interval:   30 * time.Second,
		SourceUnit: UnitCelsius,
		Min:        -50,
		Max:        100,
		Reader:     reader,
	}
}

func (t *Temperature) SensorID() string             { return t.ID }
func (t *Temperature) SensorType() model.SensorType  { return model.SensorTemperature }
func (t *Temperature) PollingInterval() time.Duration { return t.Interval }

func (t *Temperature) Read(ctx context.Context) (RawSample, error) {
	return t.Reader(ctx)
}

func toCelsius(v float64, unit TemperatureUnit) float64 {
	switch unit {
	case UnitFahrenheit:
		return (v - 32) * 5 / 9
	case UnitKelvin:
		return v - 273.15
	default:
		return v
	}
}

func (t *Temperature) Validate(raw RawSample) bool {
	c := toCelsius(raw.Value, t.SourceUnit)
	if c < t.Min || c > t.Max {
		return false
	}
	if raw.Signal == SignalPoor {
		return false
	}
	return true
}

func (t *Temperature) Transform(raw RawSample) (model.Reading, error) {
	c := toCelsius(raw.Value, t.SourceUnit)
	quality := clamp01(signalQualityFactor(raw.Signal) * batteryQualityFactor(raw.Battery))
	return model.Reading{
		SensorID:     t.ID,
		SensorType:   model.SensorTemperature,
		Value:        c,
		Unit:         string(UnitCelsius),
		Timestamp:    raw.Ts,
		NodeID:       raw.NodeID,
		QualityScore: quality,
	}, nil
}
