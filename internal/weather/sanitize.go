package weather

import "math"

// Physical bounds applied by Clip.
const (
	MinSpeed       = 0.0
	MaxSpeed       = 500.0
	MinBearing     = 0.0
	MaxBearing     = 360.0
	MinTemperature = -40.0
	MaxTemperature = 60.0
)

// Clip nulls any field outside its physical bounds. Fields are checked
// independently; in-range values are returned unchanged.
func Clip(m Measurement) Measurement {
	return Measurement{
		WindAverage: within(m.WindAverage, MinSpeed, MaxSpeed),
		WindGust:    within(m.WindGust, MinSpeed, MaxSpeed),
		WindBearing: within(m.WindBearing, MinBearing, MaxBearing),
		Temperature: within(m.Temperature, MinTemperature, MaxTemperature),
	}
}

func within(v *float64, lo, hi float64) *float64 {
	if v == nil || math.IsNaN(*v) || *v < lo || *v > hi {
		return nil
	}
	return v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
