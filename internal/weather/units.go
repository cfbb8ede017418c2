package weather

import (
	"math"
	"strings"

	"github.com/i474232898/wind-harvest/internal/common"
)

const (
	kmhPerKnot = 1.852
	kmhPerMs   = 3.6
)

// KnotsToKmh converts knots to km/h.
func KnotsToKmh(v float64) float64 {
	return v * kmhPerKnot
}

// MsToKmh converts metres per second to km/h.
func MsToKmh(v float64) float64 {
	return v * kmhPerMs
}

// ToKmh converts v from unit to km/h. Unknown units are returned as-is.
func ToKmh(v float64, unit Unit) float64 {
	switch unit {
	case UnitKnots:
		return KnotsToKmh(v)
	case UnitMs:
		return MsToKmh(v)
	default:
		return v
	}
}

// ScaleSpeeds converts non-nil average/gust from unit to km/h.
func (m Measurement) ScaleSpeeds(unit Unit) Measurement {
	if m.WindAverage != nil {
		m.WindAverage = Float(ToKmh(*m.WindAverage, unit))
	}
	if m.WindGust != nil {
		m.WindGust = Float(ToKmh(*m.WindGust, unit))
	}
	return m
}

var compassPoints = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
}

var compassWords = []struct {
	word  string
	point string
}{
	{"north", "N"},
	{"south", "S"},
	{"east", "E"},
	{"west", "W"},
}

// CompassToBearing maps a compass-point string ("NE", "SSW", "Southerly",
// "North-East") to degrees. ok is false for anything else, including "Calm".
func CompassToBearing(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if deg, ok := compassPoints[strings.ToUpper(s)]; ok {
		return deg, true
	}

	word := strings.ToLower(s)
	word = strings.NewReplacer("-", "", " ", "", "_", "").Replace(word)
	word = strings.TrimSuffix(word, "erly")
	word = strings.TrimSuffix(word, "ern")

	var point strings.Builder
	for word != "" {
		matched := false
		for _, cw := range compassWords {
			if strings.HasPrefix(word, cw.word) {
				point.WriteString(cw.point)
				word = word[len(cw.word):]
				matched = true
				break
			}
		}
		if !matched {
			return 0, false
		}
	}
	deg, ok := compassPoints[point.String()]
	return deg, ok
}

// IsCalm reports whether a wind-strength text means no wind.
func IsCalm(s string) bool {
	return common.HasAny(strings.ToLower(strings.TrimSpace(s)), "calm")
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
