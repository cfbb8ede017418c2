package httpapi

import "github.com/i474232898/wind-harvest/internal/weather"

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   geometry          `json:"geometry"`
	Properties stationProperties `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type stationProperties struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Type               weather.ProviderType `json:"type"`
	Link               string               `json:"link"`
	LastUpdate         *int64               `json:"lastUpdate"`
	CurrentAverage     *float64             `json:"currentAverage"`
	CurrentGust        *float64             `json:"currentGust"`
	CurrentBearing     *float64             `json:"currentBearing"`
	CurrentTemperature *float64             `json:"currentTemperature"`
}

func toFeatureCollection(stations []weather.Station) featureCollection {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(stations))}
	for _, st := range stations {
		props := stationProperties{
			ID:                 st.ID,
			Name:               st.Name,
			Type:               st.Type,
			Link:               st.Link,
			CurrentAverage:     roundPtr(st.CurrentAverage),
			CurrentGust:        roundPtr(st.CurrentGust),
			CurrentBearing:     roundPtr(st.CurrentBearing),
			CurrentTemperature: roundPtr(st.CurrentTemperature),
		}
		if !st.LastUpdate.IsZero() {
			ts := st.LastUpdate.Unix()
			props.LastUpdate = &ts
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: geometry{
				Type:        "Point",
				Coordinates: [2]float64{st.Coordinates.Lon, st.Coordinates.Lat},
			},
			Properties: props,
		})
	}
	return fc
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := weather.Round(*v, 0)
	return &r
}
