package providers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// MetserviceProvider reads one-minute observations from MetService.
type MetserviceProvider struct {
	src *httpSource
}

// NewMetserviceProvider creates a MetserviceProvider.
func NewMetserviceProvider(client *http.Client, opts ...Option) *MetserviceProvider {
	return &MetserviceProvider{
		src: newHTTPSource(string(weather.TypeMetservice), "https://www.metservice.com", client, opts...),
	}
}

func (p *MetserviceProvider) Type() weather.ProviderType {
	return weather.TypeMetservice
}

type metserviceObs struct {
	Observations struct {
		Wind []struct {
			AverageSpeed *float64 `json:"averageSpeed"`
			GustSpeed    *float64 `json:"gustSpeed"`
			Direction    string   `json:"direction"`
			Strength     string   `json:"strength"`
		} `json:"wind"`
		Temperature []struct {
			Current *float64 `json:"current"`
		} `json:"temperature"`
	} `json:"observations"`
}

func (p *MetserviceProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	u := p.src.baseURL + "/publicData/oneMinObs_" + url.PathEscape(st.ExternalID)

	var payload metserviceObs
	if err := p.src.getJSON(ctx, u, nil, &payload); err != nil {
		return weather.Measurement{}, err
	}

	obs := payload.Observations
	if len(obs.Wind) == 0 && len(obs.Temperature) == 0 {
		return weather.Measurement{}, weather.ErrNoData
	}

	var m weather.Measurement
	if len(obs.Wind) > 0 {
		w := obs.Wind[0]
		m.WindAverage = w.AverageSpeed
		m.WindGust = w.GustSpeed
		if deg, ok := weather.CompassToBearing(w.Direction); ok {
			m.WindBearing = weather.Float(deg)
		}
		if weather.IsCalm(w.Strength) || weather.IsCalm(w.Direction) {
			if m.WindAverage == nil {
				m.WindAverage = weather.Float(0)
			}
			if m.WindGust == nil {
				m.WindGust = weather.Float(0)
			}
		}
	}
	if len(obs.Temperature) > 0 {
		m.Temperature = obs.Temperature[0].Current
	}
	return m, nil
}
