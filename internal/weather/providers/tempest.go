package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// TempestProvider reads WeatherFlow Tempest station observations. Speeds are m/s.
type TempestProvider struct {
	src   *httpSource
	token string
}

// NewTempestProvider creates a TempestProvider.
func NewTempestProvider(client *http.Client, token string, opts ...Option) *TempestProvider {
	return &TempestProvider{
		src:   newHTTPSource(string(weather.TypeTempest), "https://swd.weatherflow.com", client, opts...),
		token: token,
	}
}

func (p *TempestProvider) Type() weather.ProviderType {
	return weather.TypeTempest
}

type tempestObservations struct {
	Obs []struct {
		Timestamp      int64    `json:"timestamp"`
		AirTemperature *float64 `json:"air_temperature"`
		WindAvg        *float64 `json:"wind_avg"`
		WindGust       *float64 `json:"wind_gust"`
		WindDirection  *float64 `json:"wind_direction"`
	} `json:"obs"`
}

func (p *TempestProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	u := fmt.Sprintf("%s/swd/rest/observations/station/%s?token=%s",
		p.src.baseURL, url.PathEscape(st.ExternalID), url.QueryEscape(p.token))

	var payload tempestObservations
	if err := p.src.getJSON(ctx, u, nil, &payload); err != nil {
		return weather.Measurement{}, err
	}
	if len(payload.Obs) == 0 {
		return weather.Measurement{}, weather.ErrNoData
	}

	obs := payload.Obs[len(payload.Obs)-1]
	m := weather.Measurement{
		WindAverage: obs.WindAvg,
		WindGust:    obs.WindGust,
		WindBearing: obs.WindDirection,
		Temperature: obs.AirTemperature,
	}
	return m.ScaleSpeeds(weather.UnitMs), nil
}
