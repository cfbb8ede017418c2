package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// WUProvider reads Weather Underground personal weather station conditions in
// metric units.
type WUProvider struct {
	src    *httpSource
	apiKey string
}

// NewWUProvider creates a WUProvider.
func NewWUProvider(client *http.Client, apiKey string, opts ...Option) *WUProvider {
	return &WUProvider{
		src:    newHTTPSource(string(weather.TypeWU), "https://api.weather.com", client, opts...),
		apiKey: apiKey,
	}
}

func (p *WUProvider) Type() weather.ProviderType {
	return weather.TypeWU
}

type wuCurrent struct {
	Observations []struct {
		WindDir *float64 `json:"winddir"`
		Metric  struct {
			Temp      *float64 `json:"temp"`
			WindSpeed *float64 `json:"windSpeed"`
			WindGust  *float64 `json:"windGust"`
		} `json:"metric"`
	} `json:"observations"`
}

func (p *WUProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	values := url.Values{}
	values.Set("stationId", st.ExternalID)
	values.Set("format", "json")
	values.Set("units", "m")
	values.Set("numericPrecision", "decimal")
	values.Set("apiKey", p.apiKey)

	f, err := p.src.get(ctx, p.src.baseURL+"/v2/pws/observations/current?"+values.Encode(), nil)
	if err != nil {
		return weather.Measurement{}, err
	}
	// The station exists but has not reported recently.
	if f.Status == http.StatusNoContent || len(f.Body) == 0 {
		return weather.Measurement{}, weather.ErrNoData
	}

	var payload wuCurrent
	if err := json.Unmarshal(f.Body, &payload); err != nil {
		return weather.Measurement{}, fmt.Errorf("wu: decode: %w", err)
	}
	if len(payload.Observations) == 0 {
		return weather.Measurement{}, weather.ErrNoData
	}

	obs := payload.Observations[0]
	return weather.Measurement{
		WindAverage: obs.Metric.WindSpeed,
		WindGust:    obs.Metric.WindGust,
		WindBearing: obs.WindDir,
		Temperature: obs.Metric.Temp,
	}, nil
}
