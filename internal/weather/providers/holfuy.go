package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// HolfuyProvider reads live data from the Holfuy API.
type HolfuyProvider struct {
	src    *httpSource
	apiKey string
}

// NewHolfuyProvider creates a HolfuyProvider.
func NewHolfuyProvider(client *http.Client, apiKey string, opts ...Option) *HolfuyProvider {
	return &HolfuyProvider{
		src:    newHTTPSource(string(weather.TypeHolfuy), "https://api.holfuy.com", client, opts...),
		apiKey: apiKey,
	}
}

func (p *HolfuyProvider) Type() weather.ProviderType {
	return weather.TypeHolfuy
}

type holfuyLive struct {
	Error       string   `json:"error"`
	DateTime    string   `json:"dateTime"`
	Temperature *float64 `json:"temperature"`
	Wind        *struct {
		Speed     *float64 `json:"speed"`
		Gust      *float64 `json:"gust"`
		Direction *float64 `json:"direction"`
	} `json:"wind"`
}

func (p *HolfuyProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	values := url.Values{}
	values.Set("s", st.ExternalID)
	values.Set("pw", p.apiKey)
	values.Set("m", "JSON")
	values.Set("tu", "C")
	values.Set("su", "km/h")

	var payload holfuyLive
	if err := p.src.getJSON(ctx, fmt.Sprintf("%s/live/?%s", p.src.baseURL, values.Encode()), nil, &payload); err != nil {
		return weather.Measurement{}, err
	}
	if payload.Error != "" {
		return weather.Measurement{}, fmt.Errorf("holfuy: %s", payload.Error)
	}
	if payload.Wind == nil && payload.Temperature == nil {
		return weather.Measurement{}, weather.ErrNoData
	}

	m := weather.Measurement{Temperature: payload.Temperature}
	if payload.Wind != nil {
		m.WindAverage = payload.Wind.Speed
		m.WindGust = payload.Wind.Gust
		m.WindBearing = payload.Wind.Direction
	}
	return m, nil
}
