package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// AttentisProvider reads the Attentis real-time feed. The feed lists every
// station in one payload; stations are matched by ExternalID against the
// station name.
type AttentisProvider struct {
	src   *httpSource
	token string
}

// NewAttentisProvider creates an AttentisProvider.
func NewAttentisProvider(client *http.Client, token string, opts ...Option) *AttentisProvider {
	return &AttentisProvider{
		src:   newHTTPSource(string(weather.TypeAttentis), "https://api.attentistechnology.com", client, opts...),
		token: token,
	}
}

func (p *AttentisProvider) Type() weather.ProviderType {
	return weather.TypeAttentis
}

type attentisFeed struct {
	Data []struct {
		Name    string `json:"name"`
		Weather struct {
			WindAverage   *float64 `json:"wind_average"`
			WindGust      *float64 `json:"wind_gust"`
			WindDirection *float64 `json:"wind_direction"`
			AirTemp       *float64 `json:"air_temp"`
		} `json:"weather"`
	} `json:"data"`
}

func (p *AttentisProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.token)

	var feed attentisFeed
	if err := p.src.getJSON(ctx, p.src.baseURL+"/api/v2/atlas/real-time-data", header, &feed); err != nil {
		return weather.Measurement{}, err
	}

	for _, d := range feed.Data {
		if !strings.EqualFold(strings.TrimSpace(d.Name), st.ExternalID) {
			continue
		}
		return weather.Measurement{
			WindAverage: d.Weather.WindAverage,
			WindGust:    d.Weather.WindGust,
			WindBearing: d.Weather.WindDirection,
			Temperature: d.Weather.AirTemp,
		}, nil
	}
	return weather.Measurement{}, weather.ErrNoData
}
