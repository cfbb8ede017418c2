package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/wind-harvest/internal/common"
	"github.com/i474232898/wind-harvest/internal/weather"
)

// Labels on the CWU station page; each value sits in the next table cell.
const (
	cwuSpeedLabel     = "Wind Speed:</td><td>"
	cwuGustLabel      = "Wind Gust:</td><td>"
	cwuDirectionLabel = "Wind Direction:</td><td>"
	cwuTempLabel      = "Temperature:</td><td>"
	cwuCellEnd        = "</td>"
)

// CWUProvider scrapes Canterbury Weather Updates station pages.
type CWUProvider struct {
	src *httpSource
}

// NewCWUProvider creates a CWUProvider.
func NewCWUProvider(client *http.Client, opts ...Option) *CWUProvider {
	return &CWUProvider{
		src: newHTTPSource(string(weather.TypeCWU), "https://cwu.co.nz", client, opts...),
	}
}

func (p *CWUProvider) Type() weather.ProviderType {
	return weather.TypeCWU
}

func (p *CWUProvider) FetchReading(ctx context.Context, st weather.Station, _ *weather.FetchContext) (weather.Measurement, error) {
	f, err := p.src.get(ctx, p.src.baseURL+"/forecast/"+url.PathEscape(st.ExternalID)+"/", nil)
	if err != nil {
		return weather.Measurement{}, err
	}
	return parseCWUPage(string(f.Body))
}

func parseCWUPage(body string) (weather.Measurement, error) {
	speed, ok := common.Between(body, cwuSpeedLabel, cwuCellEnd)
	if !ok {
		return weather.Measurement{}, fmt.Errorf("cwu: wind speed not found in page")
	}

	var m weather.Measurement
	if weather.IsCalm(speed) {
		m.WindAverage = weather.Float(0)
		m.WindGust = weather.Float(0)
	} else {
		m.WindAverage = leadingNumber(speed)
		if gust, ok := common.Between(body, cwuGustLabel, cwuCellEnd); ok {
			m.WindGust = leadingNumber(gust)
		}
	}
	if dir, ok := common.Between(body, cwuDirectionLabel, cwuCellEnd); ok {
		if deg, ok := weather.CompassToBearing(dir); ok {
			m.WindBearing = weather.Float(deg)
		}
	}
	if temp, ok := common.Between(body, cwuTempLabel, cwuCellEnd); ok {
		m.Temperature = leadingNumber(temp)
	}
	return m, nil
}

// leadingNumber parses the first whitespace-separated token of s, e.g. "15 km/h"
// or "12.3&deg;C".
func leadingNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '.' || (r >= '0' && r <= '9'))
	})
	if end >= 0 {
		s = s[:end]
	}
	return common.ParseFloatPtr(s)
}
