package providers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/wind-harvest/internal/common"
	"github.com/i474232898/wind-harvest/internal/weather"
)

// Column headers in the WOW CSV export. Speeds are knots.
const (
	wowColTemp      = "Air Temperature"
	wowColSpeed     = "Wind Speed"
	wowColGust      = "Wind Gust"
	wowColDirection = "Wind Direction"
)

// WOWProvider reads the Met Office WOW observation CSV export.
type WOWProvider struct {
	src *httpSource
}

// NewWOWProvider creates a WOWProvider.
func NewWOWProvider(client *http.Client, opts ...Option) *WOWProvider {
	return &WOWProvider{
		src: newHTTPSource(string(weather.TypeWOW), "https://wow.metoffice.gov.uk", client, opts...),
	}
}

func (p *WOWProvider) Type() weather.ProviderType {
	return weather.TypeWOW
}

func (p *WOWProvider) FetchReading(ctx context.Context, st weather.Station, fc *weather.FetchContext) (weather.Measurement, error) {
	values := url.Values{}
	values.Set("siteId", st.ExternalID)
	values.Set("date", fc.Now.UTC().Format("2006-01-02"))

	f, err := p.src.get(ctx, p.src.baseURL+"/observations/export/csv?"+values.Encode(), nil)
	if err != nil {
		return weather.Measurement{}, err
	}
	return parseWOWExport(f.Body)
}

func parseWOWExport(body []byte) (weather.Measurement, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return weather.Measurement{}, fmt.Errorf("wow: parse csv: %w", err)
	}
	if len(rows) == 0 {
		return weather.Measurement{}, fmt.Errorf("wow: empty export")
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	if _, ok := cols[wowColSpeed]; !ok {
		return weather.Measurement{}, fmt.Errorf("wow: column %q missing", wowColSpeed)
	}
	if len(rows) == 1 {
		return weather.Measurement{}, weather.ErrNoData
	}

	last := rows[len(rows)-1]
	field := func(name string) *float64 {
		i, ok := cols[name]
		if !ok || i >= len(last) {
			return nil
		}
		return common.ParseFloatPtr(last[i])
	}

	m := weather.Measurement{
		WindAverage: field(wowColSpeed),
		WindGust:    field(wowColGust),
		WindBearing: field(wowColDirection),
		Temperature: field(wowColTemp),
	}
	return m.ScaleSpeeds(weather.UnitKnots), nil
}
