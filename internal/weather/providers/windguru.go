package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/wind-harvest/internal/weather"
)

const (
	windguruSessionCookie = "session"

	// DefaultSessionMaxAge bounds how long a captured session cookie is reused.
	DefaultSessionMaxAge = 6 * time.Hour
)

// WindguruProvider reads Windguru station data. It is a two-step adapter: the
// station page hands out a session cookie that the data endpoint requires.
// A stored session is reused until it is older than maxAge; a 401 or 403 on a
// reused session forces one re-authentication.
type WindguruProvider struct {
	src    *httpSource
	maxAge time.Duration
}

// NewWindguruProvider creates a WindguruProvider.
func NewWindguruProvider(client *http.Client, maxAge time.Duration, opts ...Option) *WindguruProvider {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &WindguruProvider{
		src:    newHTTPSource(string(weather.TypeWindguru), "https://www.windguru.cz", client, opts...),
		maxAge: maxAge,
	}
}

func (p *WindguruProvider) Type() weather.ProviderType {
	return weather.TypeWindguru
}

type windguruCurrent struct {
	WindAvg       *float64 `json:"wind_avg"`
	WindMax       *float64 `json:"wind_max"`
	WindDirection *float64 `json:"wind_direction"`
	Temperature   *float64 `json:"temperature"`
}

func (p *WindguruProvider) FetchReading(ctx context.Context, st weather.Station, fc *weather.FetchContext) (weather.Measurement, error) {
	session := fc.Session
	reused := session.Valid(fc.Now, p.maxAge)
	if !reused {
		fresh, err := p.login(ctx, st, fc.Now)
		if err != nil {
			return weather.Measurement{}, err
		}
		session = fresh
		fc.Session, fc.SessionRefreshed = fresh, true
	}

	m, err := p.current(ctx, st, session)
	if reused && isAuthFailure(err) {
		fresh, lerr := p.login(ctx, st, fc.Now)
		if lerr != nil {
			return weather.Measurement{}, lerr
		}
		fc.Session, fc.SessionRefreshed = fresh, true
		m, err = p.current(ctx, st, fresh)
	}
	return m, err
}

// login visits the station page and captures the session cookie.
func (p *WindguruProvider) login(ctx context.Context, st weather.Station, now time.Time) (weather.SessionState, error) {
	f, err := p.src.get(ctx, p.stationPage(st), nil)
	if err != nil {
		return weather.SessionState{}, fmt.Errorf("windguru session: %w", err)
	}
	for _, line := range f.Header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(line)
		if err != nil || c.Name != windguruSessionCookie || c.Value == "" {
			continue
		}
		return weather.SessionState{Token: c.Value, ObtainedAt: now}, nil
	}
	return weather.SessionState{}, fmt.Errorf("windguru session: no %s cookie", windguruSessionCookie)
}

func (p *WindguruProvider) current(ctx context.Context, st weather.Station, session weather.SessionState) (weather.Measurement, error) {
	values := url.Values{}
	values.Set("q", "station_data_current")
	values.Set("id_station", st.ExternalID)

	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: windguruSessionCookie, Value: session.Token}).String())
	header.Set("Referer", p.stationPage(st))

	f, err := p.src.get(ctx, p.src.baseURL+"/int/iapi.php?"+values.Encode(), header)
	if err != nil {
		return weather.Measurement{}, err
	}

	var payload windguruCurrent
	if err := json.Unmarshal(f.Body, &payload); err != nil {
		return weather.Measurement{}, fmt.Errorf("windguru: decode: %w", err)
	}
	m := weather.Measurement{
		WindAverage: payload.WindAvg,
		WindGust:    payload.WindMax,
		WindBearing: payload.WindDirection,
		Temperature: payload.Temperature,
	}
	if !m.HasWind() && m.Temperature == nil {
		return weather.Measurement{}, weather.ErrNoData
	}
	return m.ScaleSpeeds(weather.UnitKnots), nil
}

func (p *WindguruProvider) stationPage(st weather.Station) string {
	return p.src.baseURL + "/station/" + url.PathEscape(st.ExternalID)
}
