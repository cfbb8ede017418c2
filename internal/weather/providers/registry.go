package providers

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// Credentials holds the provider secrets adapters need.
type Credentials struct {
	HolfuyKey     string
	AttentisToken string
	TempestToken  string
	WUKey         string
}

// RegistryConfig configures the default adapter set.
type RegistryConfig struct {
	Credentials   Credentials
	SessionMaxAge time.Duration
	// RequestsPerSecond paces every provider; zero disables pacing.
	RequestsPerSecond float64
}

// NewRegistry registers every reading and image adapter.
func NewRegistry(client *http.Client, cfg RegistryConfig, clock clockwork.Clock) *weather.Registry {
	var opts []Option
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, WithRateLimit(cfg.RequestsPerSecond, 1))
	}

	r := weather.NewRegistry()
	r.RegisterReading(NewHarvestProvider(client, opts...))
	r.RegisterReading(NewMetserviceProvider(client, opts...))
	r.RegisterReading(NewHolfuyProvider(client, cfg.Credentials.HolfuyKey, opts...))
	r.RegisterReading(NewAttentisProvider(client, cfg.Credentials.AttentisToken, opts...))
	r.RegisterReading(NewCWUProvider(client, opts...))
	r.RegisterReading(NewWOWProvider(client, opts...))
	r.RegisterReading(NewWindguruProvider(client, cfg.SessionMaxAge, opts...))
	r.RegisterReading(NewTempestProvider(client, cfg.Credentials.TempestToken, opts...))
	r.RegisterReading(NewWUProvider(client, cfg.Credentials.WUKey, opts...))

	r.RegisterImage(NewLakeWanakaCam(client, opts...))
	r.RegisterImage(NewQueenstownAirportCam(client, clock, opts...))
	r.RegisterImage(NewCastleMountCam(client, clock, opts...))
	return r
}
