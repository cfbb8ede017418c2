package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wind-harvest/internal/store"
	"github.com/i474232898/wind-harvest/internal/weather"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10, cfg.IntervalMinutes)
	assert.Equal(t, 20*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, 8*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 600, cfg.ImageTargetWidth)
	assert.Equal(t, []weather.ProviderType{
		weather.TypeAttentis, weather.TypeWOW, weather.TypeTempest, weather.TypeWU,
	}, cfg.AlwaysNotifyTypes)

	dc := cfg.DetectorConfig()
	assert.Equal(t, 36, dc.Window)
	assert.Equal(t, 20*time.Minute, dc.StaleAfter)
	assert.Equal(t, 2, dc.GroupThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INTERVAL_MINUTES", "5")
	t.Setenv("ADAPTER_TIMEOUT", "3s")
	t.Setenv("ALWAYS_NOTIFY_TYPES", "wow, cwu")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, []weather.ProviderType{weather.TypeWOW, weather.TypeCWU}, cfg.AlwaysNotifyTypes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 72, cfg.DetectorConfig().Window)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("RUN_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "RUN_TIMEOUT")
}

func TestLoad_ValidatesRanges(t *testing.T) {
	t.Setenv("INTERVAL_MINUTES", "0")
	_, err := Load()
	assert.Error(t, err)
}

const sampleCatalogue = `
stations:
  - id: st-1
    name: Coronet Peak
    type: harvest
    externalId: "1057_1"
    externalAux: "6_7_8_0"
    coordinates: {lat: -44.92, lon: 168.74}
    elevation: 1640
    validBearings:
      - {from: 300, to: 30}
    overrides:
      swapChannels: true
      speedUnit: kt
  - id: st-2
    name: Treble Cone
    type: windguru
    externalId: "2245"
    coordinates: {lat: -44.63, lon: 168.88}
webcams:
  - id: cam-1
    name: Airport
    type: qa
    externalId: "runway"
    coordinates: {lat: -45.02, lon: 168.74}
apiKeys:
  - key: abc123
    name: partner
    monthlyLimit: 1000
`

func TestParseCatalogue(t *testing.T) {
	c, err := ParseCatalogue([]byte(sampleCatalogue))
	require.NoError(t, err)
	require.Len(t, c.Stations, 2)

	st := c.Stations[0]
	assert.Equal(t, weather.TypeHarvest, st.Type)
	assert.Equal(t, "6_7_8_0", st.ExternalAux)
	assert.True(t, st.Overrides.SwapChannels)
	assert.Equal(t, weather.UnitKnots, st.Overrides.SpeedUnit)
	require.Len(t, st.ValidBearings, 1)
	assert.True(t, st.ValidBearings[0].Contains(350))
	assert.False(t, st.ValidBearings[0].Contains(180))

	require.Len(t, c.APIKeys, 1)
	assert.Equal(t, int64(1000), c.APIKeys[0].MonthlyLimit)
}

func TestParseCatalogue_RejectsDuplicatesAndMissingFields(t *testing.T) {
	_, err := ParseCatalogue([]byte(`
stations:
  - {id: a, name: A, type: wu, externalId: x}
  - {id: a, name: B, type: wu, externalId: y}
`))
	assert.ErrorContains(t, err, "duplicate station id")

	_, err = ParseCatalogue([]byte(`
stations:
  - {id: a, type: wu, externalId: x}
`))
	assert.Error(t, err)
}

func TestCatalogueSeed(t *testing.T) {
	ctx := context.Background()
	c, err := ParseCatalogue([]byte(sampleCatalogue))
	require.NoError(t, err)

	s := store.NewMemoryStore(nil)
	require.NoError(t, c.Seed(ctx, s))

	stations, err := s.ListStations(ctx, []weather.ProviderType{weather.TypeWindguru})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "st-2", stations[0].ID)

	key, err := s.FindAPIKey(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "partner", key.Name)
}
