package weather

import (
	"time"
)

// ProviderType tags a station or webcam with the upstream source it is harvested from.
type ProviderType string

// Station providers.
const (
	TypeHarvest    ProviderType = "harvest"
	TypeMetservice ProviderType = "metservice"
	TypeHolfuy     ProviderType = "holfuy"
	TypeAttentis   ProviderType = "attentis"
	TypeCWU        ProviderType = "cwu"
	TypeWOW        ProviderType = "wow"
	TypeWindguru   ProviderType = "windguru"
	TypeTempest    ProviderType = "tempest"
	TypeWU         ProviderType = "wu"
)

// Webcam providers.
const (
	TypeLakeWanaka        ProviderType = "lw"
	TypeQueenstownAirport ProviderType = "qa"
	TypeCastleMount       ProviderType = "cm"
)

// ReadingTTL is how long a stored Reading or Image is kept before the store expires it.
const ReadingTTL = 24 * time.Hour

// Unit identifies the speed unit a provider reports in.
type Unit string

const (
	UnitKmh   Unit = "kmh"
	UnitKnots Unit = "kt"
	UnitMs    Unit = "ms"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat" yaml:"lat"`
	Lon float64 `json:"lon" bson:"lon" yaml:"lon"`
}

// BearingArc is a favourable wind-direction range in compass degrees.
// From > To wraps through north (e.g. 330 -> 30).
type BearingArc struct {
	From float64 `json:"from" bson:"from" yaml:"from"`
	To   float64 `json:"to" bson:"to" yaml:"to"`
}

// Contains reports whether bearing lies inside the arc.
func (a BearingArc) Contains(bearing float64) bool {
	if a.From <= a.To {
		return bearing >= a.From && bearing <= a.To
	}
	return bearing >= a.From || bearing <= a.To
}

// StationOverrides carries per-station quirks that adapters apply after generic parsing.
type StationOverrides struct {
	// SwapChannels swaps which upstream channel is treated as average vs gust.
	SwapChannels bool `json:"swapChannels,omitempty" bson:"swapChannels,omitempty" yaml:"swapChannels"`
	// SpeedUnit rescales average/gust when a single station reports in a non-default unit.
	SpeedUnit Unit `json:"speedUnit,omitempty" bson:"speedUnit,omitempty" yaml:"speedUnit"`
	// LongInterval marks stations that only report every ~30 minutes.
	LongInterval bool `json:"longInterval,omitempty" bson:"longInterval,omitempty" yaml:"longInterval"`
}

// SessionState is adapter-local authentication state persisted between runs.
type SessionState struct {
	Token      string    `json:"-" bson:"token,omitempty" yaml:"-"`
	ObtainedAt time.Time `json:"-" bson:"obtainedAt,omitempty" yaml:"-"`
}

// Valid reports whether the session can still be reused at now.
func (s SessionState) Valid(now time.Time, maxAge time.Duration) bool {
	if s.Token == "" {
		return false
	}
	return now.Sub(s.ObtainedAt) < maxAge
}

// Measurement is the canonical reading shape. Nil means "not reported".
// Speeds are km/h, bearing is compass degrees, temperature is Celsius.
type Measurement struct {
	WindAverage *float64 `json:"windAverage" bson:"windAverage"`
	WindGust    *float64 `json:"windGust" bson:"windGust"`
	WindBearing *float64 `json:"windBearing" bson:"windBearing"`
	Temperature *float64 `json:"temperature" bson:"temperature"`
}

// HasWind reports whether average or gust is present.
func (m Measurement) HasWind() bool {
	return m.WindAverage != nil || m.WindGust != nil
}

// Complete reports whether all four fields are present.
func (m Measurement) Complete() bool {
	return m.WindAverage != nil && m.WindGust != nil && m.WindBearing != nil && m.Temperature != nil
}

// Station is a wind observation site and its current snapshot.
type Station struct {
	ID            string           `json:"id" bson:"_id" yaml:"id" validate:"required"`
	Name          string           `json:"name" bson:"name" yaml:"name" validate:"required"`
	Type          ProviderType     `json:"type" bson:"type" yaml:"type" validate:"required"`
	ExternalID    string           `json:"externalId" bson:"externalId" yaml:"externalId" validate:"required"`
	ExternalAux   string           `json:"externalAux,omitempty" bson:"externalAux,omitempty" yaml:"externalAux"`
	Link          string           `json:"link,omitempty" bson:"link,omitempty" yaml:"link"`
	Coordinates   Coordinates      `json:"coordinates" bson:"coordinates" yaml:"coordinates"`
	Elevation     float64          `json:"elevation" bson:"elevation" yaml:"elevation"`
	ValidBearings []BearingArc     `json:"validBearings,omitempty" bson:"validBearings,omitempty" yaml:"validBearings"`
	Overrides     StationOverrides `json:"overrides,omitempty" bson:"overrides,omitempty" yaml:"overrides"`
	Session       SessionState     `json:"-" bson:"session,omitempty" yaml:"-"`

	LastUpdate         time.Time `json:"lastUpdate" bson:"lastUpdate" yaml:"-"`
	CurrentAverage     *float64  `json:"currentAverage" bson:"currentAverage" yaml:"-"`
	CurrentGust        *float64  `json:"currentGust" bson:"currentGust" yaml:"-"`
	CurrentBearing     *float64  `json:"currentBearing" bson:"currentBearing" yaml:"-"`
	CurrentTemperature *float64  `json:"currentTemperature" bson:"currentTemperature" yaml:"-"`
	IsOffline          bool      `json:"isOffline" bson:"isOffline" yaml:"-"`
	IsError            bool      `json:"isError" bson:"isError" yaml:"-"`
}

// Reading is one stored observation, aligned to a batch bucket.
type Reading struct {
	ID          string    `json:"id" bson:"_id"`
	StationID   string    `json:"stationId" bson:"stationId"`
	Time        time.Time `json:"time" bson:"time"`
	ExpireAt    time.Time `json:"expireAt" bson:"expireAt"`
	Measurement `bson:",inline"`
}

// Webcam is an image source and its current snapshot.
type Webcam struct {
	ID          string       `json:"id" bson:"_id" yaml:"id" validate:"required"`
	Name        string       `json:"name" bson:"name" yaml:"name" validate:"required"`
	Type        ProviderType `json:"type" bson:"type" yaml:"type" validate:"required"`
	ExternalID  string       `json:"externalId" bson:"externalId" yaml:"externalId" validate:"required"`
	Coordinates Coordinates  `json:"coordinates" bson:"coordinates" yaml:"coordinates"`

	LastUpdate  time.Time `json:"lastUpdate" bson:"lastUpdate" yaml:"-"`
	CurrentTime time.Time `json:"currentTime" bson:"currentTime" yaml:"-"`
	CurrentURL  string    `json:"currentUrl" bson:"currentUrl" yaml:"-"`
}

// Image is one stored webcam frame.
type Image struct {
	ID       string    `json:"id" bson:"_id"`
	WebcamID string    `json:"webcamId" bson:"webcamId"`
	Time     time.Time `json:"time" bson:"time"`
	ExpireAt time.Time `json:"expireAt" bson:"expireAt"`
	URL      string    `json:"url" bson:"url"`
	Hash     string    `json:"hash,omitempty" bson:"hash,omitempty"`
	Size     int       `json:"size,omitempty" bson:"size,omitempty"`
}

// CapturedImage is what an image adapter returns.
type CapturedImage struct {
	CapturedAt time.Time
	Data       []byte
	// HashDependent is set when CapturedAt is assumed rather than reported,
	// so content hashing is the only way to detect an unchanged frame.
	HashDependent bool
}

// Alert is raised when a station transitions to offline.
type Alert struct {
	Type    ProviderType `json:"type"`
	Message string       `json:"message"`
}

// Output is a catalogue entry for a merged archival file.
type Output struct {
	Time time.Time `json:"time" bson:"time"`
	URL  string    `json:"url" bson:"url"`
}

// APIKey grants access to the public read API.
type APIKey struct {
	Key          string `json:"key" bson:"_id" yaml:"key" validate:"required"`
	Name         string `json:"name" bson:"name" yaml:"name"`
	MonthlyLimit int64  `json:"monthlyLimit" bson:"monthlyLimit" yaml:"monthlyLimit" validate:"gte=0"`
}

// ArchiveRecord is the per-station document written for each batch run.
type ArchiveRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        ProviderType `json:"type"`
	Coordinates Coordinates  `json:"coordinates"`
	Timestamp   int64        `json:"timestamp"`
	Wind        ArchiveWind  `json:"wind"`
	Temperature *float64     `json:"temperature"`
}

// ArchiveWind groups the wind fields of an ArchiveRecord.
type ArchiveWind struct {
	Average *float64 `json:"average"`
	Gust    *float64 `json:"gust"`
	Bearing *float64 `json:"bearing"`
}

// NewArchiveRecord builds the archival document for a station at a bucket time.
func NewArchiveRecord(st Station, m Measurement, at time.Time) ArchiveRecord {
	return ArchiveRecord{
		ID:          st.ID,
		Name:        st.Name,
		Type:        st.Type,
		Coordinates: st.Coordinates,
		Timestamp:   at.Unix(),
		Wind: ArchiveWind{
			Average: m.WindAverage,
			Gust:    m.WindGust,
			Bearing: m.WindBearing,
		},
		Temperature: m.Temperature,
	}
}
