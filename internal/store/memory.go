package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/wind-harvest/internal/weather"
)

var (
	// ErrNotFound is returned when a station, webcam, image or key does not exist.
	ErrNotFound = weather.ErrNotFound
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Expired readings and images are swept on write, mirroring a database TTL index.
type MemoryStore struct {
	mu sync.RWMutex

	clock clockwork.Clock

	stations     map[string]*weather.Station
	stationOrder []string
	readings     map[string][]weather.Reading // oldest first

	webcams  map[string]*weather.Webcam
	camOrder []string
	images   map[string][]weather.Image // oldest first

	outputs []weather.Output
	apiKeys map[string]weather.APIKey
}

// NewMemoryStore creates an empty MemoryStore. A nil clock uses real time.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:    clock,
		stations: make(map[string]*weather.Station),
		readings: make(map[string][]weather.Reading),
		webcams:  make(map[string]*weather.Webcam),
		images:   make(map[string][]weather.Image),
		apiKeys:  make(map[string]weather.APIKey),
	}
}

// UpsertStation adds a station or replaces its catalogue fields, keeping the snapshot.
func (s *MemoryStore) UpsertStation(_ context.Context, st weather.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.stations[st.ID]; ok {
		st.Session = cur.Session
		st.LastUpdate = cur.LastUpdate
		st.CurrentAverage = cur.CurrentAverage
		st.CurrentGust = cur.CurrentGust
		st.CurrentBearing = cur.CurrentBearing
		st.CurrentTemperature = cur.CurrentTemperature
		st.IsOffline = cur.IsOffline
		st.IsError = cur.IsError
	} else {
		s.stationOrder = append(s.stationOrder, st.ID)
	}
	s.stations[st.ID] = &st
	return nil
}

// UpsertWebcam adds a webcam or replaces its catalogue fields, keeping the snapshot.
func (s *MemoryStore) UpsertWebcam(_ context.Context, cam weather.Webcam) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.webcams[cam.ID]; ok {
		cam.LastUpdate = cur.LastUpdate
		cam.CurrentTime = cur.CurrentTime
		cam.CurrentURL = cur.CurrentURL
	} else {
		s.camOrder = append(s.camOrder, cam.ID)
	}
	s.webcams[cam.ID] = &cam
	return nil
}

// UpsertAPIKey stores an API key.
func (s *MemoryStore) UpsertAPIKey(_ context.Context, key weather.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[key.Key] = key
	return nil
}

// ListStations returns copies of the stations whose type is in types (nil = all).
func (s *MemoryStore) ListStations(_ context.Context, types []weather.ProviderType) ([]weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[weather.ProviderType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var out []weather.Station
	for _, id := range s.stationOrder {
		st := s.stations[id]
		if types != nil && !want[st.Type] {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

// Station returns a copy of one station.
func (s *MemoryStore) Station(_ context.Context, id string) (weather.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return weather.Station{}, ErrNotFound
	}
	return *st, nil
}

// AppendReading stores a reading and updates the station snapshot. A reading at or
// before the newest stored bucket is not appended again, but the snapshot still
// takes the latest write.
func (s *MemoryStore) AppendReading(_ context.Context, stationID string, m weather.Measurement, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[stationID]
	if !ok {
		return ErrNotFound
	}

	history := s.readings[stationID]
	var newest time.Time
	if n := len(history); n > 0 {
		newest = history[n-1].Time
	}
	if extendsHistory(newest, at) {
		history = append(history, weather.Reading{
			ID:          uuid.NewString(),
			StationID:   stationID,
			Time:        at,
			ExpireAt:    at.Add(weather.ReadingTTL),
			Measurement: m,
		})
	}
	s.readings[stationID] = sweepReadings(history, s.clock.Now())

	st.LastUpdate = at
	st.CurrentAverage = m.WindAverage
	st.CurrentGust = m.WindGust
	st.CurrentBearing = m.WindBearing
	st.CurrentTemperature = m.Temperature
	if m.HasWind() {
		st.IsOffline = false
	}
	if m.Complete() {
		st.IsError = false
	}
	return nil
}

// extendsHistory reports whether a reading for bucket at goes after the newest
// stored bucket. A zero newest means the history is empty.
func extendsHistory(newest, at time.Time) bool {
	return newest.IsZero() || at.After(newest)
}

// InsertReading stores a raw reading row without touching the snapshot.
// It exists for seeding history.
func (s *MemoryStore) InsertReading(_ context.Context, r weather.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stations[r.StationID]; !ok {
		return ErrNotFound
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ExpireAt.IsZero() {
		r.ExpireAt = r.Time.Add(weather.ReadingTTL)
	}
	history := append(s.readings[r.StationID], r)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Time.Before(history[j].Time) })
	s.readings[r.StationID] = history
	return nil
}

// RecentReadings returns up to limit unexpired readings, newest first.
func (s *MemoryStore) RecentReadings(_ context.Context, stationID string, limit int) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	history := s.readings[stationID]
	out := make([]weather.Reading, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if !history[i].ExpireAt.After(now) {
			continue
		}
		out = append(out, history[i])
	}
	return out, nil
}

// MarkOffline sets IsOffline.
func (s *MemoryStore) MarkOffline(_ context.Context, stationID string) error {
	return s.updateStation(stationID, func(st *weather.Station) { st.IsOffline = true })
}

// MarkError sets IsError.
func (s *MemoryStore) MarkError(_ context.Context, stationID string) error {
	return s.updateStation(stationID, func(st *weather.Station) { st.IsError = true })
}

// SaveSession persists adapter session state.
func (s *MemoryStore) SaveSession(_ context.Context, stationID string, session weather.SessionState) error {
	return s.updateStation(stationID, func(st *weather.Station) { st.Session = session })
}

func (s *MemoryStore) updateStation(id string, fn func(*weather.Station)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	if !ok {
		return ErrNotFound
	}
	fn(st)
	return nil
}

// ListWebcams returns copies of every webcam.
func (s *MemoryStore) ListWebcams(_ context.Context) ([]weather.Webcam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Webcam, 0, len(s.camOrder))
	for _, id := range s.camOrder {
		out = append(out, *s.webcams[id])
	}
	return out, nil
}

// Webcam returns a copy of one webcam.
func (s *MemoryStore) Webcam(_ context.Context, id string) (weather.Webcam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.webcams[id]
	if !ok {
		return weather.Webcam{}, ErrNotFound
	}
	return *cam, nil
}

// LatestImage returns the newest unexpired image for a webcam.
func (s *MemoryStore) LatestImage(_ context.Context, webcamID string) (weather.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	imgs := s.images[webcamID]
	for i := len(imgs) - 1; i >= 0; i-- {
		if imgs[i].ExpireAt.After(now) {
			return imgs[i], nil
		}
	}
	return weather.Image{}, ErrNotFound
}

// Images returns every unexpired image for a webcam, oldest first.
func (s *MemoryStore) Images(_ context.Context, webcamID string) ([]weather.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	var out []weather.Image
	for _, img := range s.images[webcamID] {
		if img.ExpireAt.After(now) {
			out = append(out, img)
		}
	}
	return out, nil
}

// AppendImage stores an image row.
func (s *MemoryStore) AppendImage(_ context.Context, img weather.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webcams[img.WebcamID]; !ok {
		return ErrNotFound
	}
	imgs := append(s.images[img.WebcamID], img)
	s.images[img.WebcamID] = sweepImages(imgs, s.clock.Now())
	return nil
}

// UpdateWebcamSnapshot sets the webcam's current image pointer.
func (s *MemoryStore) UpdateWebcamSnapshot(_ context.Context, webcamID string, lastUpdate, currentTime time.Time, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam, ok := s.webcams[webcamID]
	if !ok {
		return ErrNotFound
	}
	cam.LastUpdate = lastUpdate
	cam.CurrentTime = currentTime
	cam.CurrentURL = url
	return nil
}

// AppendOutput adds a catalogue entry, replacing any entry for the same time.
func (s *MemoryStore) AppendOutput(_ context.Context, out weather.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outputs {
		if s.outputs[i].Time.Equal(out.Time) {
			s.outputs[i] = out
			return nil
		}
	}
	s.outputs = append(s.outputs, out)
	sort.SliceStable(s.outputs, func(i, j int) bool { return s.outputs[i].Time.Before(s.outputs[j].Time) })
	return nil
}

// ListOutputs returns catalogue entries with from <= time <= to; zero bounds are open.
func (s *MemoryStore) ListOutputs(_ context.Context, from, to time.Time) ([]weather.Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		if !from.IsZero() && o.Time.Before(from) {
			continue
		}
		if !to.IsZero() && o.Time.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// FindAPIKey looks up an API key.
func (s *MemoryStore) FindAPIKey(_ context.Context, key string) (weather.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apiKeys[key]
	if !ok {
		return weather.APIKey{}, ErrNotFound
	}
	return k, nil
}

func sweepReadings(history []weather.Reading, now time.Time) []weather.Reading {
	i := 0
	for ; i < len(history); i++ {
		if history[i].ExpireAt.After(now) {
			break
		}
	}
	return history[i:]
}

func sweepImages(imgs []weather.Image, now time.Time) []weather.Image {
	i := 0
	for ; i < len(imgs); i++ {
		if imgs[i].ExpireAt.After(now) {
			break
		}
	}
	return imgs[i:]
}
