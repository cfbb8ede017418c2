package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wind-harvest/internal/weather"
)

var storeNow = time.Date(2024, 5, 1, 10, 23, 0, 0, time.UTC)

func seeded(t *testing.T) (*MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(storeNow)
	s := NewMemoryStore(clock)
	ctx := context.Background()
	require.NoError(t, s.UpsertStation(ctx, weather.Station{ID: "a", Name: "A", Type: weather.TypeHarvest, ExternalID: "1_1"}))
	require.NoError(t, s.UpsertStation(ctx, weather.Station{ID: "b", Name: "B", Type: weather.TypeWU, ExternalID: "IB"}))
	require.NoError(t, s.UpsertWebcam(ctx, weather.Webcam{ID: "c", Name: "C", Type: weather.TypeCastleMount, ExternalID: "1"}))
	return s, clock
}

func TestListStationsFiltersByType(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()

	all, err := s.ListStations(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wu, err := s.ListStations(ctx, []weather.ProviderType{weather.TypeWU})
	require.NoError(t, err)
	require.Len(t, wu, 1)
	assert.Equal(t, "b", wu[0].ID)
}

func TestAppendReadingSnapshotAndFlags(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.MarkOffline(ctx, "a"))
	require.NoError(t, s.MarkError(ctx, "a"))

	bucket := weather.FloorTime(storeNow, 10)
	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(5)}, bucket))

	st, err := s.Station(ctx, "a")
	require.NoError(t, err)
	assert.False(t, st.IsOffline, "wind clears offline")
	assert.True(t, st.IsError, "incomplete reading keeps error")

	full := weather.Measurement{
		WindAverage: weather.Float(6), WindGust: weather.Float(9),
		WindBearing: weather.Float(10), Temperature: weather.Float(4),
	}
	require.NoError(t, s.AppendReading(ctx, "a", full, bucket))
	st, err = s.Station(ctx, "a")
	require.NoError(t, err)
	assert.False(t, st.IsError)
	assert.Equal(t, 6.0, *st.CurrentAverage)

	readings, err := s.RecentReadings(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, readings, 1, "same bucket is not appended twice")

	assert.ErrorIs(t, s.AppendReading(ctx, "missing", full, bucket), ErrNotFound)
}

func TestAppendReadingIgnoresOlderBucket(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()
	bucket := weather.FloorTime(storeNow, 10)

	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(8)}, bucket))
	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(3)}, bucket.Add(-10*time.Minute)))

	readings, err := s.RecentReadings(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, bucket, readings[0].Time)
	assert.Equal(t, 8.0, *readings[0].WindAverage)

	st, err := s.Station(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3.0, *st.CurrentAverage, "snapshot takes the latest write")
}

func TestExtendsHistory(t *testing.T) {
	bucket := weather.FloorTime(storeNow, 10)
	assert.True(t, extendsHistory(time.Time{}, bucket))
	assert.True(t, extendsHistory(bucket, bucket.Add(10*time.Minute)))
	assert.False(t, extendsHistory(bucket, bucket))
	assert.False(t, extendsHistory(bucket, bucket.Add(-10*time.Minute)))
}

func TestAppendOutputReplacesSameTime(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()
	bucket := weather.FloorTime(storeNow, 10)

	require.NoError(t, s.AppendOutput(ctx, weather.Output{Time: bucket, URL: "https://files/output/first.json"}))
	require.NoError(t, s.AppendOutput(ctx, weather.Output{Time: bucket.Add(-10 * time.Minute), URL: "https://files/output/earlier.json"}))
	require.NoError(t, s.AppendOutput(ctx, weather.Output{Time: bucket, URL: "https://files/output/second.json"}))

	outs, err := s.ListOutputs(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, bucket.Add(-10*time.Minute), outs[0].Time)
	assert.Equal(t, "https://files/output/second.json", outs[1].URL)
}

func TestReadingsExpireAfterTTL(t *testing.T) {
	s, clock := seeded(t)
	ctx := context.Background()

	first := weather.FloorTime(storeNow, 10)
	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(1)}, first))
	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(2)}, first.Add(10*time.Minute)))

	rs, err := s.RecentReadings(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, first.Add(10*time.Minute), rs[0].Time, "newest first")

	clock.Advance(weather.ReadingTTL)
	rs, err = s.RecentReadings(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, 2.0, *rs[0].WindAverage)
}

func TestUpsertStationKeepsSnapshot(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.AppendReading(ctx, "a", weather.Measurement{WindAverage: weather.Float(3)}, storeNow))
	require.NoError(t, s.SaveSession(ctx, "a", weather.SessionState{Token: "t", ObtainedAt: storeNow}))

	require.NoError(t, s.UpsertStation(ctx, weather.Station{ID: "a", Name: "Renamed", Type: weather.TypeHarvest, ExternalID: "1_1"}))
	st, err := s.Station(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", st.Name)
	assert.Equal(t, 3.0, *st.CurrentAverage)
	assert.Equal(t, "t", st.Session.Token)
}

func TestImagesAndSnapshot(t *testing.T) {
	s, _ := seeded(t)
	ctx := context.Background()

	_, err := s.LatestImage(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)

	earlier := storeNow.Add(-20 * time.Minute)
	require.NoError(t, s.AppendImage(ctx, weather.Image{WebcamID: "c", Time: earlier, ExpireAt: earlier.Add(weather.ReadingTTL), URL: "u0"}))
	require.NoError(t, s.AppendImage(ctx, weather.Image{WebcamID: "c", Time: storeNow, ExpireAt: storeNow.Add(weather.ReadingTTL), URL: "u1"}))
	latest, err := s.LatestImage(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "u1", latest.URL)

	require.NoError(t, s.UpdateWebcamSnapshot(ctx, "c", storeNow, storeNow, "u1"))
	cam, err := s.Webcam(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "u1", cam.CurrentURL)

	assert.ErrorIs(t, s.AppendImage(ctx, weather.Image{WebcamID: "nope"}), ErrNotFound)
}

func TestMemoryMeter(t *testing.T) {
	m := NewMemoryMeter()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		n, err := m.Increment(ctx, "k", "2024-05")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	n, err := m.Increment(ctx, "k", "2024-06")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, "usage:k:2024-05", usageKey("k", "2024-05"))
}
