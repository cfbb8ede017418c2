package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/blob"
	"github.com/i474232898/wind-harvest/internal/store"
	"github.com/i474232898/wind-harvest/internal/weather"
)

type recordingPublisher struct {
	groups  []string
	records int
}

func (p *recordingPublisher) Publish(_ context.Context, group string, records []weather.ArchiveRecord) error {
	p.groups = append(p.groups, group)
	p.records += len(records)
	return nil
}

func record(id, name string, typ weather.ProviderType, at time.Time, avg float64) weather.ArchiveRecord {
	return weather.NewArchiveRecord(
		weather.Station{ID: id, Name: name, Type: typ, Coordinates: weather.Coordinates{Lat: -45, Lon: 168.7}},
		weather.Measurement{WindAverage: weather.Float(avg)},
		at,
	)
}

func newBlobs(t *testing.T) *blob.FSStore {
	t.Helper()
	b, err := blob.NewFSStore(t.TempDir(), "https://files.example.com")
	require.NoError(t, err)
	return b
}

func TestWriteBatch_StoresAndPublishes(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	pub := &recordingPublisher{}
	w := NewWriter(blobs, pub, zap.NewNop())

	at := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	recs := []weather.ArchiveRecord{record("a", "Alpha", weather.TypeHarvest, at, 12)}
	require.NoError(t, w.WriteBatch(ctx, weather.GroupHarvest, at, recs))

	data, err := blobs.Get(ctx, BatchKey(at, weather.GroupHarvest))
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0]["id"])
	assert.Equal(t, float64(at.Unix()), got[0]["timestamp"])
	assert.Equal(t, map[string]any{"lat": -45.0, "lon": 168.7}, got[0]["coordinates"])
	assert.Equal(t, 12.0, got[0]["wind"].(map[string]any)["average"])
	assert.Nil(t, got[0]["temperature"])

	assert.Equal(t, []string{weather.GroupHarvest}, pub.groups)
	assert.Equal(t, 1, pub.records)
}

func TestMergeTimestamp_JoinsGroupsAndCatalogues(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	cat := store.NewMemoryStore(nil)
	w := NewWriter(blobs, nil, zap.NewNop())
	m := NewMerger(blobs, cat, zap.NewNop())

	at := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	require.NoError(t, w.WriteBatch(ctx, weather.GroupRest, at, []weather.ArchiveRecord{
		record("w1", "Zeta", weather.TypeWU, at, 5),
		record("h1", "Beta", weather.TypeHolfuy, at, 7),
	}))
	require.NoError(t, w.WriteBatch(ctx, weather.GroupHarvest, at, []weather.ArchiveRecord{
		record("a", "Alpha", weather.TypeHarvest, at, 12),
	}))

	out, err := m.MergeTimestamp(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/output/"+"1714558800.json", out.URL)

	data, err := blobs.Get(ctx, OutputKey(at))
	require.NoError(t, err)
	var merged []weather.ArchiveRecord
	require.NoError(t, json.Unmarshal(data, &merged))
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"a", "h1", "w1"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})

	outputs, err := cat.ListOutputs(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].Time.Equal(at))
}

func TestMergeTimestamp_NothingToMerge(t *testing.T) {
	m := NewMerger(newBlobs(t), store.NewMemoryStore(nil), zap.NewNop())
	_, err := m.MergeTimestamp(context.Background(), time.Unix(1714558800, 0))
	assert.ErrorIs(t, err, weather.ErrNoData)
}

func TestMergeDay_SortsByTypeThenName(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	w := NewWriter(blobs, nil, zap.NewNop())
	m := NewMerger(blobs, store.NewMemoryStore(nil), zap.NewNop())

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	first := day.Add(10 * time.Minute)
	second := day.Add(20 * time.Minute)
	nextDay := day.Add(24 * time.Hour)

	for _, at := range []time.Time{first, second, nextDay} {
		require.NoError(t, w.WriteBatch(ctx, weather.GroupAll, at, []weather.ArchiveRecord{
			record("m1", "Mount", weather.TypeMetservice, at, 3),
			record("a", "Alpha", weather.TypeHarvest, at, 12),
		}))
		_, err := m.MergeTimestamp(ctx, at)
		require.NoError(t, err)
	}

	url, err := m.MergeDay(ctx, day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/daily/2024-05-01.json", url)

	data, err := blobs.Get(ctx, DailyKey(day))
	require.NoError(t, err)
	var merged []weather.ArchiveRecord
	require.NoError(t, json.Unmarshal(data, &merged))
	require.Len(t, merged, 4)
	assert.Equal(t, weather.TypeHarvest, merged[0].Type)
	assert.Equal(t, first.Unix(), merged[0].Timestamp)
	assert.Equal(t, weather.TypeHarvest, merged[1].Type)
	assert.Equal(t, second.Unix(), merged[1].Timestamp)
	assert.Equal(t, weather.TypeMetservice, merged[2].Type)
	assert.Equal(t, weather.TypeMetservice, merged[3].Type)
}

func TestRecordToMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)
	msg, err := recordToMessage(weather.GroupHarvest, record("a", "Alpha", weather.TypeHarvest, at, 12))
	require.NoError(t, err)

	assert.Equal(t, []byte("a"), msg.Key)
	assert.Contains(t, string(msg.Value), `"timestamp":1714558800`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "group", msg.Headers[0].Key)
	assert.Equal(t, []byte("harvest"), msg.Headers[0].Value)
	assert.Equal(t, []byte("harvest"), msg.Headers[1].Value)
}
