package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// Catalogue records where merged outputs live.
type Catalogue interface {
	AppendOutput(ctx context.Context, out weather.Output) error
}

// Merger joins same-bucket batch files from every source group into one
// output file, and output files into daily files.
type Merger struct {
	blobs     Blobs
	catalogue Catalogue
	logger    *zap.Logger
}

// NewMerger creates a Merger.
func NewMerger(blobs Blobs, catalogue Catalogue, logger *zap.Logger) *Merger {
	return &Merger{blobs: blobs, catalogue: catalogue, logger: logger}
}

// MergeTimestamp merges processed/<unix>/*.json into output/<unix>.json and
// appends it to the catalogue. It returns weather.ErrNoData when no group wrote
// a batch for that bucket.
func (m *Merger) MergeTimestamp(ctx context.Context, at time.Time) (weather.Output, error) {
	keys, err := m.blobs.List(ctx, fmt.Sprintf("processed/%d", at.Unix()))
	if err != nil {
		return weather.Output{}, fmt.Errorf("list batches: %w", err)
	}
	if len(keys) == 0 {
		return weather.Output{}, weather.ErrNoData
	}

	records, err := m.readAll(ctx, keys)
	if err != nil {
		return weather.Output{}, err
	}
	sortRecords(records)

	url, err := m.put(ctx, OutputKey(at), records)
	if err != nil {
		return weather.Output{}, err
	}
	out := weather.Output{Time: at.UTC(), URL: url}
	if err := m.catalogue.AppendOutput(ctx, out); err != nil {
		return weather.Output{}, fmt.Errorf("append output: %w", err)
	}
	m.logger.Info("bucket merged",
		zap.Time("bucket", at),
		zap.Int("groups", len(keys)),
		zap.Int("records", len(records)),
	)
	return out, nil
}

// MergeDay merges every output file whose bucket falls on day (UTC) into
// daily/<yyyy-mm-dd>.json, sorted by type then name.
func (m *Merger) MergeDay(ctx context.Context, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	keys, err := m.blobs.List(ctx, "output")
	if err != nil {
		return "", fmt.Errorf("list outputs: %w", err)
	}
	var inDay []string
	for _, k := range keys {
		ts, ok := keyTime(k)
		if ok && !ts.Before(start) && ts.Before(end) {
			inDay = append(inDay, k)
		}
	}
	if len(inDay) == 0 {
		return "", weather.ErrNoData
	}

	records, err := m.readAll(ctx, inDay)
	if err != nil {
		return "", err
	}
	sortRecords(records)

	url, err := m.put(ctx, DailyKey(start), records)
	if err != nil {
		return "", err
	}
	m.logger.Info("day merged",
		zap.String("day", start.Format("2006-01-02")),
		zap.Int("files", len(inDay)),
		zap.Int("records", len(records)),
	)
	return url, nil
}

func (m *Merger) readAll(ctx context.Context, keys []string) ([]weather.ArchiveRecord, error) {
	var all []weather.ArchiveRecord
	for _, k := range keys {
		data, err := m.blobs.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", k, err)
		}
		var recs []weather.ArchiveRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		all = append(all, recs...)
	}
	return all, nil
}

func (m *Merger) put(ctx context.Context, key string, records []weather.ArchiveRecord) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", key, err)
	}
	url, err := m.blobs.Put(ctx, key, data, "application/json")
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return url, nil
}

func sortRecords(records []weather.ArchiveRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Timestamp < b.Timestamp
	})
}

// keyTime extracts the bucket from output/<unix>.json.
func keyTime(key string) (time.Time, bool) {
	base := strings.TrimSuffix(path.Base(key), ".json")
	unix, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}
