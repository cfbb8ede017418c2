package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// Blobs is the blob storage the archive reads and writes.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Publisher forwards batch records to a downstream stream.
type Publisher interface {
	Publish(ctx context.Context, group string, records []weather.ArchiveRecord) error
}

// BatchKey is the blob path of one source group's batch file.
func BatchKey(at time.Time, group string) string {
	return fmt.Sprintf("processed/%d/%s.json", at.Unix(), group)
}

// OutputKey is the blob path of the merged file for one bucket.
func OutputKey(at time.Time) string {
	return fmt.Sprintf("output/%d.json", at.Unix())
}

// DailyKey is the blob path of the merged file for one UTC day.
func DailyKey(day time.Time) string {
	return "daily/" + day.UTC().Format("2006-01-02") + ".json"
}

// Writer persists per-batch artifacts and optionally publishes them.
// It implements weather.ArtifactWriter.
type Writer struct {
	blobs     Blobs
	publisher Publisher
	logger    *zap.Logger
}

// NewWriter creates a Writer. publisher may be nil.
func NewWriter(blobs Blobs, publisher Publisher, logger *zap.Logger) *Writer {
	return &Writer{blobs: blobs, publisher: publisher, logger: logger}
}

// WriteBatch stores the group's records at processed/<unix>/<group>.json.
// A publish failure is logged; the blob is the record of truth.
func (w *Writer) WriteBatch(ctx context.Context, group string, at time.Time, records []weather.ArchiveRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	key := BatchKey(at, group)
	if _, err := w.blobs.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	w.logger.Debug("batch artifact written", zap.String("key", key), zap.Int("records", len(records)))

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, group, records); err != nil {
			w.logger.Warn("publish batch failed", zap.String("group", group), zap.Error(err))
		}
	}
	return nil
}
