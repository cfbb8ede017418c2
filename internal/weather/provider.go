package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData is returned by adapters when the provider answered but has no current observation.
	ErrNoData = errors.New("no data")

	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
)

// FetchContext carries provider-specific state into a single adapter call.
type FetchContext struct {
	// Now is the batch wall-clock time.
	Now time.Time

	// Session is the stored session for two-step adapters. Adapters that
	// re-authenticate replace it and set SessionRefreshed.
	Session          SessionState
	SessionRefreshed bool
}

// ReadingAdapter abstracts a wind observation source.
type ReadingAdapter interface {
	Type() ProviderType
	FetchReading(ctx context.Context, st Station, fc *FetchContext) (Measurement, error)
}

// ImageAdapter abstracts a webcam image source.
type ImageAdapter interface {
	Type() ProviderType
	FetchImage(ctx context.Context, cam Webcam) (CapturedImage, error)
}

// Store is the persistence contract for stations, readings, webcams and images.
type Store interface {
	// ListStations returns stations whose type is in types; nil types means all.
	ListStations(ctx context.Context, types []ProviderType) ([]Station, error)

	// AppendReading stores a reading at bucket time at (expiring at+ReadingTTL) and
	// refreshes the station snapshot, clearing IsOffline when wind is present and
	// IsError when the measurement is complete.
	AppendReading(ctx context.Context, stationID string, m Measurement, at time.Time) error

	// RecentReadings returns up to limit readings, newest first.
	RecentReadings(ctx context.Context, stationID string, limit int) ([]Reading, error)

	MarkOffline(ctx context.Context, stationID string) error
	MarkError(ctx context.Context, stationID string) error
	SaveSession(ctx context.Context, stationID string, session SessionState) error

	ListWebcams(ctx context.Context) ([]Webcam, error)
	// LatestImage returns ErrNotFound when the webcam has no stored image.
	LatestImage(ctx context.Context, webcamID string) (Image, error)
	AppendImage(ctx context.Context, img Image) error
	UpdateWebcamSnapshot(ctx context.Context, webcamID string, lastUpdate, currentTime time.Time, url string) error
}

// ArtifactWriter persists the per-batch archival artifact.
type ArtifactWriter interface {
	WriteBatch(ctx context.Context, group string, at time.Time, records []ArchiveRecord) error
}

// BlobStore stores binary objects and returns a retrievable reference.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ImageResizer downscales encoded images.
type ImageResizer interface {
	Resize(data []byte, width int) ([]byte, error)
}

// Notifier delivers a group of alerts for one provider type.
type Notifier interface {
	Notify(ctx context.Context, providerType ProviderType, alerts []Alert) error
}
