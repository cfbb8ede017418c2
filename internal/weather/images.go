package weather

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/wind-harvest/internal/observability"
)

// ImageConfig tunes the webcam pipeline.
type ImageConfig struct {
	TargetWidth    int
	AdapterTimeout time.Duration
	Concurrency    int
}

// ImageReport summarizes one webcam run.
type ImageReport struct {
	Stored    int
	Duplicate int
	Unchanged int
	NoData    int
	Failed    int
}

// ImagePipeline fetches, deduplicates, downscales and stores webcam frames.
type ImagePipeline struct {
	store    Store
	registry *Registry
	blobs    BlobStore
	resizer  ImageResizer
	clock    clockwork.Clock
	cfg      ImageConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewImagePipeline creates an ImagePipeline.
func NewImagePipeline(store Store, registry *Registry, blobs BlobStore, resizer ImageResizer, cfg ImageConfig, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *ImagePipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &ImagePipeline{
		store:    store,
		registry: registry,
		blobs:    blobs,
		resizer:  resizer,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run processes every webcam once.
func (p *ImagePipeline) Run(ctx context.Context) (ImageReport, error) {
	var report ImageReport
	start := p.clock.Now()

	cams, err := p.store.ListWebcams(ctx)
	if err != nil {
		return report, fmt.Errorf("list webcams: %w", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for _, cam := range cams {
		g.Go(func() error {
			o := p.processWebcam(ctx, cam)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case "stored":
				report.Stored++
			case "duplicate":
				report.Duplicate++
			case "unchanged":
				report.Unchanged++
			case "nodata":
				report.NoData++
			default:
				report.Failed++
			}
			p.metrics.Images.WithLabelValues(o).Inc()
			return nil
		})
	}
	_ = g.Wait()

	p.metrics.RunDuration.WithLabelValues("images").Observe(p.clock.Since(start).Seconds())
	p.logger.Info("webcam run completed",
		zap.Int("stored", report.Stored),
		zap.Int("duplicate", report.Duplicate),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (p *ImagePipeline) processWebcam(ctx context.Context, cam Webcam) string {
	log := p.logger.With(zap.String("webcam", cam.ID), zap.String("type", string(cam.Type)))

	adapter, ok := p.registry.Image(cam.Type)
	if !ok {
		log.Warn("no image adapter registered")
		return "failed"
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.AdapterTimeout)
	img, err := safeFetchImage(callCtx, adapter, cam)
	cancel()
	if errors.Is(err, ErrNoData) {
		log.Debug("no new image")
		return "nodata"
	}
	if err != nil {
		log.Warn("fetch image failed", zap.Error(err))
		return "failed"
	}

	if !img.CapturedAt.After(cam.LastUpdate) {
		return "unchanged"
	}

	var hash string
	size := len(img.Data)
	if img.HashDependent {
		hash = ContentHash(img.Data)
		latest, err := p.store.LatestImage(ctx, cam.ID)
		switch {
		case err == nil && latest.Hash == hash && latest.Size == size:
			return "duplicate"
		case err != nil && !errors.Is(err, ErrNotFound):
			log.Warn("load latest image failed", zap.Error(err))
			return "failed"
		}
	}

	data, err := p.resizer.Resize(img.Data, p.cfg.TargetWidth)
	if err != nil {
		log.Warn("resize image failed", zap.Error(err))
		return "failed"
	}

	key := ImageKey(cam, img.CapturedAt)
	url, err := p.blobs.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		log.Error("store image blob failed", zap.Error(err))
		return "failed"
	}

	row := Image{
		ID:       uuid.NewString(),
		WebcamID: cam.ID,
		Time:     img.CapturedAt,
		ExpireAt: img.CapturedAt.Add(ReadingTTL),
		URL:      url,
	}
	if img.HashDependent {
		row.Hash = hash
		row.Size = size
	}
	if err := p.store.AppendImage(ctx, row); err != nil {
		log.Error("store image failed", zap.Error(err))
		return "failed"
	}
	if err := p.store.UpdateWebcamSnapshot(ctx, cam.ID, p.clock.Now(), img.CapturedAt, url); err != nil {
		log.Error("update webcam snapshot failed", zap.Error(err))
		return "failed"
	}
	return "stored"
}

func safeFetchImage(ctx context.Context, a ImageAdapter, cam Webcam) (img CapturedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s image adapter panic: %v", a.Type(), r)
		}
	}()
	return a.FetchImage(ctx, cam)
}

// ContentHash returns the hex xxhash64 digest of data.
func ContentHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// ImageKey is the blob path for a frame: cams/<type>/<webcam>/<unix>.jpg.
func ImageKey(cam Webcam, capturedAt time.Time) string {
	return fmt.Sprintf("cams/%s/%s/%d.jpg", cam.Type, cam.ID, capturedAt.Unix())
}
