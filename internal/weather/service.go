package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/wind-harvest/internal/observability"
)

// ServiceConfig tunes a batch run.
type ServiceConfig struct {
	IntervalMinutes int
	AdapterTimeout  time.Duration
	RunTimeout      time.Duration
	Concurrency     int
}

// DefaultServiceConfig returns the 10-minute cadence defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		IntervalMinutes: DefaultIntervalMinutes,
		AdapterTimeout:  20 * time.Second,
		RunTimeout:      8 * time.Minute,
		Concurrency:     8,
	}
}

// storeWriteTimeout bounds persistence of a fetched reading, independent of the run deadline.
const storeWriteTimeout = 10 * time.Second

// BatchReport summarizes one reading run.
type BatchReport struct {
	Group     string
	Time      time.Time
	Succeeded int
	NoData    int
	Failed    int
	Skipped   int
}

type outcome string

const (
	outcomeOK      outcome = "ok"
	outcomeNoData  outcome = "nodata"
	outcomeFailed  outcome = "failed"
	outcomeSkipped outcome = "skipped"
)

// Service orchestrates reading runs: adapters, sanitizing, persistence and archival.
type Service struct {
	store    Store
	registry *Registry
	archive  ArtifactWriter
	clock    clockwork.Clock
	cfg      ServiceConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithArchive enables per-batch artifact output.
func WithArchive(w ArtifactWriter) Option {
	return func(s *Service) { s.archive = w }
}

// NewService creates a new Service.
func NewService(store Store, registry *Registry, cfg ServiceConfig, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Service{
		store:    store,
		registry: registry,
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunReadings executes one batch for a source group. Per-station failures are
// counted, never returned; only failing to load the station set is an error.
func (s *Service) RunReadings(ctx context.Context, group string) (BatchReport, error) {
	start := s.clock.Now()
	report := BatchReport{Group: group, Time: FloorTime(start, s.cfg.IntervalMinutes)}

	types, err := s.registry.GroupTypes(group)
	if err != nil {
		return report, err
	}
	stations, err := s.store.ListStations(ctx, types)
	if err != nil {
		return report, fmt.Errorf("list stations for %s: %w", group, err)
	}

	s.logger.Info("reading run started",
		zap.String("group", group),
		zap.Time("bucket", report.Time),
		zap.Int("stations", len(stations)),
	)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		records []ArchiveRecord
	)
	tally := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case outcomeOK:
			report.Succeeded++
		case outcomeNoData:
			report.NoData++
		case outcomeFailed:
			report.Failed++
		case outcomeSkipped:
			report.Skipped++
		}
		s.metrics.StationFetches.WithLabelValues(group, string(o)).Inc()
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for _, st := range stations {
		if runCtx.Err() != nil {
			tally(outcomeSkipped)
			continue
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				tally(outcomeSkipped)
				return nil
			}
			m, o := s.ingestStation(runCtx, st, report.Time, start)
			tally(o)
			if o == outcomeOK {
				mu.Lock()
				records = append(records, NewArchiveRecord(st, m, report.Time))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.archive != nil && len(records) > 0 {
		if err := s.archive.WriteBatch(ctx, group, report.Time, records); err != nil {
			s.logger.Error("write batch artifact failed", zap.String("group", group), zap.Error(err))
		}
	}

	s.metrics.RunDuration.WithLabelValues("readings").Observe(s.clock.Since(start).Seconds())
	s.logger.Info("reading run completed",
		zap.String("group", group),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("nodata", report.NoData),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// ingestStation fetches, sanitizes and stores one station's reading.
func (s *Service) ingestStation(ctx context.Context, st Station, bucket, now time.Time) (Measurement, outcome) {
	log := s.logger.With(zap.String("station", st.ID), zap.String("type", string(st.Type)))

	adapter, ok := s.registry.Reading(st.Type)
	if !ok {
		log.Warn("no adapter registered for station type")
		return Measurement{}, outcomeFailed
	}

	fc := &FetchContext{
		Now:     now,
		Session: st.Session,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	m, err := safeFetch(callCtx, adapter, st, fc)
	cancel()

	// A fetch that finished inside its own budget is kept even when the run
	// deadline expired meanwhile.
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancelWrite()

	if fc.SessionRefreshed {
		if serr := s.store.SaveSession(writeCtx, st.ID, fc.Session); serr != nil {
			log.Warn("save session failed", zap.Error(serr))
		}
	}

	if errors.Is(err, ErrNoData) {
		log.Debug("no current data")
		return Measurement{}, outcomeNoData
	}
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		return Measurement{}, outcomeFailed
	}

	m = Clip(m)
	if err := s.store.AppendReading(writeCtx, st.ID, m, bucket); err != nil {
		log.Error("store reading failed", zap.Error(err))
		return Measurement{}, outcomeFailed
	}
	return m, outcomeOK
}

// safeFetch converts adapter panics into errors so one adapter cannot abort a batch.
func safeFetch(ctx context.Context, a ReadingAdapter, st Station, fc *FetchContext) (m Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s adapter panic: %v", a.Type(), r)
		}
	}()
	return a.FetchReading(ctx, st, fc)
}
