package weather

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/observability"
)

// DetectorConfig tunes offline detection.
type DetectorConfig struct {
	// Window is the number of most recent readings inspected (six hours of buckets).
	Window int
	// StaleAfter is how old the newest reading may be before the feed counts as stopped.
	StaleAfter time.Duration
	// GroupThreshold is the number of newly offline stations a provider must exceed
	// before it is notified.
	GroupThreshold int
	// AlwaysNotify lists providers notified even for a single offline station.
	AlwaysNotify []ProviderType
}

// DefaultDetectorConfig returns the six-hour window at a 10 minute cadence.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:         6 * 60 / DefaultIntervalMinutes,
		StaleAfter:     20 * time.Minute,
		GroupThreshold: 2,
		AlwaysNotify:   []ProviderType{TypeAttentis, TypeWOW, TypeTempest, TypeWU},
	}
}

// Classification is the health verdict for one station's window.
type Classification struct {
	DataStale     bool
	WindAbsent    bool
	BearingAbsent bool
	TempAbsent    bool
}

// Offline reports whether the station should be flagged offline.
func (c Classification) Offline() bool {
	return c.DataStale || c.WindAbsent
}

// Errored reports whether the station should be flagged in error.
func (c Classification) Errored() bool {
	return c.DataStale || c.WindAbsent || c.BearingAbsent || c.TempAbsent
}

// Classify inspects a non-empty window (newest first) at now.
func Classify(window []Reading, now time.Time, staleAfter time.Duration) Classification {
	var c Classification
	if len(window) == 0 {
		return c
	}

	newest := window[0].Time
	for _, r := range window[1:] {
		if r.Time.After(newest) {
			newest = r.Time
		}
	}
	c.DataStale = now.Sub(newest) > staleAfter

	windAbsent, bearingAbsent, tempAbsent := true, true, true
	for _, r := range window {
		if r.HasWind() {
			windAbsent = false
		}
		if r.WindBearing != nil {
			bearingAbsent = false
		}
		if r.Temperature != nil {
			tempAbsent = false
		}
	}
	c.WindAbsent = !c.DataStale && windAbsent
	c.BearingAbsent = bearingAbsent
	c.TempAbsent = tempAbsent
	return c
}

// DetectorReport summarizes one detector run.
type DetectorReport struct {
	Checked       int
	Skipped       int
	NewlyOffline  int
	NewlyErrored  int
	Notifications int
}

// Detector flags stations whose feeds have gone silent and raises grouped alerts.
type Detector struct {
	store    Store
	notifier Notifier
	clock    clockwork.Clock
	cfg      DetectorConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewDetector creates a Detector. notifier may be nil.
func NewDetector(store Store, notifier Notifier, cfg DetectorConfig, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics) *Detector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Detector{
		store:    store,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run evaluates every station once.
func (d *Detector) Run(ctx context.Context) (DetectorReport, error) {
	var report DetectorReport
	start := d.clock.Now()

	stations, err := d.store.ListStations(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("list stations: %w", err)
	}

	var alerts []Alert
	for _, st := range stations {
		if ctx.Err() != nil {
			break
		}
		window, err := d.store.RecentReadings(ctx, st.ID, d.cfg.Window)
		if err != nil {
			d.logger.Warn("load readings failed", zap.String("station", st.ID), zap.Error(err))
			continue
		}
		if len(window) == 0 {
			report.Skipped++
			continue
		}
		report.Checked++

		c := Classify(window, start, d.cfg.StaleAfter)

		if c.Offline() && !st.IsOffline {
			if err := d.store.MarkOffline(ctx, st.ID); err != nil {
				d.logger.Error("mark offline failed", zap.String("station", st.ID), zap.Error(err))
			} else {
				report.NewlyOffline++
				d.metrics.FlagsRaised.WithLabelValues("offline").Inc()
				alerts = append(alerts, Alert{
					Type:    st.Type,
					Message: fmt.Sprintf("%s (%s) is offline: %s", st.Name, st.ID, reason(c)),
				})
			}
		}
		if c.Errored() && !st.IsError {
			if err := d.store.MarkError(ctx, st.ID); err != nil {
				d.logger.Error("mark error failed", zap.String("station", st.ID), zap.Error(err))
			} else {
				report.NewlyErrored++
				d.metrics.FlagsRaised.WithLabelValues("error").Inc()
			}
		}
	}

	groups := GroupAlerts(alerts, d.cfg.GroupThreshold, d.cfg.AlwaysNotify)
	for _, t := range sortedTypes(groups) {
		group := groups[t]
		d.logger.Warn("stations offline",
			zap.String("type", string(t)),
			zap.Int("count", len(group)),
		)
		d.metrics.AlertsSent.WithLabelValues(string(t)).Inc()
		report.Notifications++
		if d.notifier == nil {
			continue
		}
		if err := d.notifier.Notify(ctx, t, group); err != nil {
			d.logger.Error("notify failed", zap.String("type", string(t)), zap.Error(err))
		}
	}

	d.metrics.RunDuration.WithLabelValues("detector").Observe(d.clock.Since(start).Seconds())
	d.logger.Info("offline detection completed",
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Int("offline", report.NewlyOffline),
		zap.Int("error", report.NewlyErrored),
	)
	return report, nil
}

// GroupAlerts groups alerts by provider and keeps only the groups that should be
// notified: more than threshold alerts, or a provider on the always-notify list.
func GroupAlerts(alerts []Alert, threshold int, always []ProviderType) map[ProviderType][]Alert {
	byType := make(map[ProviderType][]Alert)
	for _, a := range alerts {
		byType[a.Type] = append(byType[a.Type], a)
	}

	allow := make(map[ProviderType]bool, len(always))
	for _, t := range always {
		allow[t] = true
	}

	for t, group := range byType {
		if len(group) > threshold || allow[t] {
			continue
		}
		delete(byType, t)
	}
	return byType
}

func sortedTypes(groups map[ProviderType][]Alert) []ProviderType {
	types := make([]ProviderType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func reason(c Classification) string {
	if c.DataStale {
		return "no recent readings"
	}
	return "no wind data"
}
