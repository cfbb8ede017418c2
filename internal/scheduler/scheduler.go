package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/archive"
	"github.com/i474232898/wind-harvest/internal/weather"
)

// Task names accepted by RunOnce.
const (
	TaskImages     = "images"
	TaskDetector   = "detector"
	TaskMerge      = "merge"
	TaskDailyMerge = "merge:daily"
)

// ReadingsTask is the task name for a source group's reading run.
func ReadingsTask(group string) string {
	return "readings:" + group
}

// Jobs are the components the scheduler drives.
type Jobs struct {
	Service         *weather.Service
	Images          *weather.ImagePipeline
	Detector        *weather.Detector
	Merger          *archive.Merger
	IntervalMinutes int
}

// Schedule holds one cron expression per job kind.
type Schedule struct {
	Readings   string
	Images     string
	Detector   string
	Merge      string
	DailyMerge string
}

type task struct {
	cron string
	run  func(ctx context.Context) error
}

// Scheduler runs ingestion jobs on cron schedules. A job never overlaps itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
	tasks     map[string]task
	timeout   time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
}

// New creates a new Scheduler. timeout bounds every job run.
func New(jobs Jobs, sched Schedule, timeout time.Duration, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		tasks:     make(map[string]task),
		timeout:   timeout,
		clock:     clock,
		logger:    logger,
	}
	s.scheduler.SingletonModeAll()

	for _, group := range []string{weather.GroupHarvest, weather.GroupMetservice, weather.GroupRest} {
		s.tasks[ReadingsTask(group)] = task{cron: sched.Readings, run: func(ctx context.Context) error {
			_, err := jobs.Service.RunReadings(ctx, group)
			return err
		}}
	}
	// All groups in one run; one-shot only.
	s.tasks[ReadingsTask(weather.GroupAll)] = task{run: func(ctx context.Context) error {
		_, err := jobs.Service.RunReadings(ctx, weather.GroupAll)
		return err
	}}

	s.tasks[TaskImages] = task{cron: sched.Images, run: func(ctx context.Context) error {
		_, err := jobs.Images.Run(ctx)
		return err
	}}
	s.tasks[TaskDetector] = task{cron: sched.Detector, run: func(ctx context.Context) error {
		_, err := jobs.Detector.Run(ctx)
		return err
	}}
	s.tasks[TaskMerge] = task{cron: sched.Merge, run: func(ctx context.Context) error {
		bucket := settledBucket(s.clock.Now(), jobs.IntervalMinutes)
		_, err := jobs.Merger.MergeTimestamp(ctx, bucket)
		if errors.Is(err, weather.ErrNoData) {
			s.logger.Info("nothing to merge", zap.Time("bucket", bucket))
			return nil
		}
		return err
	}}
	s.tasks[TaskDailyMerge] = task{cron: sched.DailyMerge, run: func(ctx context.Context) error {
		yesterday := s.clock.Now().UTC().AddDate(0, 0, -1)
		_, err := jobs.Merger.MergeDay(ctx, yesterday)
		if errors.Is(err, weather.ErrNoData) {
			s.logger.Info("nothing to merge for day", zap.String("day", yesterday.Format("2006-01-02")))
			return nil
		}
		return err
	}}
	return s
}

// settledBucket returns the bucket before the one containing now. Every reading
// run for it has started and, within RunTimeout, finished by the merge tick.
func settledBucket(now time.Time, intervalMinutes int) time.Time {
	current := weather.FloorTime(now, intervalMinutes)
	return weather.FloorTime(current.Add(-time.Second), intervalMinutes)
}

// Tasks lists the task names, sorted.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce executes one task synchronously.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return s.execute(ctx, name, t)
}

// Start schedules every task that has a cron expression and starts the
// underlying scheduler.
func (s *Scheduler) Start() error {
	for _, name := range s.Tasks() {
		t := s.tasks[name]
		if t.cron == "" {
			continue
		}
		_, err := s.scheduler.Cron(t.cron).Tag(name).Do(func() {
			_ = s.execute(context.Background(), name, t)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("job scheduled", zap.String("task", name), zap.String("cron", t.cron))
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) execute(ctx context.Context, name string, t task) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	err := t.run(ctx)
	if err != nil {
		s.logger.Error("job failed", zap.String("task", name), zap.Error(err))
		return err
	}
	s.logger.Debug("job finished", zap.String("task", name), zap.Duration("took", s.clock.Since(start)))
	return nil
}
