package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/wind-harvest/internal/api/http"
	"github.com/i474232898/wind-harvest/internal/archive"
	"github.com/i474232898/wind-harvest/internal/blob"
	"github.com/i474232898/wind-harvest/internal/config"
	"github.com/i474232898/wind-harvest/internal/imaging"
	"github.com/i474232898/wind-harvest/internal/notify"
	"github.com/i474232898/wind-harvest/internal/observability"
	"github.com/i474232898/wind-harvest/internal/scheduler"
	"github.com/i474232898/wind-harvest/internal/store"
	"github.com/i474232898/wind-harvest/internal/weather"
	"github.com/i474232898/wind-harvest/internal/weather/providers"
)

// dataStore is what both the memory and mongo stores provide.
type dataStore interface {
	weather.Store
	httpapi.Backend
	config.Seeder
	archive.Catalogue
}

// application holds the wired components shared by every subcommand.
type application struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	store     dataStore
	meter     httpapi.Meter
	blobs     *blob.FSStore
	scheduler *scheduler.Scheduler

	closers []func(context.Context) error
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		clock:   clockwork.NewRealClock(),
	}

	if err := a.wireStorage(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.seedCatalogue(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	registry := providers.NewRegistry(httpClient, providers.RegistryConfig{
		Credentials: providers.Credentials{
			HolfuyKey:     cfg.HolfuyKey,
			AttentisToken: cfg.AttentisToken,
			TempestToken:  cfg.TempestToken,
			WUKey:         cfg.WUKey,
		},
		SessionMaxAge:     cfg.SessionMaxAge,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, a.clock)

	var publisher archive.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := archive.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
		publisher = kp
	}
	writer := archive.NewWriter(a.blobs, publisher, logger.Named("archive"))
	merger := archive.NewMerger(a.blobs, a.store, logger.Named("archive"))

	notifier, err := a.wireNotifier(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	service := weather.NewService(a.store, registry, cfg.ServiceConfig(), logger.Named("readings"), a.metrics,
		weather.WithClock(a.clock),
		weather.WithArchive(writer),
	)
	detector := weather.NewDetector(a.store, notifier, cfg.DetectorConfig(), a.clock, logger.Named("detector"), a.metrics)
	images := weather.NewImagePipeline(a.store, registry, a.blobs, imaging.NewJPEGResizer(), cfg.ImageConfig(),
		a.clock, logger.Named("images"), a.metrics)

	a.scheduler = scheduler.New(scheduler.Jobs{
		Service:         service,
		Images:          images,
		Detector:        detector,
		Merger:          merger,
		IntervalMinutes: cfg.IntervalMinutes,
	}, scheduler.Schedule{
		Readings:   cfg.ReadingsCron,
		Images:     cfg.ImagesCron,
		Detector:   cfg.DetectorCron,
		Merge:      cfg.MergeCron,
		DailyMerge: cfg.DailyMergeCron,
	}, cfg.RunTimeout+cfg.AdapterTimeout, a.clock, logger.Named("scheduler"))

	return a, nil
}

func (a *application) wireStorage(ctx context.Context) error {
	if a.cfg.MongoURI != "" {
		ms, err := store.NewMongoStore(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase, a.logger.Named("mongo"))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, ms.Close)
		a.store = ms
	} else {
		a.logger.Warn("MONGO_URI not set; using in-memory store")
		a.store = store.NewMemoryStore(a.clock)
	}

	if a.cfg.RedisAddr != "" {
		client, err := store.NewRedisClient(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.meter = store.NewRedisMeter(client)
	} else {
		a.meter = store.NewMemoryMeter()
	}

	blobs, err := blob.NewFSStore(a.cfg.BlobDir, a.cfg.BlobBaseURL)
	if err != nil {
		return err
	}
	a.blobs = blobs
	return nil
}

func (a *application) seedCatalogue(ctx context.Context) error {
	if a.cfg.CatalogueFile == "" {
		return nil
	}
	cat, err := config.LoadCatalogue(a.cfg.CatalogueFile)
	if err != nil {
		return err
	}
	if err := cat.Seed(ctx, a.store); err != nil {
		return err
	}
	a.logger.Info("catalogue loaded",
		zap.String("file", a.cfg.CatalogueFile),
		zap.Int("stations", len(cat.Stations)),
		zap.Int("webcams", len(cat.Webcams)),
	)
	return nil
}

func (a *application) wireNotifier(ctx context.Context) (weather.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(a.logger.Named("alerts"))}
	if a.cfg.MQTTBrokerURL == "" {
		return notifiers, nil
	}

	mn := notify.NewMQTTNotifier(notify.MQTTConfig{
		BrokerURL:   a.cfg.MQTTBrokerURL,
		ClientID:    a.cfg.MQTTClientID,
		TopicPrefix: a.cfg.MQTTTopicPrefix,
	}, a.logger.Named("mqtt"))
	if err := mn.Connect(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { mn.Disconnect(); return nil })
	return append(notifiers, mn), nil
}

func (a *application) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
