package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/wind-harvest/internal/weather"
)

var validate = validator.New()

type AppConfig struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	// Batch runs.
	IntervalMinutes  int           `validate:"min=1,max=60"`
	AdapterTimeout   time.Duration `validate:"gt=0"`
	RunTimeout       time.Duration `validate:"gt=0"`
	BatchConcurrency int           `validate:"min=1"`
	HTTPTimeout      time.Duration `validate:"gt=0"`
	SessionMaxAge    time.Duration `validate:"gt=0"`

	// RequestsPerSecond paces each provider; 0 disables pacing.
	RequestsPerSecond float64 `validate:"gte=0"`

	// Offline detection.
	StaleAfter          time.Duration `validate:"gt=0"`
	AlertGroupThreshold int           `validate:"min=0"`
	AlwaysNotifyTypes   []weather.ProviderType

	// Webcams.
	ImageTargetWidth int `validate:"min=1"`
	ImageConcurrency int `validate:"min=1"`

	// Schedules (cron expressions, UTC).
	ReadingsCron   string `validate:"required"`
	ImagesCron     string `validate:"required"`
	DetectorCron   string `validate:"required"`
	MergeCron      string `validate:"required"`
	DailyMergeCron string `validate:"required"`

	// Provider credentials.
	HolfuyKey     string
	AttentisToken string
	TempestToken  string
	WUKey         string

	// Persistence. An empty MongoURI selects the in-memory store.
	MongoURI      string
	MongoDatabase string `validate:"required"`

	// API usage metering. An empty RedisAddr selects the in-memory meter.
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// Archival artifacts.
	BlobDir      string `validate:"required"`
	BlobBaseURL  string `validate:"required,url"`
	KafkaBrokers []string
	KafkaTopic   string `validate:"required_with=KafkaBrokers"`

	// Alert publishing. An empty MQTTBrokerURL logs alerts only.
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string

	// CatalogueFile seeds stations, webcams and API keys at startup.
	CatalogueFile string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:      getenvDefault("PORT", "8080"),
		LogLevel:  strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenvDefault("LOG_FORMAT", "json")),

		IntervalMinutes:     getenvInt("INTERVAL_MINUTES", weather.DefaultIntervalMinutes),
		BatchConcurrency:    getenvInt("BATCH_CONCURRENCY", 8),
		AlertGroupThreshold: getenvInt("ALERT_GROUP_THRESHOLD", 2),
		ImageTargetWidth:    getenvInt("IMAGE_TARGET_WIDTH", 600),
		ImageConcurrency:    getenvInt("IMAGE_CONCURRENCY", 4),

		ReadingsCron:   getenvDefault("READINGS_CRON", "*/10 * * * *"),
		ImagesCron:     getenvDefault("IMAGES_CRON", "*/10 * * * *"),
		DetectorCron:   getenvDefault("DETECTOR_CRON", "0 */6 * * *"),
		MergeCron:      getenvDefault("MERGE_CRON", "5-59/10 * * * *"),
		DailyMergeCron: getenvDefault("DAILY_MERGE_CRON", "30 0 * * *"),

		HolfuyKey:     os.Getenv("HOLFUY_API_KEY"),
		AttentisToken: os.Getenv("ATTENTIS_TOKEN"),
		TempestToken:  os.Getenv("TEMPEST_TOKEN"),
		WUKey:         os.Getenv("WU_API_KEY"),

		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getenvDefault("MONGO_DATABASE", "wind_harvest"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		BlobDir:      getenvDefault("BLOB_DIR", "./data"),
		BlobBaseURL:  getenvDefault("BLOB_BASE_URL", "http://localhost:8080/files"),
		KafkaBrokers: getenvList("KAFKA_BROKERS"),
		KafkaTopic:   getenvDefault("KAFKA_TOPIC", "wind-readings"),

		MQTTBrokerURL:   os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:    getenvDefault("MQTT_CLIENT_ID", "wind-harvest"),
		MQTTTopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "wind-harvest/alerts"),

		CatalogueFile: os.Getenv("CATALOGUE_FILE"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ADAPTER_TIMEOUT", "20s", &cfg.AdapterTimeout},
		{"RUN_TIMEOUT", "8m", &cfg.RunTimeout},
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"SESSION_MAX_AGE", "6h", &cfg.SessionMaxAge},
		{"STALE_AFTER", "20m", &cfg.StaleAfter},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	rps, err := strconv.ParseFloat(getenvDefault("REQUESTS_PER_SECOND", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUESTS_PER_SECOND: %w", err)
	}
	cfg.RequestsPerSecond = rps

	for _, t := range getenvList("ALWAYS_NOTIFY_TYPES") {
		cfg.AlwaysNotifyTypes = append(cfg.AlwaysNotifyTypes, weather.ProviderType(t))
	}
	if _, ok := os.LookupEnv("ALWAYS_NOTIFY_TYPES"); !ok {
		cfg.AlwaysNotifyTypes = weather.DefaultDetectorConfig().AlwaysNotify
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ServiceConfig returns the batch orchestrator settings.
func (c *AppConfig) ServiceConfig() weather.ServiceConfig {
	return weather.ServiceConfig{
		IntervalMinutes: c.IntervalMinutes,
		AdapterTimeout:  c.AdapterTimeout,
		RunTimeout:      c.RunTimeout,
		Concurrency:     c.BatchConcurrency,
	}
}

// DetectorConfig returns the offline detector settings. The window always
// covers six hours of buckets.
func (c *AppConfig) DetectorConfig() weather.DetectorConfig {
	return weather.DetectorConfig{
		Window:         6 * 60 / c.IntervalMinutes,
		StaleAfter:     c.StaleAfter,
		GroupThreshold: c.AlertGroupThreshold,
		AlwaysNotify:   c.AlwaysNotifyTypes,
	}
}

// ImageConfig returns the webcam pipeline settings.
func (c *AppConfig) ImageConfig() weather.ImageConfig {
	return weather.ImageConfig{
		TargetWidth:    c.ImageTargetWidth,
		AdapterTimeout: c.AdapterTimeout,
		Concurrency:    c.ImageConcurrency,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

// getenvList splits a comma-separated variable, dropping blanks.
func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
