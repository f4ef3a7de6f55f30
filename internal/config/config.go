package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the bidding engine.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers       []string
	RideEventsTopic    string
	PresenceTopic      string
	PresenceGroup      string

	PGDSN string

	StorageWriteTimeout  time.Duration
	StorageWriteAttempts int
	StorageRetryDelay    time.Duration

	ReconcileInterval time.Duration
	ReconcileSample   int

	OSRMEndpoint    string
	DefaultSpeedMps float64

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:             ":8080",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		RedisGeoKey:          "drivers_geo",
		RideEventsTopic:      "ride-events",
		PresenceTopic:        "driver-presence",
		PresenceGroup:        "ride-bidding-presence",
		StorageWriteTimeout:  2 * time.Second,
		StorageWriteAttempts: 3,
		StorageRetryDelay:    100 * time.Millisecond,
		ReconcileInterval:    30 * time.Second,
		ReconcileSample:      64,
		DefaultSpeedMps:      10,
		LogLevel:             "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.RideEventsTopic, "KAFKA_RIDE_EVENTS_TOPIC")
	setStringFromEnv(&cfg.PresenceTopic, "KAFKA_PRESENCE_TOPIC")
	setStringFromEnv(&cfg.PresenceGroup, "KAFKA_PRESENCE_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.StorageWriteTimeout, "STORAGE_WRITE_TIMEOUT", &errs)
	setIntFromEnv(&cfg.StorageWriteAttempts, "STORAGE_WRITE_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.StorageRetryDelay, "STORAGE_RETRY_DELAY", &errs)

	setDurationFromEnv(&cfg.ReconcileInterval, "RECONCILE_INTERVAL", &errs)
	setIntFromEnv(&cfg.ReconcileSample, "RECONCILE_SAMPLE", &errs)

	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setFloatFromEnv(&cfg.DefaultSpeedMps, "ETA_DEFAULT_SPEED_MPS", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.StorageWriteAttempts <= 0 {
		errs = append(errs, fmt.Errorf("STORAGE_WRITE_ATTEMPTS must be > 0"))
	}
	if cfg.ReconcileSample <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_SAMPLE must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
