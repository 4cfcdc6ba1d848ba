package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cragline/service-booking/internal/platform/config"
)

const (
	StorageDriverPostgres = "postgres"
	// StorageDriverMemory keeps everything in process and starts empty. It
	// backs local runs and tests; production refuses it.
	StorageDriverMemory = "memory"

	EventBrokerKafka    = "kafka"
	EventBrokerRabbitMQ = "rabbitmq"
	EventBrokerNone     = "none"
)

// BookingPolicy holds the admission window parameters.
type BookingPolicy struct {
	Horizon            time.Duration
	CancellationCutoff time.Duration
	Location           *time.Location
}

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port           string
	AppEnv         string
	StorageDriver  string
	EventBroker    string
	DBConfig       config.DatabaseConfig
	JWTConfig      config.JWTConfig
	KafkaConfig    config.KafkaConfig
	RabbitMQConfig config.RabbitMQConfig
	RedisConfig    config.RedisConfig
	RateLimit      config.RateLimitConfig
	Policy         BookingPolicy
}

// Load reads configuration from environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("BOOKING")
	if err != nil {
		return nil, err
	}

	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("EVENT_BROKER", EventBrokerKafka)
	v.SetDefault("HORIZON_DAYS", 30)
	v.SetDefault("CANCELLATION_WINDOW_HOURS", 4)
	v.SetDefault("TIMEZONE", "UTC")

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKING_TIMEZONE: %w", err)
	}

	horizonDays := v.GetInt("HORIZON_DAYS")
	cutoffHours := v.GetInt("CANCELLATION_WINDOW_HOURS")
	if horizonDays <= 0 {
		return nil, fmt.Errorf("BOOKING_HORIZON_DAYS must be positive, got %d", horizonDays)
	}
	if cutoffHours < 0 {
		return nil, fmt.Errorf("BOOKING_CANCELLATION_WINDOW_HOURS must not be negative, got %d", cutoffHours)
	}

	cfg := &ServiceConfig{
		Port:           config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:         config.GetAppEnv(v),
		StorageDriver:  strings.ToLower(v.GetString("STORAGE_DRIVER")),
		EventBroker:    strings.ToLower(v.GetString("EVENT_BROKER")),
		DBConfig:       config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:      config.LoadJWTConfig(v),
		KafkaConfig:    config.LoadKafkaConfig(v),
		RabbitMQConfig: config.LoadRabbitMQConfig(v),
		RedisConfig:    config.LoadRedisConfig(v),
		RateLimit:      config.LoadRateLimitConfig(v),
		Policy: BookingPolicy{
			Horizon:            time.Duration(horizonDays) * 24 * time.Hour,
			CancellationCutoff: time.Duration(cutoffHours) * time.Hour,
			Location:           loc,
		},
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
	case StorageDriverMemory:
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("BOOKING_STORAGE_DRIVER %q is for local runs and tests, not production", cfg.StorageDriver)
		}
	default:
		return nil, fmt.Errorf("unknown BOOKING_STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	switch cfg.EventBroker {
	case EventBrokerKafka, EventBrokerRabbitMQ, EventBrokerNone:
	default:
		return nil, fmt.Errorf("unknown BOOKING_EVENT_BROKER %q", cfg.EventBroker)
	}

	return cfg, nil
}
