package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cragline/service-booking/internal/application"
	"github.com/cragline/service-booking/internal/config"
	"github.com/cragline/service-booking/internal/domain/access"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
	"github.com/cragline/service-booking/internal/platform/database"
	"github.com/cragline/service-booking/internal/platform/kafka"
	"github.com/cragline/service-booking/internal/platform/rabbitmq"
	"github.com/cragline/service-booking/internal/repository"
	"github.com/cragline/service-booking/internal/repository/memory"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg     *config.ServiceConfig
	log     *zap.Logger
	db      *gorm.DB
	service *application.BookingService
	redis   *redis.Client

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close resource", zap.Error(err))
		}
	}
}

func newApp(cfg *config.ServiceConfig, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var (
		repo     bookingDomain.BookingRepository
		ledger   bookingDomain.CapacityLedger
		sessions session.Registry
		links    access.LinkFinder
	)

	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		log.Warn("using in-memory storage for local runs only, stores start empty and are lost on restart",
			zap.Duration("ledger_idle_timeout", memory.DefaultIdleTimeout),
		)
		store := memory.NewBookingStore()
		sessionStore := memory.NewSessionStore()
		memLedger := memory.NewLedger(sessionStore, store)
		a.closers = append(a.closers, func() error { memLedger.Close(); return nil })
		repo, ledger, sessions, links = store, memLedger, sessionStore, memory.NewLinkStore()

	default:
		db, err := database.Connect(cfg.DBConfig, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		repo = repository.NewGormBookingRepository(db)
		ledger = repository.NewGormCapacityLedger(db)
		sessions = repository.NewGormSessionRepository(db)
		links = repository.NewGormLinkRepository(db)
	}

	publisher, err := a.newPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	policy := bookingDomain.NewWindowPolicy(cfg.Policy.Horizon, cfg.Policy.CancellationCutoff)
	a.service = application.NewBookingService(
		repo,
		ledger,
		sessions,
		access.NewResolver(links),
		policy,
		publisher,
		log,
		application.WithLocation(cfg.Policy.Location),
	)

	if cfg.RedisConfig.Addr != "" && cfg.RateLimit.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
	}

	return a, nil
}

func (a *app) newPublisher() (application.EventPublisher, error) {
	switch a.cfg.EventBroker {
	case config.EventBrokerKafka:
		producer := kafka.NewProducer(a.cfg.KafkaConfig.Brokers, a.log)
		a.closers = append(a.closers, producer.Close)
		return producer, nil
	case config.EventBrokerRabbitMQ:
		publisher, err := rabbitmq.NewPublisher(a.cfg.RabbitMQConfig.URL, a.cfg.RabbitMQConfig.Exchange, a.log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		return publisher, nil
	default:
		a.log.Info("event publishing disabled")
		return application.NopPublisher{}, nil
	}
}
