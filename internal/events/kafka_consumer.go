package events

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cragline/service-booking/internal/application"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/platform/kafka"
)

// SessionCanceller releases the bookings of a cancelled session.
type SessionCanceller interface {
	CancelSessionBookings(ctx context.Context, sessionID, cancelledBy uuid.UUID) (int, error)
}

// SessionEventConsumer listens to scheduling events and releases bookings of
// cancelled sessions.
type SessionEventConsumer struct {
	consumer *kafka.Consumer
	service  SessionCanceller
	logger   *zap.Logger
}

// NewSessionEventConsumer creates a new SessionEventConsumer.
func NewSessionEventConsumer(
	brokers []string,
	groupID string,
	service SessionCanceller,
	logger *zap.Logger,
) *SessionEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, application.TopicSessionEvents, logger)
	return &SessionEventConsumer{
		consumer: consumer,
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming session events. This blocks until the context is cancelled.
func (c *SessionEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.HandleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *SessionEventConsumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage dispatches one raw message by CloudEvent type.
func (c *SessionEventConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from session topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case application.SessionCancelled:
		return c.handleSessionCancelled(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled session event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *SessionEventConsumer) handleSessionCancelled(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt application.SessionCancelledEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse SessionCancelledEvent data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}
	if evt.SessionID == uuid.Nil {
		c.logger.Warn("session cancelled event without session id",
			zap.String("event_id", cloudEvent.ID),
		)
		return nil
	}

	c.logger.Info("processing session cancelled event",
		zap.String("session_id", evt.SessionID.String()),
		zap.String("reason", evt.Reason),
	)

	released, err := c.service.CancelSessionBookings(ctx, evt.SessionID, evt.CancelledBy)
	if err != nil {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID.String()),
			zap.String("event_id", cloudEvent.ID),
			zap.Int("released", released),
			zap.Error(err),
		}
		// Only transient failures are retried. The rest are logged and committed.
		if bookingDomain.IsRetryable(err) || ctx.Err() != nil {
			c.logger.Warn("releasing bookings of cancelled session failed, will retry", fields...)
			return err
		}
		c.logger.Error("dropping session cancelled event after permanent failure", fields...)
		return nil
	}

	c.logger.Info("bookings released after session cancellation",
		zap.String("session_id", evt.SessionID.String()),
		zap.Int("released", released),
	)
	return nil
}
