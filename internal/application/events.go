package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cragline/service-booking/internal/platform/kafka"
)

const (
	TopicBookingEvents = "booking.events"
	TopicSessionEvents = "session.events"

	BookingCreated   = "booking.created"
	BookingCancelled = "booking.cancelled"
	SessionCancelled = "session.cancelled"

	eventSource = "service-booking"
)

// Cancellation reasons carried on BookingCancelledEvent.
const (
	ReasonUserCancelled    = "user_cancelled"
	ReasonSessionCancelled = "session_cancelled"
)

// EventPublisher delivers CloudEvents to a broker. Both the Kafka producer and
// the RabbitMQ publisher satisfy it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, string, kafka.CloudEvent) error { return nil }

// BookingCreatedEvent is published after a booking is admitted.
type BookingCreatedEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	SessionID   uuid.UUID `json:"session_id"`
	ClimberID   uuid.UUID `json:"climber_id"`
	BookedByID  uuid.UUID `json:"booked_by_id"`
	SessionDate time.Time `json:"session_date"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// BookingCancelledEvent is published after a booking releases its slot.
type BookingCancelledEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	SessionID   uuid.UUID `json:"session_id"`
	ClimberID   uuid.UUID `json:"climber_id"`
	BookedByID  uuid.UUID `json:"booked_by_id"`
	CancelledBy uuid.UUID `json:"cancelled_by"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// SessionCancelledEvent is consumed from the scheduling service.
type SessionCancelledEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	CancelledBy uuid.UUID `json:"cancelled_by"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (s *BookingService) publishEvent(ctx context.Context, topic, eventType, key string, data interface{}) {
	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := s.publisher.PublishEvent(ctx, topic, cloudEvent.WithSubject(key)); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
