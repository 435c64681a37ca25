package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing booking domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func bookingKey(code string) string {
	return fmt.Sprintf("booking-%s", code)
}

// PublishBookingCreated publishes BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// PublishStatusChanged publishes BookingStatusChanged event
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// PublishPaymentConfirmed publishes BookingPaymentConfirmed event
func (ep *EventPublisher) PublishPaymentConfirmed(ctx context.Context, event *models.BookingPaymentConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// PublishBookingCancelled publishes BookingCancelled event
func (ep *EventPublisher) PublishBookingCancelled(ctx context.Context, event *models.BookingCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// PublishBookingReviewed publishes BookingReviewed event
func (ep *EventPublisher) PublishBookingReviewed(ctx context.Context, event *models.BookingReviewedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// PublishBookingRefunded publishes BookingRefunded event
func (ep *EventPublisher) PublishBookingRefunded(ctx context.Context, event *models.BookingRefundedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingCode), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBookingCancelled func(context.Context, *models.BookingCancelledEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBookingCancelled registers a handler for BookingCancelled events
func (eh *EventHandler) OnBookingCancelled(handler func(context.Context, *models.BookingCancelledEvent) error) {
	eh.onBookingCancelled = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without a handler are
// acknowledged and dropped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBookingCancelled:
		if eh.onBookingCancelled != nil {
			var event models.BookingCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingCancelled event: %w", err)
			}
			return eh.onBookingCancelled(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
