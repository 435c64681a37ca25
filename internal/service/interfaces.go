package service

import (
	"context"
	"time"

	"booking-service/internal/models"
)

// BookingRepository persists booking documents. Implementations return store.ErrNotFound for
// missing bookings and store.ErrConditionFailed when a conditional update's precondition no
// longer holds.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int64, error)
	ApplyTransition(ctx context.Context, id string, t models.Transition) (*models.Booking, error)
	AttachReview(ctx context.Context, id string, review models.Review) (*models.Booking, error)
	AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Booking, error)
	MarkMessagesRead(ctx context.Context, id string, reader models.PartyRef) (*models.Booking, error)
	RecordRefund(ctx context.Context, id string, payment *models.Payment, status models.RefundStatus) (*models.Booking, error)
}

// CatalogRepository reads products and destinations and folds ratings into them.
type CatalogRepository interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetDestinationByID(ctx context.Context, id int64) (*models.Destination, error)
	AddProductRating(ctx context.Context, id int64, rating int) (*models.Product, error)
	AddDestinationRating(ctx context.Context, id int64, rating int) (*models.Destination, error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// ProcessedEventStore records consumed event ids.
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Locker serializes work on one booking and claims idempotency keys.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
	ClaimIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) (owner string, claimed bool, err error)
}

// EventPublisher publishes booking domain events.
type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error
	PublishStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.BookingPaymentConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, event *models.BookingCancelledEvent) error
	PublishBookingReviewed(ctx context.Context, event *models.BookingReviewedEvent) error
	PublishBookingRefunded(ctx context.Context, event *models.BookingRefundedEvent) error
}

// RefundProvider executes refunds against the payment gateway.
type RefundProvider interface {
	Refund(ctx context.Context, transactionID string, amount int64, currency string) (refundID string, err error)
}
