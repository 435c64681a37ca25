package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundService settles refunds for cancelled bookings off the request path
type RefundService struct {
	bookings  BookingRepository
	processed ProcessedEventStore
	provider  RefundProvider
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewRefundService creates a new refund service
func NewRefundService(
	bookings BookingRepository,
	processed ProcessedEventStore,
	provider RefundProvider,
	events EventPublisher,
) *RefundService {
	return &RefundService{
		bookings:  bookings,
		processed: processed,
		provider:  provider,
		events:    events,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleBookingCancelled executes the refund computed at cancellation time. The booking
// document is authoritative; the event only identifies it. Redelivered events are skipped.
func (rs *RefundService) HandleBookingCancelled(ctx context.Context, event *models.BookingCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "RefundService.HandleBookingCancelled", event.BookingID)
	defer span.End()

	processed, err := rs.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		rs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	start := time.Now()
	defer func() {
		util.RefundProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	outcome, err := rs.settle(ctx, event.BookingID)
	if err != nil {
		util.RecordError(span, err)
		return err
	}
	util.RefundsProcessedTotal.WithLabelValues(outcome).Inc()

	if err := rs.processed.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		rs.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// settle resolves the booking's pending refund and reports the outcome label
func (rs *RefundService) settle(ctx context.Context, bookingID string) (string, error) {
	booking, err := rs.bookings.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		rs.logger.Warn("Cancelled booking no longer exists", zap.String("booking_id", bookingID))
		return "skipped", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load booking: %w", err)
	}

	c := booking.Cancellation
	if c == nil || c.RefundStatus != models.RefundPending {
		return "skipped", nil
	}

	if booking.Payment.Status != models.PaymentPaid || c.RefundAmount <= 0 {
		if err := rs.record(ctx, booking.ID, nil, models.RefundNotRequired); err != nil {
			return "", err
		}
		rs.logger.Info("Refund not required",
			zap.String("booking_id", booking.ID),
			zap.String("payment_status", string(booking.Payment.Status)),
			zap.Int64("refund_amount", c.RefundAmount))
		return string(models.RefundNotRequired), nil
	}

	refundID, err := rs.provider.Refund(ctx, booking.Payment.TransactionID, c.RefundAmount, booking.Pricing.Currency)
	if err != nil {
		rs.logger.Warn("Refund failed",
			zap.String("booking_id", booking.ID),
			zap.String("tx_id", booking.Payment.TransactionID),
			zap.Error(err))
		if err := rs.record(ctx, booking.ID, nil, models.RefundFailed); err != nil {
			return "", err
		}
		return string(models.RefundFailed), nil
	}

	now := rs.now()
	payment := booking.Payment
	payment.Status = models.PaymentPartiallyRefunded
	if c.RefundAmount >= booking.Pricing.TotalAmount {
		payment.Status = models.PaymentRefunded
	}
	payment.RefundAmount = c.RefundAmount
	payment.RefundDate = &now
	payment.RefundReason = c.Reason

	if err := rs.record(ctx, booking.ID, &payment, models.RefundProcessed); err != nil {
		return "", err
	}

	rs.logger.Info("Refund processed",
		zap.String("booking_id", booking.ID),
		zap.String("refund_id", refundID),
		zap.Int64("amount", c.RefundAmount))

	event := &models.BookingRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:     uuid.New().String(),
			EventType:   models.EventTypeBookingRefunded,
			Timestamp:   now,
			BookingID:   booking.ID,
			BookingCode: booking.Code,
		},
		Amount:   c.RefundAmount,
		RefundID: refundID,
	}
	if err := rs.events.PublishBookingRefunded(ctx, event); err != nil {
		rs.logger.Error("Failed to publish BookingRefunded event", zap.Error(err))
	}

	return string(models.RefundProcessed), nil
}

// record stores the refund result. A refund resolved concurrently is left as is.
func (rs *RefundService) record(ctx context.Context, id string, payment *models.Payment, status models.RefundStatus) error {
	_, err := rs.bookings.RecordRefund(ctx, id, payment, status)
	if errors.Is(err, store.ErrConditionFailed) {
		rs.logger.Info("Refund already resolved", zap.String("booking_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	return nil
}

// MockRefundProvider simulates a payment gateway's refund endpoint
type MockRefundProvider struct {
	successRate float64 // 0.0 - 1.0
	maxDelay    time.Duration
}

// NewMockRefundProvider creates a mock provider that succeeds with the given probability
func NewMockRefundProvider(successRate float64) *MockRefundProvider {
	return &MockRefundProvider{
		successRate: successRate,
		maxDelay:    400 * time.Millisecond,
	}
}

// Refund pretends to call the gateway
func (m *MockRefundProvider) Refund(ctx context.Context, transactionID string, amount int64, currency string) (string, error) {
	if transactionID == "" {
		return "", errors.New("refund requires a transaction id")
	}

	if m.maxDelay > 0 {
		delay := time.Duration(100+rand.Int63n(int64(m.maxDelay/time.Millisecond))) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if rand.Float64() >= m.successRate {
		return "", fmt.Errorf("mock refund declined for %s %d", currency, amount)
	}
	return fmt.Sprintf("RFD-%s", uuid.New().String()[:8]), nil
}
