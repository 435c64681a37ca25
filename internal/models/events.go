package models

import "time"

// Event types
const (
	EventTypeBookingCreated          = "BOOKING_CREATED"
	EventTypeBookingStatusChanged    = "BOOKING_STATUS_CHANGED"
	EventTypeBookingPaymentConfirmed = "BOOKING_PAYMENT_CONFIRMED"
	EventTypeBookingCancelled        = "BOOKING_CANCELLED"
	EventTypeBookingReviewed         = "BOOKING_REVIEWED"
	EventTypeBookingRefunded         = "BOOKING_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	BookingID   string    `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
}

// BookingCreatedEvent published when a tourist creates a booking
type BookingCreatedEvent struct {
	BaseEvent
	Tourist     PartyRef `json:"tourist"`
	Seller      PartyRef `json:"seller"`
	ProductID   int64    `json:"product_id"`
	TotalAmount int64    `json:"total_amount"`
	Currency    string   `json:"currency"`
}

// BookingStatusChangedEvent published on every seller/admin transition
type BookingStatusChangedEvent struct {
	BaseEvent
	From      BookingStatus `json:"from"`
	To        BookingStatus `json:"to"`
	UpdatedBy PartyRef      `json:"updated_by"`
}

// BookingPaymentConfirmedEvent published when the tourist confirms payment
type BookingPaymentConfirmedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
}

// BookingCancelledEvent is consumed by the refund worker
type BookingCancelledEvent struct {
	BaseEvent
	RequestedBy   PartyRef      `json:"requested_by"`
	Reason        string        `json:"reason"`
	RefundAmount  int64         `json:"refund_amount"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

// BookingReviewedEvent published after a review is attached
type BookingReviewedEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
	Rating    int   `json:"rating"`
}

// BookingRefundedEvent published once the provider has executed a refund
type BookingRefundedEvent struct {
	BaseEvent
	Amount   int64  `json:"amount"`
	RefundID string `json:"refund_id"`
}
