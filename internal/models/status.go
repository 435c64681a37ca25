package models

import "fmt"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no_show"
)

// validTransitions is the forward-only state machine. cancelled and no_show are
// reachable from every non-terminal state.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows s -> target.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return !ok || len(allowed) == 0
}

// IsCancellable reports whether a booking in s may be cancelled.
func (s BookingStatus) IsCancellable() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusInProgress
}

func (s BookingStatus) String() string {
	return string(s)
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// PaymentStatus of a booking's payment sub-record.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// RefundStatus of a cancellation.
type RefundStatus string

const (
	RefundPending     RefundStatus = "pending"
	RefundProcessed   RefundStatus = "processed"
	RefundFailed      RefundStatus = "failed"
	RefundNotRequired RefundStatus = "not_required"
)

// BookingType tags what is being booked.
type BookingType string

const (
	TypeProduct       BookingType = "product"
	TypeService       BookingType = "service"
	TypeAccommodation BookingType = "accommodation"
	TypeGuide         BookingType = "guide"
	TypeTransport     BookingType = "transport"
	TypePackage       BookingType = "package"
)

func (t BookingType) IsValid() bool {
	switch t {
	case TypeProduct, TypeService, TypeAccommodation, TypeGuide, TypeTransport, TypePackage:
		return true
	}
	return false
}
