package models

import "time"

// Booking is a tourist's purchase of a product from a seller.
type Booking struct {
	ID            string          `bson:"_id,omitempty" json:"id"`
	Code          string          `bson:"code" json:"code"`
	Tourist       PartyRef        `bson:"tourist" json:"tourist"`
	Seller        PartyRef        `bson:"seller" json:"seller"`
	ProductID     int64           `bson:"productId" json:"productId"`
	DestinationID *int64          `bson:"destinationId,omitempty" json:"destinationId,omitempty"`
	Type          BookingType     `bson:"type" json:"type"`
	Details       BookingDetails  `bson:"details" json:"details"`
	Pricing       Pricing         `bson:"pricing" json:"pricing"`
	Payment       Payment         `bson:"payment" json:"payment"`
	Status        BookingStatus   `bson:"status" json:"status"`
	Timeline      []TimelineEntry `bson:"timeline" json:"timeline"`
	Communication []Message       `bson:"communication" json:"communication"`
	Cancellation  *Cancellation   `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Review        *Review         `bson:"review,omitempty" json:"review,omitempty"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `bson:"updatedAt" json:"updatedAt"`
}

type BookingDetails struct {
	Quantity        int          `bson:"quantity" json:"quantity"`
	StartDate       time.Time    `bson:"startDate" json:"startDate"`
	EndDate         *time.Time   `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Duration        string       `bson:"duration,omitempty" json:"duration,omitempty"`
	Participants    Participants `bson:"participants" json:"participants"`
	SpecialRequests string       `bson:"specialRequests,omitempty" json:"specialRequests,omitempty"`
	PickupLocation  string       `bson:"pickupLocation,omitempty" json:"pickupLocation,omitempty"`
	DropoffLocation string       `bson:"dropoffLocation,omitempty" json:"dropoffLocation,omitempty"`
}

type Participants struct {
	Adults   int `bson:"adults" json:"adults"`
	Children int `bson:"children" json:"children"`
}

// Pricing is captured once at creation; amounts are in the currency's minor unit.
type Pricing struct {
	BasePrice   int64  `bson:"basePrice" json:"basePrice"`
	Taxes       int64  `bson:"taxes" json:"taxes"`
	Fees        int64  `bson:"fees" json:"fees"`
	Discounts   int64  `bson:"discounts" json:"discounts"`
	TotalAmount int64  `bson:"totalAmount" json:"totalAmount"`
	Currency    string `bson:"currency" json:"currency"`
}

type Payment struct {
	Status        PaymentStatus `bson:"status" json:"status"`
	Method        string        `bson:"method" json:"method"`
	TransactionID string        `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	PaymentDate   *time.Time    `bson:"paymentDate,omitempty" json:"paymentDate,omitempty"`
	RefundAmount  int64         `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundDate    *time.Time    `bson:"refundDate,omitempty" json:"refundDate,omitempty"`
	RefundReason  string        `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
}

// TimelineEntry records one status change. The timeline is append-only.
type TimelineEntry struct {
	Status    BookingStatus `bson:"status" json:"status"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
	Note      string        `bson:"note,omitempty" json:"note,omitempty"`
	UpdatedBy PartyRef      `bson:"updatedBy" json:"updatedBy"`
}

type Message struct {
	Sender    PartyRef  `bson:"sender" json:"sender"`
	Message   string    `bson:"message" json:"message"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Read      bool      `bson:"read" json:"read"`
}

type Cancellation struct {
	RequestedBy  PartyRef     `bson:"requestedBy" json:"requestedBy"`
	Reason       string       `bson:"reason,omitempty" json:"reason,omitempty"`
	RequestedAt  time.Time    `bson:"requestedAt" json:"requestedAt"`
	ApprovedAt   *time.Time   `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	RefundAmount int64        `bson:"refundAmount" json:"refundAmount"`
	RefundStatus RefundStatus `bson:"refundStatus" json:"refundStatus"`
}

type Review struct {
	Rating      int       `bson:"rating" json:"rating"`
	Comment     string    `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedAt time.Time `bson:"submittedAt" json:"submittedAt"`
}

// IsTourist reports whether p is the booking's tourist.
func (b *Booking) IsTourist(p PartyRef) bool {
	return b.Tourist.Equal(p)
}

// IsSeller reports whether p is the booking's seller.
func (b *Booking) IsSeller(p PartyRef) bool {
	return b.Seller.Equal(p)
}

// VisibleTo reports whether the caller has any relationship to the booking.
func (b *Booking) VisibleTo(id Identity) bool {
	return id.IsAdmin() || b.IsTourist(id.Party) || b.IsSeller(id.Party)
}

// Counterpart returns the other party of the booking relative to p.
func (b *Booking) Counterpart(p PartyRef) PartyRef {
	if b.IsTourist(p) {
		return b.Seller
	}
	return b.Tourist
}

// LastStatus returns the status of the newest timeline entry.
func (b *Booking) LastStatus() BookingStatus {
	if len(b.Timeline) == 0 {
		return ""
	}
	return b.Timeline[len(b.Timeline)-1].Status
}

// BookingFilter selects bookings for listing.
type BookingFilter struct {
	Tourist *PartyRef
	Seller  *PartyRef
	Status  BookingStatus
	Type    BookingType
	Page    int
	Limit   int
}

// Transition is one atomic status change: the status write, the timeline append and any
// sub-record updates land together or not at all.
type Transition struct {
	From         BookingStatus
	Entry        TimelineEntry
	Payment      *Payment
	Cancellation *Cancellation
}
