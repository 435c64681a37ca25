package models

import (
	"time"

	"github.com/lib/pq"
)

// DateLayout is the calendar-day layout used for availability lists.
const DateLayout = "2006-01-02"

// Role of a caller
type Role string

const (
	RoleTourist Role = "tourist"
	RoleSeller  Role = "seller"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleTourist, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account
type User struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Role       Role      `db:"role" json:"role"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	IsApproved bool      `db:"is_approved" json:"isApproved"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the resolved caller of an operation.
type Identity struct {
	Party PartyRef
	Role  Role
}

// IdentityFor builds the identity of a registered user.
func IdentityFor(u *User) Identity {
	return Identity{Party: Registered(u.ID), Role: u.Role}
}

// GuestIdentity builds the identity of a demo/guest tourist.
func GuestIdentity(guestID string) Identity {
	return Identity{Party: Guest(guestID), Role: RoleTourist}
}

// IsAdmin reports whether the caller is an administrator.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Product represents a bookable catalog item
type Product struct {
	ID            int64       `db:"id" json:"id"`
	SellerUserID  *int64      `db:"seller_user_id" json:"sellerUserId,omitempty"`
	SellerGuestID *string     `db:"seller_guest_id" json:"sellerGuestId,omitempty"`
	DestinationID *int64      `db:"destination_id" json:"destinationId,omitempty"`
	Name          string      `db:"name" json:"name"`
	Type          BookingType `db:"booking_type" json:"type"`
	Price         int64       `db:"price" json:"price"`
	Currency      string      `db:"currency" json:"currency"`
	IsActive      bool        `db:"is_active" json:"isActive"`
	IsApproved    bool        `db:"is_approved" json:"isApproved"`

	InStock        bool           `db:"in_stock" json:"inStock"`
	MaxQuantity    int            `db:"max_quantity" json:"maxQuantity"`
	BlackoutDates  pq.StringArray `db:"blackout_dates" json:"blackoutDates"`
	AvailableDates pq.StringArray `db:"available_dates" json:"availableDates"`

	CancellationAllowed       bool `db:"cancellation_allowed" json:"cancellationAllowed"`
	CancellationDeadlineHours int  `db:"cancellation_deadline_hours" json:"cancellationDeadlineHours"`
	RefundPercentage          int  `db:"refund_percentage" json:"refundPercentage"`

	RatingAverage float64   `db:"rating_average" json:"ratingAverage"`
	RatingCount   int       `db:"rating_count" json:"ratingCount"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Seller resolves the owning party of the product.
func (p *Product) Seller() PartyRef {
	if p.SellerUserID != nil {
		return Registered(*p.SellerUserID)
	}
	if p.SellerGuestID != nil {
		return Guest(*p.SellerGuestID)
	}
	return PartyRef{}
}

// Purchasable reports whether the product may be booked at all.
func (p *Product) Purchasable() bool {
	return p.IsActive && p.IsApproved
}

// Policy returns the product's cancellation policy with defaults applied.
func (p *Product) Policy() CancellationPolicy {
	return CancellationPolicy{
		Allowed:          p.CancellationAllowed,
		DeadlineHours:    p.CancellationDeadlineHours,
		RefundPercentage: p.RefundPercentage,
	}.Normalize()
}

// CancellationPolicy governs refunds on cancellation.
type CancellationPolicy struct {
	Allowed          bool
	DeadlineHours    int
	RefundPercentage int
}

const (
	DefaultDeadlineHours    = 24
	DefaultRefundPercentage = 100
)

// Normalize replaces negative values with the defaults and clamps the percentage to 100.
// A zero deadline or percentage is kept as given.
func (cp CancellationPolicy) Normalize() CancellationPolicy {
	if cp.DeadlineHours < 0 {
		cp.DeadlineHours = DefaultDeadlineHours
	}
	if cp.RefundPercentage < 0 {
		cp.RefundPercentage = DefaultRefundPercentage
	}
	if cp.RefundPercentage > 100 {
		cp.RefundPercentage = 100
	}
	return cp
}

// Destination represents a tourist destination
type Destination struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Location      string    `db:"location" json:"location"`
	Description   string    `db:"description" json:"description"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	RatingAverage float64   `db:"rating_average" json:"ratingAverage"`
	RatingCount   int       `db:"rating_count" json:"ratingCount"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
