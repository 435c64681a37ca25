package service

import (
	"fmt"
	"math"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
)

// PricingPolicy holds the platform's tax and fee rates, in whole percent.
type PricingPolicy struct {
	TaxPercent int64
	FeePercent int64
	Currency   string
}

// DefaultPricingPolicy is 18% tax and a 5% platform fee.
var DefaultPricingPolicy = PricingPolicy{TaxPercent: 18, FeePercent: 5, Currency: "INR"}

// Compute snapshots the price of quantity units. Taxes and the total are rounded half-up
// independently from the base; fees absorb the difference so the total never drifts from
// base * (100+tax+fee)/100.
func (p PricingPolicy) Compute(unitPrice int64, quantity int, currency string) models.Pricing {
	if currency == "" {
		currency = p.Currency
	}

	base := unitPrice * int64(quantity)
	taxes := percentOf(base, p.TaxPercent)
	total := percentOf(base, 100+p.TaxPercent+p.FeePercent)

	return models.Pricing{
		BasePrice:   base,
		Taxes:       taxes,
		Fees:        total - base - taxes,
		TotalAmount: total,
		Currency:    currency,
	}
}

// MaxQuantity is the largest quantity of unitPrice whose total still fits in int64.
// It is unbounded for free products.
func (p PricingPolicy) MaxQuantity(unitPrice int64) int64 {
	if unitPrice <= 0 {
		return math.MaxInt64
	}
	return (math.MaxInt64 - 50) / (100 + p.TaxPercent + p.FeePercent) / unitPrice
}

// CheckQuantity rejects quantities whose total cannot be represented.
func (p PricingPolicy) CheckQuantity(unitPrice int64, quantity int) error {
	if limit := p.MaxQuantity(unitPrice); int64(quantity) > limit {
		return apperr.Validation("requested quantity is too large",
			apperr.Field("quantity", fmt.Sprintf("at most %d can be booked at this price", limit)))
	}
	return nil
}

// percentOf returns amount*pct/100 rounded half-up. amount must be non-negative.
func percentOf(amount, pct int64) int64 {
	return (amount*pct + 50) / 100
}

// ComputeRefund applies a cancellation policy at time now to a booking starting at start.
func ComputeRefund(policy models.CancellationPolicy, total int64, start, now time.Time) int64 {
	policy = policy.Normalize()
	if !policy.Allowed {
		return 0
	}

	hoursUntilStart := start.Sub(now).Hours()
	if hoursUntilStart < float64(policy.DeadlineHours) {
		return 0
	}

	return percentOf(total, int64(policy.RefundPercentage))
}

// CheckAvailability verifies the product can be booked for quantity units on date.
func CheckAvailability(p *models.Product, date time.Time, quantity int) error {
	if !p.InStock {
		return apperr.Validation("product is out of stock",
			apperr.Field("productId", "product is out of stock"))
	}

	if p.MaxQuantity > 0 && quantity > p.MaxQuantity {
		return apperr.Validation("requested quantity is not available",
			apperr.Field("quantity", fmt.Sprintf("at most %d can be booked", p.MaxQuantity)))
	}

	day := date.UTC().Format(models.DateLayout)

	for _, blackout := range p.BlackoutDates {
		if blackout == day {
			return apperr.Validation("requested date is not available",
				apperr.Field("startDate", fmt.Sprintf("%s is a blackout date", day)))
		}
	}

	if len(p.AvailableDates) > 0 {
		for _, available := range p.AvailableDates {
			if available == day {
				return nil
			}
		}
		return apperr.Validation("requested date is not available",
			apperr.Field("startDate", fmt.Sprintf("%s is not an available date", day)))
	}

	return nil
}
