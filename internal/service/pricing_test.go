package service

import (
	"errors"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingCompute(t *testing.T) {
	tests := []struct {
		name      string
		unitPrice int64
		quantity  int
		want      models.Pricing
	}{
		{
			name:      "two units",
			unitPrice: 1000,
			quantity:  2,
			want:      models.Pricing{BasePrice: 2000, Taxes: 360, Fees: 100, TotalAmount: 2460, Currency: "INR"},
		},
		{
			name:      "fractional tax rounds half up",
			unitPrice: 333,
			quantity:  1,
			want:      models.Pricing{BasePrice: 333, Taxes: 60, Fees: 17, TotalAmount: 410, Currency: "INR"},
		},
		{
			name:      "free product",
			unitPrice: 0,
			quantity:  3,
			want:      models.Pricing{Currency: "INR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultPricingPolicy.Compute(tt.unitPrice, tt.quantity, "")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPricingTotalIsConsistent(t *testing.T) {
	for unit := int64(1); unit <= 5000; unit += 37 {
		for qty := 1; qty <= 4; qty++ {
			p := DefaultPricingPolicy.Compute(unit, qty, "USD")

			assert.Equal(t, p.BasePrice+p.Taxes+p.Fees-p.Discounts, p.TotalAmount)
			assert.Equal(t, percentOf(p.BasePrice, 123), p.TotalAmount)
			assert.GreaterOrEqual(t, p.Fees, int64(0))
			assert.Equal(t, "USD", p.Currency)
		}
	}
}

func TestPricingQuantityLimit(t *testing.T) {
	policy := DefaultPricingPolicy

	assert.Equal(t, int64(74986764), policy.MaxQuantity(1_000_000_000))
	assert.NoError(t, policy.CheckQuantity(1_000_000_000, 74986764))
	assertKind(t, policy.CheckQuantity(1_000_000_000, 74986765), apperr.KindValidation)
	assertKind(t, policy.CheckQuantity(1_000_000_000, 100_000_000), apperr.KindValidation)
	assert.NoError(t, policy.CheckQuantity(0, 100_000_000))

	pricing := policy.Compute(1_000_000_000, 74986764, "")
	assert.Greater(t, pricing.TotalAmount, int64(0))
	assert.Equal(t, pricing.BasePrice+pricing.Taxes+pricing.Fees, pricing.TotalAmount)
}

func TestComputeRefund(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	halfBack := models.CancellationPolicy{Allowed: true, DeadlineHours: 24, RefundPercentage: 50}

	tests := []struct {
		name   string
		policy models.CancellationPolicy
		total  int64
		start  time.Time
		want   int64
	}{
		{"well before deadline", halfBack, 2460, now.Add(48 * time.Hour), 1230},
		{"exactly at deadline", halfBack, 2460, now.Add(24 * time.Hour), 1230},
		{"inside deadline", halfBack, 2460, now.Add(2 * time.Hour), 0},
		{"already started", halfBack, 2460, now.Add(-time.Hour), 0},
		{"full refund", models.CancellationPolicy{Allowed: true, DeadlineHours: 24, RefundPercentage: 100}, 2460, now.Add(72 * time.Hour), 2460},
		{"cancellation not allowed", models.CancellationPolicy{Allowed: false, DeadlineHours: 0, RefundPercentage: 100}, 2460, now.Add(72 * time.Hour), 0},
		{"rounded half up", models.CancellationPolicy{Allowed: true, DeadlineHours: 0, RefundPercentage: 33}, 1001, now.Add(time.Hour), 330},
		{"percentage clamped", models.CancellationPolicy{Allowed: true, DeadlineHours: 0, RefundPercentage: 150}, 1000, now.Add(time.Hour), 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeRefund(tt.policy, tt.total, tt.start, now))
		})
	}
}

func TestCheckAvailability(t *testing.T) {
	date := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	fieldOf := func(t *testing.T, err error) string {
		t.Helper()
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, apperr.KindValidation, appErr.Kind)
		require.NotEmpty(t, appErr.Fields)
		return appErr.Fields[0].Field
	}

	t.Run("available", func(t *testing.T) {
		p := &models.Product{InStock: true}
		assert.NoError(t, CheckAvailability(p, date, 5))
	})

	t.Run("out of stock", func(t *testing.T) {
		p := &models.Product{InStock: false}
		assert.Equal(t, "productId", fieldOf(t, CheckAvailability(p, date, 1)))
	})

	t.Run("quantity above maximum", func(t *testing.T) {
		p := &models.Product{InStock: true, MaxQuantity: 4}
		assert.NoError(t, CheckAvailability(p, date, 4))
		assert.Equal(t, "quantity", fieldOf(t, CheckAvailability(p, date, 5)))
	})

	t.Run("blackout date", func(t *testing.T) {
		p := &models.Product{InStock: true, BlackoutDates: pq.StringArray{"2026-05-10"}}
		assert.Equal(t, "startDate", fieldOf(t, CheckAvailability(p, date, 1)))
	})

	t.Run("available dates restrict booking", func(t *testing.T) {
		p := &models.Product{InStock: true, AvailableDates: pq.StringArray{"2026-05-11"}}
		assert.Equal(t, "startDate", fieldOf(t, CheckAvailability(p, date, 1)))
		assert.NoError(t, CheckAvailability(p, date.Add(24*time.Hour), 1))
	})
}
