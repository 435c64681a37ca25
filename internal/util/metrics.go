package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tourism"

var (
	BookingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "bookings_created_total",
		Help:      "Total number of bookings created",
	}, []string{"type"})

	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "booking_transitions_total",
		Help:      "Total number of applied booking status transitions",
	}, []string{"from", "to"})

	BookingRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "booking_rejections_total",
		Help:      "Total number of rejected booking operations",
	}, []string{"operation", "reason"})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "bookings_cancelled_total",
		Help:      "Total number of cancelled bookings",
	})

	RefundAmountComputed = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "refund_ratio",
		Help:      "Refund amount as a fraction of the booking total at cancellation time",
		Buckets:   []float64{0, 0.25, 0.5, 0.75, 1},
	})

	PaymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "payments_confirmed_total",
		Help:      "Total number of confirmed booking payments",
	})

	PaymentDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "payment_duplicate_confirmations_total",
		Help:      "Total number of repeated payment confirmations answered as no-ops",
	})

	RefundsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "refunds_processed_total",
		Help:      "Total number of refunds handled by the refund worker",
	}, []string{"outcome"})

	RefundProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "refund_processing_latency_seconds",
		Help:      "Latency of refund execution against the payment provider",
		Buckets:   prometheus.DefBuckets,
	})

	ReviewsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reviews_submitted_total",
		Help:      "Total number of booking reviews",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
