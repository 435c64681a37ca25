package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingOptions tunes the booking service
type BookingOptions struct {
	Pricing           PricingPolicy
	StrictTransitions bool
	LockTTL           time.Duration
	IdempotencyTTL    time.Duration
	DefaultPageSize   int
	MaxPageSize       int
}

// DefaultBookingOptions mirrors the configuration defaults
func DefaultBookingOptions() BookingOptions {
	return BookingOptions{
		Pricing:           DefaultPricingPolicy,
		StrictTransitions: true,
		LockTTL:           10 * time.Second,
		IdempotencyTTL:    24 * time.Hour,
		DefaultPageSize:   10,
		MaxPageSize:       100,
	}
}

// BookingService handles booking business logic
type BookingService struct {
	bookings BookingRepository
	catalog  CatalogRepository
	locker   Locker
	events   EventPublisher
	opts     BookingOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingRepository,
	catalog CatalogRepository,
	locker Locker,
	events EventPublisher,
	opts BookingOptions,
) *BookingService {
	return &BookingService{
		bookings: bookings,
		catalog:  catalog,
		locker:   locker,
		events:   events,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingRequest represents a request to book a product
type CreateBookingRequest struct {
	ProductID       int64                `json:"productId" binding:"required"`
	Quantity        int                  `json:"quantity" binding:"required,min=1"`
	StartDate       time.Time            `json:"startDate" binding:"required"`
	EndDate         *time.Time           `json:"endDate"`
	Duration        string               `json:"duration"`
	Participants    *models.Participants `json:"participants"`
	SpecialRequests string               `json:"specialRequests" binding:"max=2000"`
	PickupLocation  string               `json:"pickupLocation"`
	DropoffLocation string               `json:"dropoffLocation"`
	DestinationID   *int64               `json:"destinationId"`
	BookingType     models.BookingType   `json:"bookingType"`
	PaymentMethod   string               `json:"paymentMethod" binding:"required"`
}

// ListBookingsRequest holds listing filters and pagination
type ListBookingsRequest struct {
	Status string `form:"status"`
	Type   string `form:"type"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// BookingPage is a page of bookings
type BookingPage struct {
	Bookings   []models.Booking `json:"bookings"`
	Pagination Pagination       `json:"pagination"`
}

// CreateBooking books a product for the calling tourist
func (s *BookingService) CreateBooking(ctx context.Context, caller models.Identity, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if caller.Role != models.RoleTourist {
		util.BookingRejectionsTotal.WithLabelValues("create", "forbidden").Inc()
		return nil, apperr.Forbidden("only tourists can create bookings")
	}

	now := s.now()
	participants, err := s.validateCreateRequest(req, now)
	if err != nil {
		util.BookingRejectionsTotal.WithLabelValues("create", "invalid_request").Inc()
		return nil, err
	}

	product, err := s.catalog.GetProductByID(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("failed to load product", err)
	}

	if !product.Purchasable() {
		util.BookingRejectionsTotal.WithLabelValues("create", "not_purchasable").Inc()
		return nil, apperr.Validation("product is not available for booking",
			apperr.Field("productId", "product is inactive or awaiting approval"))
	}

	seller := product.Seller()
	if err := seller.Validate(); err != nil {
		return nil, apperr.Internal("product has no valid seller", err)
	}
	if seller.Equal(caller.Party) {
		return nil, apperr.Validation("sellers cannot book their own products",
			apperr.Field("productId", "product belongs to the caller"))
	}

	if err := CheckAvailability(product, req.StartDate, req.Quantity); err != nil {
		util.BookingRejectionsTotal.WithLabelValues("create", "unavailable").Inc()
		return nil, err
	}

	if err := s.opts.Pricing.CheckQuantity(product.Price, req.Quantity); err != nil {
		util.BookingRejectionsTotal.WithLabelValues("create", "quantity").Inc()
		return nil, err
	}

	bookingType := req.BookingType
	if bookingType == "" {
		bookingType = product.Type
	}
	if bookingType == "" {
		bookingType = models.TypeProduct
	}

	destinationID := req.DestinationID
	if destinationID == nil {
		destinationID = product.DestinationID
	}

	booking := &models.Booking{
		Code:          newBookingCode(now),
		Tourist:       caller.Party,
		Seller:        seller,
		ProductID:     product.ID,
		DestinationID: destinationID,
		Type:          bookingType,
		Details: models.BookingDetails{
			Quantity:        req.Quantity,
			StartDate:       req.StartDate.UTC(),
			EndDate:         utcPtr(req.EndDate),
			Duration:        req.Duration,
			Participants:    participants,
			SpecialRequests: strings.TrimSpace(req.SpecialRequests),
			PickupLocation:  req.PickupLocation,
			DropoffLocation: req.DropoffLocation,
		},
		Pricing: s.opts.Pricing.Compute(product.Price, req.Quantity, product.Currency),
		Payment: models.Payment{
			Status: models.PaymentPending,
			Method: req.PaymentMethod,
		},
		Status: models.StatusPending,
		Timeline: []models.TimelineEntry{{
			Status:    models.StatusPending,
			Timestamp: now,
			Note:      "Booking created",
			UpdatedBy: caller.Party,
		}},
		Communication: []models.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("failed to create booking", err)
	}

	util.BookingsCreatedTotal.WithLabelValues(string(booking.Type)).Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("booking_code", booking.Code),
		zap.Int64("product_id", booking.ProductID),
		zap.Int64("total_amount", booking.Pricing.TotalAmount))

	event := &models.BookingCreatedEvent{
		BaseEvent:   s.baseEvent(models.EventTypeBookingCreated, booking),
		Tourist:     booking.Tourist,
		Seller:      booking.Seller,
		ProductID:   booking.ProductID,
		TotalAmount: booking.Pricing.TotalAmount,
		Currency:    booking.Pricing.Currency,
	}
	if err := s.events.PublishBookingCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingCreated event", zap.Error(err))
	}

	return booking, nil
}

func (s *BookingService) validateCreateRequest(req *CreateBookingRequest, now time.Time) (models.Participants, error) {
	var fields []apperr.FieldError

	if req.ProductID <= 0 {
		fields = append(fields, apperr.Field("productId", "is required"))
	}
	if req.Quantity < 1 {
		fields = append(fields, apperr.Field("quantity", "must be at least 1"))
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		fields = append(fields, apperr.Field("paymentMethod", "is required"))
	}

	if req.StartDate.IsZero() {
		fields = append(fields, apperr.Field("startDate", "is required"))
	} else if startOfDay(req.StartDate).Before(startOfDay(now)) {
		fields = append(fields, apperr.Field("startDate", "must not be in the past"))
	}
	if req.EndDate != nil && !req.StartDate.IsZero() && req.EndDate.Before(req.StartDate) {
		fields = append(fields, apperr.Field("endDate", "must not be before startDate"))
	}

	if req.BookingType != "" && !req.BookingType.IsValid() {
		fields = append(fields, apperr.Field("bookingType", "is not a known booking type"))
	}

	participants := models.Participants{Adults: 1}
	if req.Participants != nil {
		participants = *req.Participants
		if participants.Adults < 1 {
			fields = append(fields, apperr.Field("participants.adults", "must be at least 1"))
		}
		if participants.Children < 0 {
			fields = append(fields, apperr.Field("participants.children", "must not be negative"))
		}
	}

	if len(fields) > 0 {
		return participants, apperr.Validation("invalid booking request", fields...)
	}
	return participants, nil
}

// GetBooking returns a booking the caller is a party to. Bookings the caller has no
// relationship with are reported as missing.
func (s *BookingService) GetBooking(ctx context.Context, caller models.Identity, id string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.GetBooking", id)
	defer span.End()

	return s.loadVisible(ctx, caller, id)
}

// ListBookings lists bookings scoped to the caller's role
func (s *BookingService) ListBookings(ctx context.Context, caller models.Identity, req *ListBookingsRequest) (*BookingPage, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ListBookings")
	defer span.End()

	filter := models.BookingFilter{Page: req.Page, Limit: req.Limit}

	if req.Status != "" {
		status, err := models.ParseBookingStatus(req.Status)
		if err != nil {
			return nil, apperr.Validation("invalid status filter", apperr.Field("status", err.Error()))
		}
		filter.Status = status
	}
	if req.Type != "" {
		bookingType := models.BookingType(req.Type)
		if !bookingType.IsValid() {
			return nil, apperr.Validation("invalid type filter", apperr.Field("type", "is not a known booking type"))
		}
		filter.Type = bookingType
	}

	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleSeller:
		party := caller.Party
		filter.Seller = &party
	default:
		party := caller.Party
		filter.Tourist = &party
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = s.opts.DefaultPageSize
	}
	if filter.Limit > s.opts.MaxPageSize {
		filter.Limit = s.opts.MaxPageSize
	}

	bookings, total, err := s.bookings.ListBookings(ctx, filter)
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("failed to list bookings", err)
	}

	pages := total / int64(filter.Limit)
	if total%int64(filter.Limit) != 0 {
		pages++
	}

	return &BookingPage{
		Bookings: bookings,
		Pagination: Pagination{
			Page:  filter.Page,
			Limit: filter.Limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

// loadVisible fetches a booking and hides it from callers with no relationship to it
func (s *BookingService) loadVisible(ctx context.Context, caller models.Identity, id string) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("booking not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load booking", err)
	}
	if !booking.VisibleTo(caller) {
		return nil, apperr.NotFound("booking not found")
	}
	return booking, nil
}

// withLock runs fn while holding the booking's lock
func (s *BookingService) withLock(ctx context.Context, bookingID string, fn func() (*models.Booking, error)) (*models.Booking, error) {
	if s.locker == nil {
		return fn()
	}

	key := "booking:" + bookingID
	token, acquired, err := s.locker.AcquireLock(ctx, key, s.opts.LockTTL)
	if err != nil {
		s.logger.Warn("Booking lock unavailable, relying on conditional update",
			zap.String("booking_id", bookingID), zap.Error(err))
		return fn()
	}
	if !acquired {
		util.BookingRejectionsTotal.WithLabelValues("lock", "busy").Inc()
		return nil, apperr.Conflict("booking is being updated by another request")
	}

	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Error("Failed to release booking lock",
				zap.String("booking_id", bookingID), zap.Error(err))
		}
	}()

	return fn()
}

// storeError maps repository failures on conditional writes
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("booking not found")
	case errors.Is(err, store.ErrConditionFailed):
		return apperr.Conflict("booking was modified concurrently, retry the request")
	default:
		return apperr.Internal(fmt.Sprintf("failed to %s", op), err)
	}
}

func (s *BookingService) baseEvent(eventType string, b *models.Booking) models.BaseEvent {
	return models.BaseEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		Timestamp:   s.now(),
		BookingID:   b.ID,
		BookingCode: b.Code,
	}
}

// newBookingCode builds a human-readable code: BK + unix millis + 6 random hex digits
func newBookingCode(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("BK%d%s", now.UnixMilli(), strings.ToUpper(suffix))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
