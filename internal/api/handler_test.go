package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errNotSupported = errors.New("not supported by test repository")

// bookingRepo keeps just enough state for the HTTP round trips below
type bookingRepo struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
	getErr   error
}

func (r *bookingRepo) CreateBooking(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = fmt.Sprintf("b%d", len(r.bookings)+1)
	r.bookings[b.ID] = *b
	return nil
}

func (r *bookingRepo) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepo) ListBookings(context.Context, models.BookingFilter) ([]models.Booking, int64, error) {
	return nil, 0, errNotSupported
}

func (r *bookingRepo) ApplyTransition(_ context.Context, id string, t models.Transition) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if b.Status != t.From {
		return nil, store.ErrConditionFailed
	}
	b.Status = t.Entry.Status
	b.Timeline = append(append([]models.TimelineEntry(nil), b.Timeline...), t.Entry)
	if t.Payment != nil {
		b.Payment = *t.Payment
	}
	if t.Cancellation != nil {
		b.Cancellation = t.Cancellation
	}
	r.bookings[id] = b
	return &b, nil
}

// modify applies fn to a copy of the stored booking when ok accepts it
func (r *bookingRepo) modify(id string, ok func(*models.Booking) bool, fn func(*models.Booking)) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, found := r.bookings[id]
	if !found {
		return nil, store.ErrNotFound
	}
	if !ok(&b) {
		return nil, store.ErrConditionFailed
	}
	b.Communication = append([]models.Message(nil), b.Communication...)
	fn(&b)
	r.bookings[id] = b
	return &b, nil
}

func (r *bookingRepo) AttachReview(_ context.Context, id string, review models.Review) (*models.Booking, error) {
	return r.modify(id,
		func(b *models.Booking) bool { return b.Status == models.StatusCompleted && b.Review == nil },
		func(b *models.Booking) { b.Review = &review })
}

func (r *bookingRepo) AppendMessage(_ context.Context, id string, msg models.Message) (*models.Booking, error) {
	return r.modify(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) { b.Communication = append(b.Communication, msg) })
}

func (r *bookingRepo) MarkMessagesRead(_ context.Context, id string, reader models.PartyRef) (*models.Booking, error) {
	return r.modify(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) {
			for i := range b.Communication {
				if !b.Communication[i].Sender.Equal(reader) {
					b.Communication[i].Read = true
				}
			}
		})
}

func (r *bookingRepo) RecordRefund(context.Context, string, *models.Payment, models.RefundStatus) (*models.Booking, error) {
	return nil, errNotSupported
}

type catalogRepo struct {
	product models.Product
}

func (c *catalogRepo) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	if id != c.product.ID {
		return nil, store.ErrNotFound
	}
	p := c.product
	return &p, nil
}

func (c *catalogRepo) GetDestinationByID(context.Context, int64) (*models.Destination, error) {
	return nil, store.ErrNotFound
}

func (c *catalogRepo) AddProductRating(_ context.Context, id int64, rating int) (*models.Product, error) {
	if id != c.product.ID {
		return nil, store.ErrNotFound
	}
	c.product.RatingAverage, c.product.RatingCount = models.ApplyRating(c.product.RatingAverage, c.product.RatingCount, rating)
	p := c.product
	return &p, nil
}

func (c *catalogRepo) AddDestinationRating(context.Context, int64, int) (*models.Destination, error) {
	return nil, store.ErrNotFound
}

type userRepo map[int64]*models.User

func (u userRepo) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, store.ErrNotFound
}

type nopPublisher struct{}

func (nopPublisher) PublishBookingCreated(context.Context, *models.BookingCreatedEvent) error {
	return nil
}
func (nopPublisher) PublishStatusChanged(context.Context, *models.BookingStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishPaymentConfirmed(context.Context, *models.BookingPaymentConfirmedEvent) error {
	return nil
}
func (nopPublisher) PublishBookingCancelled(context.Context, *models.BookingCancelledEvent) error {
	return nil
}
func (nopPublisher) PublishBookingReviewed(context.Context, *models.BookingReviewedEvent) error {
	return nil
}
func (nopPublisher) PublishBookingRefunded(context.Context, *models.BookingRefundedEvent) error {
	return nil
}

type testServer struct {
	router   *gin.Engine
	bookings *bookingRepo
}

func newTestServer(probes map[string]Probe, production bool) *testServer {
	sellerID := int64(7)
	catalog := &catalogRepo{product: models.Product{
		ID:                        1,
		SellerUserID:              &sellerID,
		Type:                      models.TypeTransport,
		Price:                     1500,
		Currency:                  "INR",
		IsActive:                  true,
		IsApproved:                true,
		InStock:                   true,
		CancellationAllowed:       true,
		CancellationDeadlineHours: 24,
		RefundPercentage:          100,
	}}
	bookings := &bookingRepo{bookings: make(map[string]models.Booking)}
	users := userRepo{
		7: {ID: 7, Role: models.RoleSeller, IsActive: true},
		8: {ID: 8, Role: models.RoleSeller, IsActive: false},
	}

	bookingService := service.NewBookingService(bookings, catalog, nil, nopPublisher{}, service.DefaultBookingOptions())
	handler := NewHandler(
		bookingService,
		service.NewCatalogService(catalog),
		service.NewIdentityService(users),
		probes,
		production,
	)

	router := gin.New()
	handler.SetupRoutes(router)
	return &testServer{router: router, bookings: bookings}
}

func (s *testServer) do(method, path string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var (
	guestHeaders  = map[string]string{headerGuestID: "demo-tourist"}
	sellerHeaders = map[string]string{headerUserID: "7"}
)

func createBody() gin.H {
	return gin.H{
		"productId":     1,
		"quantity":      2,
		"startDate":     time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"paymentMethod": "card",
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthAndReadiness(t *testing.T) {
	healthy := newTestServer(map[string]Probe{
		"postgres": func(context.Context) error { return nil },
	}, false)

	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/ready", nil, nil).Code)

	degraded := newTestServer(map[string]Probe{
		"mongodb": func(context.Context) error { return errors.New("no reachable servers") },
	}, false)

	w := degraded.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mongodb")
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(nil, false)

	w := s.do(http.MethodGet, "/api/v1/bookings/b1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/bookings/b1", map[string]string{headerUserID: "8"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookingRoundTrip(t *testing.T) {
	s := newTestServer(nil, false)

	w := s.do(http.MethodPost, "/api/v1/bookings", guestHeaders, createBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Booking
	decode(t, w, &created)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, int64(3690), created.Pricing.TotalAmount)
	assert.Equal(t, models.TypeTransport, created.Type)

	w = s.do(http.MethodGet, "/api/v1/bookings/"+created.ID, guestHeaders, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/bookings/"+created.ID, map[string]string{headerGuestID: "someone-else"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", guestHeaders, gin.H{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", sellerHeaders, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/bookings/"+created.ID+"/status", sellerHeaders, gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var confirmed models.Booking
	decode(t, w, &confirmed)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Len(t, confirmed.Timeline, 2)

	w = s.do(http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", guestHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cancelResp struct {
		Booking      models.Booking `json:"booking"`
		RefundAmount int64          `json:"refundAmount"`
	}
	decode(t, w, &cancelResp)
	assert.Equal(t, models.StatusCancelled, cancelResp.Booking.Status)
	assert.Equal(t, int64(3690), cancelResp.RefundAmount)
}

func TestPaymentReviewAndMessages(t *testing.T) {
	s := newTestServer(nil, false)

	w := s.do(http.MethodPost, "/api/v1/bookings", guestHeaders, createBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Booking
	decode(t, w, &created)
	base := "/api/v1/bookings/" + created.ID

	w = s.do(http.MethodPost, base+"/payment/confirm", sellerHeaders, gin.H{"transactionId": "tx-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, base+"/payment/confirm", guestHeaders, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base+"/payment/confirm", guestHeaders, gin.H{"transactionId": "tx-1", "method": "upi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid models.Booking
	decode(t, w, &paid)
	assert.Equal(t, models.StatusConfirmed, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.Payment.Status)
	assert.Equal(t, "tx-1", paid.Payment.TransactionID)

	w = s.do(http.MethodPost, base+"/payment/confirm", guestHeaders, gin.H{"transactionId": "tx-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, base+"/payment/confirm", guestHeaders, gin.H{"transactionId": "tx-2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, base+"/review", guestHeaders, gin.H{"rating": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, status := range []string{"in_progress", "completed"} {
		w = s.do(http.MethodPatch, base+"/status", sellerHeaders, gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(http.MethodPost, base+"/review", guestHeaders, gin.H{"rating": 5, "comment": "great driver"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reviewed models.Booking
	decode(t, w, &reviewed)
	require.NotNil(t, reviewed.Review)
	assert.Equal(t, 5, reviewed.Review.Rating)

	w = s.do(http.MethodPost, base+"/review", guestHeaders, gin.H{"rating": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base+"/messages", guestHeaders, gin.H{"message": "Where do we meet?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPatch, base+"/messages/read", sellerHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var read models.Booking
	decode(t, w, &read)
	require.Len(t, read.Communication, 1)
	assert.True(t, read.Communication[0].Read)

	w = s.do(http.MethodPost, base+"/messages", map[string]string{headerGuestID: "someone-else"}, gin.H{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBookingValidation(t *testing.T) {
	s := newTestServer(nil, false)

	w := s.do(http.MethodPost, "/api/v1/bookings", guestHeaders, gin.H{"productId": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := createBody()
	body["productId"] = 99
	w = s.do(http.MethodPost, "/api/v1/bookings", guestHeaders, body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/bookings", sellerHeaders, createBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	body = createBody()
	body["startDate"] = time.Now().Add(-72 * time.Hour).UTC().Format(time.RFC3339)
	w = s.do(http.MethodPost, "/api/v1/bookings", guestHeaders, body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Details)
	assert.Equal(t, "startDate", resp.Details[0].Field)
}

func TestInternalErrorsHiddenInProduction(t *testing.T) {
	for _, production := range []bool{true, false} {
		s := newTestServer(nil, production)
		s.bookings.getErr = errors.New("connection reset by peer")

		w := s.do(http.MethodGet, "/api/v1/bookings/b1", guestHeaders, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		if production {
			assert.NotContains(t, w.Body.String(), "connection reset")
		} else {
			assert.Contains(t, w.Body.String(), "connection reset")
		}
	}
}

func TestRateProduct(t *testing.T) {
	s := newTestServer(nil, false)

	w := s.do(http.MethodPost, "/api/v1/products/1/ratings", guestHeaders, gin.H{"rating": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var product models.Product
	decode(t, w, &product)
	assert.Equal(t, 1, product.RatingCount)

	w = s.do(http.MethodPost, "/api/v1/products/1/ratings", guestHeaders, gin.H{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/products/abc", guestHeaders, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
