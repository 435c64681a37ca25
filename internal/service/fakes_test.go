package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/store"
)

// memBookings is an in-memory BookingRepository that honours the same preconditions as the
// Mongo store.
type memBookings struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	seq      int
}

func newMemBookings() *memBookings {
	return &memBookings{bookings: make(map[string]*models.Booking)}
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.Timeline = append([]models.TimelineEntry(nil), b.Timeline...)
	c.Communication = append([]models.Message(nil), b.Communication...)
	if b.Cancellation != nil {
		cancellation := *b.Cancellation
		c.Cancellation = &cancellation
	}
	if b.Review != nil {
		review := *b.Review
		c.Review = &review
	}
	return &c
}

func (m *memBookings) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		m.seq++
		b.ID = fmt.Sprintf("bk-%d", m.seq)
	}
	m.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (m *memBookings) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (m *memBookings) ListBookings(_ context.Context, f models.BookingFilter) ([]models.Booking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Booking
	for _, b := range m.bookings {
		if f.Tourist != nil && !b.Tourist.Equal(*f.Tourist) {
			continue
		}
		if f.Seller != nil && !b.Seller.Equal(*f.Seller) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		out = append(out, *cloneBooking(b))
	}

	total := int64(len(out))
	start := (f.Page - 1) * f.Limit
	if start > len(out) {
		start = len(out)
	}
	end := start + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

// update runs fn on the stored booking when check passes
func (m *memBookings) update(id string, check func(*models.Booking) bool, fn func(*models.Booking)) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !check(b) {
		return nil, store.ErrConditionFailed
	}
	fn(b)
	b.UpdatedAt = time.Now().UTC()
	return cloneBooking(b), nil
}

func (m *memBookings) ApplyTransition(_ context.Context, id string, t models.Transition) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.Status == t.From },
		func(b *models.Booking) {
			b.Status = t.Entry.Status
			b.Timeline = append(b.Timeline, t.Entry)
			if t.Payment != nil {
				b.Payment = *t.Payment
			}
			if t.Cancellation != nil {
				cancellation := *t.Cancellation
				b.Cancellation = &cancellation
			}
		})
}

func (m *memBookings) AttachReview(_ context.Context, id string, review models.Review) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool { return b.Status == models.StatusCompleted && b.Review == nil },
		func(b *models.Booking) { b.Review = &review })
}

func (m *memBookings) AppendMessage(_ context.Context, id string, msg models.Message) (*models.Booking, error) {
	return m.update(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) { b.Communication = append(b.Communication, msg) })
}

func (m *memBookings) MarkMessagesRead(_ context.Context, id string, reader models.PartyRef) (*models.Booking, error) {
	return m.update(id,
		func(*models.Booking) bool { return true },
		func(b *models.Booking) {
			for i := range b.Communication {
				if !b.Communication[i].Sender.Equal(reader) {
					b.Communication[i].Read = true
				}
			}
		})
}

func (m *memBookings) RecordRefund(_ context.Context, id string, payment *models.Payment, status models.RefundStatus) (*models.Booking, error) {
	return m.update(id,
		func(b *models.Booking) bool {
			return b.Cancellation != nil && b.Cancellation.RefundStatus == models.RefundPending
		},
		func(b *models.Booking) {
			b.Cancellation.RefundStatus = status
			if payment != nil {
				b.Payment = *payment
			}
		})
}

// set overwrites a stored booking, for arranging fixtures
func (m *memBookings) set(b *models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = cloneBooking(b)
}

type memCatalog struct {
	products     map[int64]*models.Product
	destinations map[int64]*models.Destination
	ratingErr    error
}

func newMemCatalog(products ...*models.Product) *memCatalog {
	c := &memCatalog{
		products:     make(map[int64]*models.Product),
		destinations: make(map[int64]*models.Destination),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *memCatalog) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *memCatalog) GetDestinationByID(_ context.Context, id int64) (*models.Destination, error) {
	d, ok := c.destinations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (c *memCatalog) AddProductRating(_ context.Context, id int64, rating int) (*models.Product, error) {
	if c.ratingErr != nil {
		return nil, c.ratingErr
	}
	p, ok := c.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.RatingAverage, p.RatingCount = models.ApplyRating(p.RatingAverage, p.RatingCount, rating)
	cp := *p
	return &cp, nil
}

func (c *memCatalog) AddDestinationRating(_ context.Context, id int64, rating int) (*models.Destination, error) {
	d, ok := c.destinations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	d.RatingAverage, d.RatingCount = models.ApplyRating(d.RatingAverage, d.RatingCount, rating)
	cp := *d
	return &cp, nil
}

type memUsers map[int64]*models.User

func (u memUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return user, nil
}

type memProcessed struct {
	ids map[string]string
}

func newMemProcessed() *memProcessed {
	return &memProcessed{ids: make(map[string]string)}
}

func (p *memProcessed) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := p.ids[eventID]
	return ok, nil
}

func (p *memProcessed) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	p.ids[eventID] = eventType
	return nil
}

type memLocker struct {
	mu     sync.Mutex
	held   map[string]string
	claims map[string]string
	down   bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string), claims: make(map[string]string)}
}

var errLockerDown = errors.New("redis: connection refused")

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.down {
		return "", false, errLockerDown
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%s", key)
	l.held[key] = token
	return token, true, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *memLocker) ClaimIdempotencyKey(_ context.Context, key, value string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.down {
		return "", false, errLockerDown
	}
	if owner, ok := l.claims[key]; ok {
		return owner, false, nil
	}
	l.claims[key] = value
	return value, true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	types  []string
	cancel []*models.BookingCancelledEvent
	refund []*models.BookingRefundedEvent
	err    error
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return p.err
}

func (p *recordingPublisher) PublishBookingCreated(_ context.Context, e *models.BookingCreatedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, e *models.BookingStatusChangedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishPaymentConfirmed(_ context.Context, e *models.BookingPaymentConfirmedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, e *models.BookingCancelledEvent) error {
	p.mu.Lock()
	p.cancel = append(p.cancel, e)
	p.mu.Unlock()
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishBookingReviewed(_ context.Context, e *models.BookingReviewedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishBookingRefunded(_ context.Context, e *models.BookingRefundedEvent) error {
	p.mu.Lock()
	p.refund = append(p.refund, e)
	p.mu.Unlock()
	return p.record(e.EventType)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type stubRefundProvider struct {
	err   error
	calls int
}

func (s *stubRefundProvider) Refund(_ context.Context, transactionID string, amount int64, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("RFD-%s-%d", transactionID, amount), nil
}
