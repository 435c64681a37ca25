package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bookingsCollection = "bookings"

// BookingStore keeps bookings as documents with their timeline and message thread embedded,
// so a status write and its timeline append are one single-document update.
type BookingStore struct {
	collection *mongo.Collection
}

// NewBookingStore creates the store and its indexes
func NewBookingStore(ctx context.Context, db *mongo.Database) (*BookingStore, error) {
	collection := db.Collection(bookingsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "tourist.kind", Value: 1}, {Key: "tourist.userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tourist.kind", Value: 1}, {Key: "tourist.guestId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "seller.kind", Value: 1}, {Key: "seller.userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "seller.kind", Value: 1}, {Key: "seller.guestId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create booking indexes: %w", err)
	}

	return &BookingStore{collection: collection}, nil
}

// CreateBooking inserts a new booking, assigning its ID
func (s *BookingStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}

	if _, err := s.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (s *BookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookings returns one page of bookings matching the filter, newest first, plus the total
func (s *BookingStore) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, int64, error) {
	filter := BuildBookingFilter(f)

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]models.Booking, 0, f.Limit)
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, total, nil
}

// BuildBookingFilter translates a listing filter into a bson query
func BuildBookingFilter(f models.BookingFilter) bson.M {
	filter := bson.M{}
	if f.Tourist != nil {
		addPartyFilter(filter, "tourist", *f.Tourist)
	}
	if f.Seller != nil {
		addPartyFilter(filter, "seller", *f.Seller)
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	return filter
}

func addPartyFilter(filter bson.M, field string, p models.PartyRef) {
	filter[field+".kind"] = p.Kind
	switch p.Kind {
	case models.PartyRegistered:
		filter[field+".userId"] = p.UserID
	case models.PartyGuest:
		filter[field+".guestId"] = p.GuestID
	}
}

// ApplyTransition sets the new status and appends its timeline entry in one update,
// conditioned on the booking still being in t.From
func (s *BookingStore) ApplyTransition(ctx context.Context, id string, t models.Transition) (*models.Booking, error) {
	set := bson.M{
		"status":    t.Entry.Status,
		"updatedAt": t.Entry.Timestamp,
	}
	if t.Payment != nil {
		set["payment"] = t.Payment
	}
	if t.Cancellation != nil {
		set["cancellation"] = t.Cancellation
	}

	update := bson.M{
		"$set":  set,
		"$push": bson.M{"timeline": t.Entry},
	}

	return s.conditionalUpdate(ctx, id, bson.M{"_id": id, "status": t.From}, update)
}

// AttachReview stores the review only on a completed, not yet reviewed booking
func (s *BookingStore) AttachReview(ctx context.Context, id string, review models.Review) (*models.Booking, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.StatusCompleted,
		"review": nil,
	}
	update := bson.M{
		"$set": bson.M{"review": review, "updatedAt": review.SubmittedAt},
	}
	return s.conditionalUpdate(ctx, id, filter, update)
}

// AppendMessage appends to the booking's message thread
func (s *BookingStore) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Booking, error) {
	update := bson.M{
		"$push": bson.M{"communication": msg},
		"$set":  bson.M{"updatedAt": msg.Timestamp},
	}
	return s.conditionalUpdate(ctx, id, bson.M{"_id": id}, update)
}

// MarkMessagesRead flags every message not sent by reader as read
func (s *BookingStore) MarkMessagesRead(ctx context.Context, id string, reader models.PartyRef) (*models.Booking, error) {
	idField := "m.sender.userId"
	var idValue interface{} = reader.UserID
	if reader.Kind == models.PartyGuest {
		idField = "m.sender.guestId"
		idValue = reader.GuestID
	}

	update := bson.M{
		"$set": bson.M{"communication.$[m].read": true},
	}
	arrayFilter := bson.M{
		"$or": bson.A{
			bson.M{"m.sender.kind": bson.M{"$ne": reader.Kind}},
			bson.M{idField: bson.M{"$ne": idValue}},
		},
	}

	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{arrayFilter}}).
		SetReturnDocument(options.After)

	var booking models.Booking
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return &booking, nil
}

// RecordRefund resolves a pending refund. It is a no-op precondition failure once the
// refund has already been resolved.
func (s *BookingStore) RecordRefund(ctx context.Context, id string, payment *models.Payment, status models.RefundStatus) (*models.Booking, error) {
	set := bson.M{
		"cancellation.refundStatus": status,
		"updatedAt":                 time.Now().UTC(),
	}
	if payment != nil {
		set["payment"] = payment
	}

	filter := bson.M{
		"_id":                       id,
		"cancellation.refundStatus": models.RefundPending,
	}
	return s.conditionalUpdate(ctx, id, filter, bson.M{"$set": set})
}

// conditionalUpdate applies update when filter matches and returns the updated document.
// A miss is reported as ErrNotFound if the booking is absent, ErrConditionFailed otherwise.
func (s *BookingStore) conditionalUpdate(ctx context.Context, id string, filter, update bson.M) (*models.Booking, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking models.Booking
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check booking: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil, fmt.Errorf("booking %s: %w", id, ErrConditionFailed)
}
