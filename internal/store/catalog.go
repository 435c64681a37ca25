package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"
)

const productColumns = `id, seller_user_id, seller_guest_id, destination_id, name, booking_type, price,
	currency, is_active, is_approved, in_stock, max_quantity, blackout_dates, available_dates,
	cancellation_allowed, cancellation_deadline_hours, refund_percentage, rating_average,
	rating_count, created_at, updated_at`

const destinationColumns = `id, name, location, description, is_active, rating_average, rating_count, created_at`

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetDestinationByID retrieves a destination by ID
func (s *Store) GetDestinationByID(ctx context.Context, id int64) (*models.Destination, error) {
	var destination models.Destination
	err := s.db.GetContext(ctx, &destination,
		"SELECT "+destinationColumns+" FROM destinations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("destination %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &destination, nil
}

// AddProductRating folds a rating into the product's running average (FOR UPDATE lock)
func (s *Store) AddProductRating(ctx context.Context, id int64, rating int) (*models.Product, error) {
	if err := s.addRating(ctx, "products", id, rating); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, id)
}

// AddDestinationRating folds a rating into the destination's running average
func (s *Store) AddDestinationRating(ctx context.Context, id int64, rating int) (*models.Destination, error) {
	if err := s.addRating(ctx, "destinations", id, rating); err != nil {
		return nil, err
	}
	return s.GetDestinationByID(ctx, id)
}

// addRating reads and rewrites the aggregate inside one transaction so concurrent ratings
// never lose an increment.
func (s *Store) addRating(ctx context.Context, table string, id int64, rating int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current struct {
		Average float64 `db:"rating_average"`
		Count   int     `db:"rating_count"`
	}
	err = tx.GetContext(ctx, &current,
		fmt.Sprintf("SELECT rating_average, rating_count FROM %s WHERE id = $1 FOR UPDATE", table), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock rating: %w", err)
	}

	average, count := models.ApplyRating(current.Average, current.Count, rating)

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET rating_average = $1, rating_count = $2 WHERE id = $3", table),
		average, count, id)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}

	return tx.Commit()
}
