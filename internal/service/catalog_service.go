package service

import (
	"context"
	"errors"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// RatingRequest is a standalone 1-5 rating of a catalog entry
type RatingRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// CatalogService exposes products and destinations
type CatalogService struct {
	catalog CatalogRepository
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalog CatalogRepository) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

func (cs *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := cs.catalog.GetProductByID(ctx, id)
	if err != nil {
		return nil, catalogError("product", err)
	}
	return product, nil
}

func (cs *CatalogService) GetDestination(ctx context.Context, id int64) (*models.Destination, error) {
	destination, err := cs.catalog.GetDestinationByID(ctx, id)
	if err != nil {
		return nil, catalogError("destination", err)
	}
	return destination, nil
}

// RateProduct folds one rating into the product's running average
func (cs *CatalogService) RateProduct(ctx context.Context, id int64, rating int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.RateProduct")
	defer span.End()

	if !models.ValidRating(rating) {
		return nil, apperr.Validation("invalid rating", apperr.Field("rating", "must be between 1 and 5"))
	}

	product, err := cs.catalog.AddProductRating(ctx, id, rating)
	if err != nil {
		util.RecordError(span, err)
		return nil, catalogError("product", err)
	}

	cs.logger.Info("Product rated",
		zap.Int64("product_id", id),
		zap.Int("rating", rating),
		zap.Float64("average", product.RatingAverage))
	return product, nil
}

// RateDestination folds one rating into the destination's running average
func (cs *CatalogService) RateDestination(ctx context.Context, id int64, rating int) (*models.Destination, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.RateDestination")
	defer span.End()

	if !models.ValidRating(rating) {
		return nil, apperr.Validation("invalid rating", apperr.Field("rating", "must be between 1 and 5"))
	}

	destination, err := cs.catalog.AddDestinationRating(ctx, id, rating)
	if err != nil {
		util.RecordError(span, err)
		return nil, catalogError("destination", err)
	}

	cs.logger.Info("Destination rated",
		zap.Int64("destination_id", id),
		zap.Int("rating", rating),
		zap.Float64("average", destination.RatingAverage))
	return destination, nil
}

func catalogError(entity string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity + " not found")
	}
	return apperr.Internal("failed to load "+entity, err)
}
