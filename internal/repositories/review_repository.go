package repositories

import (
	"context"

	"storefront/internal/models"
)

// ReviewRepository defines the interface for review data access.
type ReviewRepository interface {
	ListActive(ctx context.Context) ([]models.Review, error)
	ListByProduct(ctx context.Context, productID string) ([]models.Review, error)
	GetActive(ctx context.Context, id string) (*models.Review, error)
	// CreateAndRate inserts the review and recomputes the product rating in
	// one transaction.
	CreateAndRate(ctx context.Context, review *models.Review) error
	// DeactivateAndRate soft-deletes the review and recomputes the product
	// rating in one transaction.
	DeactivateAndRate(ctx context.Context, review *models.Review) error
}
