package repositories

import (
	"context"

	"storefront/internal/models"
)

// CategoryRepository defines the interface for category data access.
// Every read only sees active categories.
type CategoryRepository interface {
	ListActive(ctx context.Context) ([]models.Category, error)
	GetActive(ctx context.Context, id string) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, id, name string, parentID *string) error
	Deactivate(ctx context.Context, id string) error
}
