package repositories

import (
	"context"

	"storefront/internal/models"
)

// CartRepository defines the interface for cart line data access.
type CartRepository interface {
	// ListActive returns the user's active lines with their products loaded.
	// Lines of inactive products or categories are left out.
	ListActive(ctx context.Context, userID string) ([]models.CartItem, error)
	GetActiveLine(ctx context.Context, userID, productID string) (*models.CartItem, error)
	Create(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	AddQuantity(ctx context.Context, id string, delta, max int) error
	Deactivate(ctx context.Context, id string) error
	Clear(ctx context.Context, userID string) error
}
