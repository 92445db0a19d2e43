package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	// Place reserves stock for every item, stores the order and deactivates
	// the given cart lines, all in one transaction.
	Place(ctx context.Context, order *models.Order, cartItemIDs []string) error
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	GetActive(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus changes the status; restock returns the items to stock in
	// the same transaction.
	UpdateStatus(ctx context.Context, order *models.Order, status models.OrderStatus, restock bool) error
}
