package repositories

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Place reserves stock for every item, stores the order and deactivates the
// ordered cart lines in one transaction. A product that is inactive, in an
// inactive category or short of stock fails with ErrInsufficientStock.
func (r *GORMOrderRepository) Place(ctx context.Context, order *models.Order, cartItemIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range order.Items {
			activeCategories := tx.Model(&models.Category{}).Select("id").Where("is_active = ?", true)
			res := tx.Model(&models.Product{}).
				Where("id = ? AND is_active = ? AND stock >= ?", item.ProductID, true, item.Quantity).
				Where("category_id IN (?)", activeCategories).
				Update("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return fmt.Errorf("failed to reserve stock for product %s: %w", item.ProductID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrInsufficientStock)
			}
		}

		order.IsActive = true
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		if len(cartItemIDs) > 0 {
			err := tx.Model(&models.CartItem{}).
				Where("id IN ? AND is_active = ?", cartItemIDs, true).
				Update("is_active", false).Error
			if err != nil {
				return fmt.Errorf("failed to clear ordered cart lines: %w", err)
			}
		}
		return nil
	})
}

// ListByUser retrieves the user's active orders with their items.
func (r *GORMOrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of user %s: %w", userID, err)
	}
	return orders, nil
}

// ListAll retrieves every active order with its items.
func (r *GORMOrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetActive retrieves an active order with its items by ID.
func (r *GORMOrderRepository) GetActive(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ? AND is_active = ?", id, true).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return &order, nil
}

// UpdateStatus moves order to status when it still holds its loaded status,
// returning stock when restock is set.
func (r *GORMOrderRepository) UpdateStatus(ctx context.Context, order *models.Order, status models.OrderStatus, restock bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND is_active = ?", order.ID, order.Status, true).
			Update("status", status)
		if res.Error != nil {
			return fmt.Errorf("failed to update status of order %s: %w", order.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another request changed the status first.
			return ErrNotFound
		}

		if restock {
			for _, item := range order.Items {
				err := tx.Model(&models.Product{}).
					Where("id = ?", item.ProductID).
					Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error
				if err != nil {
					return fmt.Errorf("failed to restock product %s: %w", item.ProductID, err)
				}
			}
		}
		order.Status = status
		return nil
	})
}
