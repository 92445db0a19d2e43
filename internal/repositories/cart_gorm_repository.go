package repositories

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"gorm.io/gorm"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// ListActive retrieves the user's active lines whose product and category are
// both still active.
func (r *GORMCartRepository) ListActive(ctx context.Context, userID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := r.db.WithContext(ctx).
		Joins("JOIN products ON products.id = cart_items.product_id AND products.is_active = ?", true).
		Joins("JOIN categories ON categories.id = products.category_id AND categories.is_active = ?", true).
		Preload("Product").
		Where("cart_items.user_id = ? AND cart_items.is_active = ?", userID, true).
		Order("cart_items.created_at").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart of user %s: %w", userID, err)
	}
	return items, nil
}

// GetActiveLine retrieves the user's active line for a product.
func (r *GORMCartRepository) GetActiveLine(ctx context.Context, userID, productID string) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND is_active = ?", userID, productID, true).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart line: %w", err)
	}
	return &item, nil
}

// Create inserts a new active line. A second active line for the same user and
// product fails with ErrDuplicate.
func (r *GORMCartRepository) Create(ctx context.Context, item *models.CartItem) error {
	item.IsActive = true
	if err := r.db.WithContext(ctx).Omit("Product").Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create cart line: %w", err)
	}
	return nil
}

// UpdateQuantity sets the quantity of an active line.
func (r *GORMCartRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("quantity", quantity)
	if res.Error != nil {
		return fmt.Errorf("failed to update cart line %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddQuantity increments an active line by delta in one statement. It fails
// with ErrInsufficientStock when the result would exceed max.
func (r *GORMCartRepository) AddQuantity(ctx context.Context, id string, delta, max int) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ? AND is_active = ? AND quantity + ? <= ?", id, true, delta, max).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to add to cart line %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cart line %s: %w", id, ErrInsufficientStock)
	}
	return nil
}

// Deactivate soft-deletes an active line.
func (r *GORMCartRepository) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to remove cart line %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear soft-deletes every active line of the user.
func (r *GORMCartRepository) Clear(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear cart of user %s: %w", userID, err)
	}
	return nil
}
