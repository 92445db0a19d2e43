package repositories

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMReviewRepository is a GORM implementation of ReviewRepository.
type GORMReviewRepository struct {
	db *gorm.DB
}

// NewGORMReviewRepository creates a new instance of GORMReviewRepository.
func NewGORMReviewRepository(db *gorm.DB) *GORMReviewRepository {
	return &GORMReviewRepository{db: db}
}

// ListActive retrieves all active reviews.
func (r *GORMReviewRepository) ListActive(ctx context.Context) ([]models.Review, error) {
	reviews := []models.Review{}
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// ListByProduct retrieves the active reviews of a product.
func (r *GORMReviewRepository) ListByProduct(ctx context.Context, productID string) ([]models.Review, error) {
	reviews := []models.Review{}
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND is_active = ?", productID, true).
		Order("created_at").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews of product %s: %w", productID, err)
	}
	return reviews, nil
}

// GetActive retrieves an active review by its ID.
func (r *GORMReviewRepository) GetActive(ctx context.Context, id string) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review %s: %w", id, err)
	}
	return &review, nil
}

// CreateAndRate inserts review and refreshes the product rating in one
// transaction.
func (r *GORMReviewRepository) CreateAndRate(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockProduct(tx, review.ProductID); err != nil {
			return err
		}
		review.IsActive = true
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
		return refreshRating(tx, review.ProductID)
	})
}

// DeactivateAndRate soft-deletes review and refreshes the product rating in
// one transaction.
func (r *GORMReviewRepository) DeactivateAndRate(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockProduct(tx, review.ProductID); err != nil {
			return err
		}
		res := tx.Model(&models.Review{}).
			Where("id = ? AND is_active = ?", review.ID, true).
			Update("is_active", false)
		if res.Error != nil {
			return fmt.Errorf("failed to delete review %s: %w", review.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		review.IsActive = false
		return refreshRating(tx, review.ProductID)
	})
}

// lockProduct serializes rating updates of one product.
func lockProduct(tx *gorm.DB, productID string) error {
	var ids []string
	err := tx.Model(&models.Product{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to lock product %s: %w", productID, err)
	}
	return nil
}

// refreshRating sets the product rating to the mean grade of its active
// reviews. Callers hold the product lock.
func refreshRating(tx *gorm.DB, productID string) error {
	avg := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(grade), 0)").
		Where("product_id = ? AND is_active = ?", productID, true)

	err := tx.Model(&models.Product{}).
		Where("id = ?", productID).
		Update("rating", avg).Error
	if err != nil {
		return fmt.Errorf("failed to update rating of product %s: %w", productID, err)
	}
	return nil
}
