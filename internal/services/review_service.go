package services

import (
	"context"
	"errors"

	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"go.uber.org/zap"
)

// ReviewInput is the body of a new review.
type ReviewInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Grade     int    `json:"grade" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"omitempty,max=1000"`
}

// ReviewService handles business logic related to reviews.
type ReviewService struct {
	repo        repositories.ReviewRepository
	productRepo repositories.ProductRepository
	cache       cache.Store
}

// NewReviewService creates a new ReviewService. A nil store disables caching.
func NewReviewService(repo repositories.ReviewRepository, productRepo repositories.ProductRepository, store cache.Store) *ReviewService {
	if store == nil {
		store = cache.Nop{}
	}
	return &ReviewService{repo: repo, productRepo: productRepo, cache: store}
}

func (s *ReviewService) GetAllReviews(ctx context.Context) ([]models.Review, error) {
	return s.repo.ListActive(ctx)
}

// GetProductReviews returns the active reviews of an active product.
func (s *ReviewService) GetProductReviews(ctx context.Context, productID string) ([]models.Review, error) {
	if _, err := s.productRepo.GetActive(ctx, productID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found")
		}
		return nil, err
	}
	return s.repo.ListByProduct(ctx, productID)
}

// CreateReview stores a review by buyer and refreshes the product rating.
func (s *ReviewService) CreateReview(ctx context.Context, buyer *models.User, input ReviewInput) (*models.Review, error) {
	if _, err := s.productRepo.GetActive(ctx, input.ProductID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found")
		}
		return nil, err
	}

	review := &models.Review{
		ProductID: input.ProductID,
		UserID:    buyer.ID,
		Grade:     input.Grade,
		Comment:   input.Comment,
	}
	if err := s.repo.CreateAndRate(ctx, review); err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, s.cache, cache.KeyProducts)

	logger.FromContext(ctx).Info("review created",
		zap.String("review_id", review.ID),
		zap.String("product_id", review.ProductID),
		zap.Int("grade", review.Grade),
	)
	return review, nil
}

// DeleteReview soft-deletes a review. Only its author or an admin may do so.
func (s *ReviewService) DeleteReview(ctx context.Context, actor *models.User, id string) error {
	review, err := s.repo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("Review not found")
		}
		return err
	}
	if review.UserID != actor.ID && actor.Role != models.RoleAdmin {
		return Forbidden("Only owner or admin can delete review")
	}

	if err := s.repo.DeactivateAndRate(ctx, review); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("Review not found")
		}
		return err
	}
	cache.Invalidate(ctx, s.cache, cache.KeyProducts)
	return nil
}
