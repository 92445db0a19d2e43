package services

import (
	"context"
	"errors"

	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput is the writable part of a product. Rating is derived from
// reviews and cannot be set.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,min=3,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Stock       int             `json:"stock" validate:"gte=0"`
	ImageURL    string          `json:"image_url" validate:"omitempty,max=255"`
	CategoryID  string          `json:"category_id" validate:"required,uuid"`
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo         repositories.ProductRepository
	categoryRepo repositories.CategoryRepository
	cache        cache.Store
}

// NewProductService creates a new ProductService. A nil store disables caching.
func NewProductService(repo repositories.ProductRepository, categoryRepo repositories.CategoryRepository, store cache.Store) *ProductService {
	if store == nil {
		store = cache.Nop{}
	}
	return &ProductService{
		repo:         repo,
		categoryRepo: categoryRepo,
		cache:        store,
	}
}

// GetAllProducts returns active, in-stock products of active categories.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return cache.Remember(ctx, s.cache, cache.KeyProducts, s.repo.ListAvailable)
}

// GetProductsByCategory returns the active products of an active category.
func (s *ProductService) GetProductsByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	if _, err := s.categoryRepo.GetActive(ctx, categoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found or inactive")
		}
		return nil, err
	}
	return s.repo.ListByCategory(ctx, categoryID)
}

// GetProductByID returns an active product whose category is active too.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.activeProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.categoryRepo.GetActive(ctx, product.CategoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found or inactive")
		}
		return nil, err
	}
	return product, nil
}

// CreateProduct stores a product owned by seller.
func (s *ProductService) CreateProduct(ctx context.Context, seller *models.User, input ProductInput) (*models.Product, error) {
	if err := s.requireCategory(ctx, input.CategoryID, "Category not found"); err != nil {
		return nil, err
	}

	product := &models.Product{SellerID: seller.ID}
	input.apply(product)
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	logger.FromContext(ctx).Info("product created",
		zap.String("product_id", product.ID),
		zap.String("seller_id", seller.ID),
	)
	return product, nil
}

// UpdateProduct applies input to a product owned by seller and returns the
// stored result.
func (s *ProductService) UpdateProduct(ctx context.Context, seller *models.User, id string, input ProductInput) (*models.Product, error) {
	product, err := s.ownedProduct(ctx, seller, id, "You can only update your own products")
	if err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, input.CategoryID, "Category not found or inactive"); err != nil {
		return nil, err
	}

	input.apply(product)
	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found or inactive")
		}
		return nil, err
	}
	s.invalidate(ctx)
	return s.activeProduct(ctx, id)
}

// DeleteProduct soft-deletes a product owned by seller.
func (s *ProductService) DeleteProduct(ctx context.Context, seller *models.User, id string) (*models.Product, error) {
	product, err := s.ownedProduct(ctx, seller, id, "You can only delete your own products")
	if err != nil {
		return nil, err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found or inactive")
		}
		return nil, err
	}
	product.IsActive = false
	s.invalidate(ctx)
	return product, nil
}

func (s *ProductService) activeProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found or inactive")
		}
		return nil, err
	}
	return product, nil
}

func (s *ProductService) ownedProduct(ctx context.Context, seller *models.User, id, forbidden string) (*models.Product, error) {
	product, err := s.activeProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.SellerID != seller.ID {
		return nil, Forbidden("%s", forbidden)
	}
	return product, nil
}

func (s *ProductService) requireCategory(ctx context.Context, categoryID, message string) error {
	if _, err := s.categoryRepo.GetActive(ctx, categoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return BadRequest("%s", message)
		}
		return err
	}
	return nil
}

func (s *ProductService) invalidate(ctx context.Context) {
	cache.Invalidate(ctx, s.cache, cache.KeyProducts)
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.ImageURL = in.ImageURL
	p.CategoryID = in.CategoryID
}
