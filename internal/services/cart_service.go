package services

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
)

// CartLineInput adds a quantity of a product to the cart.
type CartLineInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// QuantityInput sets the quantity of an existing cart line.
type QuantityInput struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// Cart is the buyer's active cart with its running total.
type Cart struct {
	Items []models.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

// CartService handles business logic related to carts.
type CartService struct {
	repo         repositories.CartRepository
	productRepo  repositories.ProductRepository
	categoryRepo repositories.CategoryRepository
}

// NewCartService creates a new CartService.
func NewCartService(repo repositories.CartRepository, productRepo repositories.ProductRepository, categoryRepo repositories.CategoryRepository) *CartService {
	return &CartService{repo: repo, productRepo: productRepo, categoryRepo: categoryRepo}
}

// GetCart returns the user's active cart lines and their total.
func (s *CartService) GetCart(ctx context.Context, user *models.User) (*Cart, error) {
	items, err := s.repo.ListActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Cart{Items: items, Total: cartTotal(items)}, nil
}

// AddItem adds input.Quantity of a product to the cart, merging with an
// existing line.
func (s *CartService) AddItem(ctx context.Context, user *models.User, input CartLineInput) (*models.CartItem, error) {
	product, err := s.purchasableProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	line, err := s.repo.GetActiveLine(ctx, user.ID, input.ProductID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	if line == nil {
		if input.Quantity > product.Stock {
			return nil, outOfStock(product)
		}
		line = &models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: input.Quantity}
		err := s.repo.Create(ctx, line)
		if err == nil {
			line.Product = product
			return line, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
		// Another request opened the line first.
		if line, err = s.line(ctx, user, product.ID); err != nil {
			return nil, err
		}
	}

	if line.Quantity+input.Quantity > product.Stock {
		return nil, outOfStock(product)
	}
	if err := s.repo.AddQuantity(ctx, line.ID, input.Quantity, product.Stock); err != nil {
		if errors.Is(err, repositories.ErrInsufficientStock) {
			return nil, outOfStock(product)
		}
		return nil, err
	}

	line, err = s.line(ctx, user, product.ID)
	if err != nil {
		return nil, err
	}
	line.Product = product
	return line, nil
}

// SetQuantity replaces the quantity of an existing cart line.
func (s *CartService) SetQuantity(ctx context.Context, user *models.User, productID string, quantity int) (*models.CartItem, error) {
	line, err := s.line(ctx, user, productID)
	if err != nil {
		return nil, err
	}
	product, err := s.purchasableProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, outOfStock(product)
	}

	if err := s.repo.UpdateQuantity(ctx, line.ID, quantity); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Cart item not found")
		}
		return nil, err
	}
	line.Quantity = quantity
	line.Product = product
	return line, nil
}

// RemoveItem soft-deletes the cart line of productID.
func (s *CartService) RemoveItem(ctx context.Context, user *models.User, productID string) error {
	line, err := s.line(ctx, user, productID)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, line.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("Cart item not found")
		}
		return err
	}
	return nil
}

// Clear soft-deletes every active line of the user's cart.
func (s *CartService) Clear(ctx context.Context, user *models.User) error {
	return s.repo.Clear(ctx, user.ID)
}

func (s *CartService) line(ctx context.Context, user *models.User, productID string) (*models.CartItem, error) {
	line, err := s.repo.GetActiveLine(ctx, user.ID, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Cart item not found")
		}
		return nil, err
	}
	return line, nil
}

// purchasableProduct returns an active product whose category is active.
func (s *CartService) purchasableProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.productRepo.GetActive(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found or inactive")
		}
		return nil, err
	}
	if _, err := s.categoryRepo.GetActive(ctx, product.CategoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Product not found or inactive")
		}
		return nil, err
	}
	return product, nil
}

func outOfStock(product *models.Product) error {
	return BadRequest("Only %d items of product %s in stock", product.Stock, product.ID)
}

func cartTotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
