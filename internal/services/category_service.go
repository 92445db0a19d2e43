package services

import (
	"context"
	"errors"

	"storefront/internal/cache"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// maxCategoryDepth bounds the ancestor walk when checking for cycles.
const maxCategoryDepth = 64

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name     string  `json:"name" validate:"required,min=2,max=100"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

// CategoryService handles business logic related to categories.
type CategoryService struct {
	repo  repositories.CategoryRepository
	cache cache.Store
}

// NewCategoryService creates a new CategoryService. A nil store disables caching.
func NewCategoryService(repo repositories.CategoryRepository, store cache.Store) *CategoryService {
	if store == nil {
		store = cache.Nop{}
	}
	return &CategoryService{repo: repo, cache: store}
}

// GetAllCategories returns every active category.
func (s *CategoryService) GetAllCategories(ctx context.Context) ([]models.Category, error) {
	return cache.Remember(ctx, s.cache, cache.KeyCategories, s.repo.ListActive)
}

// CreateCategory stores a new category under an optional active parent.
func (s *CategoryService) CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error) {
	if input.ParentID != nil {
		if _, err := s.repo.GetActive(ctx, *input.ParentID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, BadRequest("Category parent not found")
			}
			return nil, err
		}
	}

	category := &models.Category{Name: input.Name, ParentID: input.ParentID}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return category, nil
}

// UpdateCategory replaces name and parent of an active category and returns
// the stored result.
func (s *CategoryService) UpdateCategory(ctx context.Context, id string, input CategoryInput) (*models.Category, error) {
	if _, err := s.repo.GetActive(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found")
		}
		return nil, err
	}

	if input.ParentID != nil {
		if err := s.checkParent(ctx, id, *input.ParentID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, id, input.Name, input.ParentID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found")
		}
		return nil, err
	}
	s.invalidate(ctx)

	updated, err := s.repo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found")
		}
		return nil, err
	}
	return updated, nil
}

// checkParent rejects a parent that is missing, inactive, the category
// itself, or one of its descendants.
func (s *CategoryService) checkParent(ctx context.Context, id, parentID string) error {
	if parentID == id {
		return BadRequest("Category cannot be its own parent")
	}

	current := parentID
	for depth := 0; depth < maxCategoryDepth; depth++ {
		ancestor, err := s.repo.GetActive(ctx, current)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				return err
			}
			if depth == 0 {
				return BadRequest("Parent category not found")
			}
			return nil
		}
		if ancestor.ParentID == nil {
			return nil
		}
		if *ancestor.ParentID == id {
			return BadRequest("Category cannot be moved under its own subcategory")
		}
		current = *ancestor.ParentID
	}
	return BadRequest("Category tree is too deep")
}

// DeleteCategory soft-deletes an active category and returns it.
func (s *CategoryService) DeleteCategory(ctx context.Context, id string) (*models.Category, error) {
	category, err := s.repo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found")
		}
		return nil, err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Category not found")
		}
		return nil, err
	}
	category.IsActive = false
	s.invalidate(ctx)
	return category, nil
}

// Products of a category drop out of the product listing with it.
func (s *CategoryService) invalidate(ctx context.Context) {
	cache.Invalidate(ctx, s.cache, cache.KeyCategories, cache.KeyProducts)
}
