package repositories_test

import (
	"context"
	"strings"
	"testing"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_") + "_" + uuid.NewString()
	db, err := database.OpenMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	seller   *models.User
	buyer    *models.User
	category *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), db: newTestDB(t)}
	users := repositories.NewGORMUserRepository(f.db)

	f.seller = &models.User{Email: "seller@example.com", Password: "x", Role: models.RoleSeller}
	require.NoError(t, users.Create(f.ctx, f.seller))
	f.buyer = &models.User{Email: "buyer@example.com", Password: "x", Role: models.RoleBuyer}
	require.NoError(t, users.Create(f.ctx, f.buyer))

	f.category = &models.Category{Name: "Electronics"}
	require.NoError(t, repositories.NewGORMCategoryRepository(f.db).Create(f.ctx, f.category))
	return f
}

func (f *fixture) product(t *testing.T, name string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:       name,
		Price:      decimal.RequireFromString("10.50"),
		Stock:      stock,
		CategoryID: f.category.ID,
		SellerID:   f.seller.ID,
	}
	require.NoError(t, repositories.NewGORMProductRepository(f.db).Create(f.ctx, p))
	return p
}
