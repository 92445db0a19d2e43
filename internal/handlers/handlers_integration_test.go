package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test_jwt_secret"

type testEnv struct {
	t    *testing.T
	app  *fiber.App
	auth *services.AuthService
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenMemory("handlers-" + uuid.NewString())
	require.NoError(t, err)

	userRepo := repositories.NewGORMUserRepository(db)
	categoryRepo := repositories.NewGORMCategoryRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	reviewRepo := repositories.NewGORMReviewRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)

	authService := services.NewAuthService(userRepo, testJWTSecret, time.Hour)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(zap.NewNop()))

	authRequired := middleware.AuthRequired(authService)
	handlers.NewAuthHandler(authService).RegisterRoutes(app, authRequired)
	handlers.NewCategoryHandler(services.NewCategoryService(categoryRepo, nil)).RegisterRoutes(app, authRequired)
	handlers.NewProductHandler(services.NewProductService(productRepo, categoryRepo, nil)).RegisterRoutes(app, authRequired)
	handlers.NewReviewHandler(services.NewReviewService(reviewRepo, productRepo, nil)).RegisterRoutes(app, authRequired)
	handlers.NewCartHandler(services.NewCartService(cartRepo, productRepo, categoryRepo)).RegisterRoutes(app, authRequired)
	handlers.NewOrderHandler(services.NewOrderService(orderRepo, cartRepo, nil, nil)).RegisterRoutes(app, authRequired)

	return &testEnv{t: t, app: app, auth: authService}
}

// call sends a JSON request and decodes the response into out when given.
func (e *testEnv) call(method, path, token string, body interface{}, out interface{}) int {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// user registers an account with role and returns its access token.
func (e *testEnv) user(email string, role models.Role) string {
	e.t.Helper()
	status := e.call(http.MethodPost, "/users/", "", fiber.Map{
		"email":    email,
		"password": "password123",
		"name":     "Test User",
		"role":     role,
	}, nil)
	require.Equal(e.t, http.StatusCreated, status)
	return e.login(email, "password123")
}

func (e *testEnv) login(email, password string) string {
	e.t.Helper()
	var resp map[string]string
	status := e.call(http.MethodPost, "/users/token", "", fiber.Map{"email": email, "password": password}, &resp)
	require.Equal(e.t, http.StatusOK, status)
	assert.Equal(e.t, "bearer", resp["token_type"])
	return resp["access_token"]
}

func (e *testEnv) admin() string {
	e.t.Helper()
	_, err := e.auth.CreateAdmin(context.Background(), "admin@example.com", "password123", "Admin")
	require.NoError(e.t, err)
	return e.login("admin@example.com", "password123")
}

func (e *testEnv) category(token, name string, parentID *string) models.Category {
	e.t.Helper()
	var category models.Category
	status := e.call(http.MethodPost, "/categories/", token, fiber.Map{"name": name, "parent_id": parentID}, &category)
	require.Equal(e.t, http.StatusCreated, status)
	return category
}

func (e *testEnv) product(token, categoryID, name string, stock int) models.Product {
	e.t.Helper()
	var product models.Product
	status := e.call(http.MethodPost, "/products/", token, fiber.Map{
		"name":        name,
		"description": "For testing purposes",
		"price":       12.5,
		"stock":       stock,
		"category_id": categoryID,
	}, &product)
	require.Equal(e.t, http.StatusCreated, status)
	return product
}

func TestAuthRegisterAndLogin(t *testing.T) {
	env := setupApp(t)

	var registered map[string]interface{}
	status := env.call(http.MethodPost, "/users/", "", fiber.Map{
		"email":    "test@example.com",
		"password": "password123",
		"name":     "Test User",
	}, &registered)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "buyer", registered["role"])
	assert.NotContains(t, registered, "password")

	// Duplicate email
	status = env.call(http.MethodPost, "/users/", "", fiber.Map{
		"email":    "test@example.com",
		"password": "password123",
		"name":     "Test User",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Admin cannot self-register
	status = env.call(http.MethodPost, "/users/", "", fiber.Map{
		"email":    "root@example.com",
		"password": "password123",
		"name":     "Root",
		"role":     "admin",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Short password
	var validation map[string]interface{}
	status = env.call(http.MethodPost, "/users/", "", fiber.Map{
		"email":    "short@example.com",
		"password": "123",
		"name":     "Short",
	}, &validation)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, validation["errors"], "password")

	token := env.login("test@example.com", "password123")
	claims, err := env.auth.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "buyer", claims["role"])

	status = env.call(http.MethodPost, "/users/token", "", fiber.Map{"email": "test@example.com", "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var me models.User
	status = env.call(http.MethodGet, "/users/me", token, nil, &me)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test@example.com", me.Email)
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	env := setupApp(t)
	token := env.user("gone@example.com", models.RoleBuyer)

	status := env.call(http.MethodDelete, "/users/me", token, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status = env.call(http.MethodGet, "/users/me", token, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.call(http.MethodPost, "/users/token", "", fiber.Map{"email": "gone@example.com", "password": "password123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCategoryEndpoints(t *testing.T) {
	env := setupApp(t)
	admin := env.admin()
	buyer := env.user("buyer@example.com", models.RoleBuyer)

	// Creation requires an admin
	status := env.call(http.MethodPost, "/categories/", "", fiber.Map{"name": "Books"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status = env.call(http.MethodPost, "/categories/", buyer, fiber.Map{"name": "Books"}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	root := env.category(admin, "Books", nil)
	child := env.category(admin, "Poetry", &root.ID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	// Parent that does not exist
	var errResp map[string]string
	missing := uuid.NewString()
	status = env.call(http.MethodPost, "/categories/", admin, fiber.Map{"name": "Lost", "parent_id": missing}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Category parent not found", errResp["message"])

	// Update returns the stored record
	var updated models.Category
	status = env.call(http.MethodPut, "/categories/"+child.ID, "", fiber.Map{"name": "Verse", "parent_id": root.ID}, &updated)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Verse", updated.Name)

	// A category cannot move under its own subcategory
	status = env.call(http.MethodPut, "/categories/"+root.ID, "", fiber.Map{"name": "Books", "parent_id": child.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Delete twice
	var deleted models.Category
	status = env.call(http.MethodDelete, "/categories/"+child.ID, "", nil, &deleted)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, deleted.IsActive)
	status = env.call(http.MethodDelete, "/categories/"+child.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Inactive category as parent
	status = env.call(http.MethodPost, "/categories/", admin, fiber.Map{"name": "Orphan", "parent_id": child.ID}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Category parent not found", errResp["message"])

	var categories []models.Category
	status = env.call(http.MethodGet, "/categories/", "", nil, &categories)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, categories, 1)
	assert.Equal(t, root.ID, categories[0].ID)
}

func TestProductEndpoints(t *testing.T) {
	env := setupApp(t)
	admin := env.admin()
	seller := env.user("seller@example.com", models.RoleSeller)
	otherSeller := env.user("other@example.com", models.RoleSeller)
	buyer := env.user("buyer@example.com", models.RoleBuyer)

	books := env.category(admin, "Books", nil)
	toys := env.category(admin, "Toys", nil)

	// Only sellers create products
	status := env.call(http.MethodPost, "/products/", buyer, fiber.Map{
		"name": "Novel", "price": 10, "stock": 1, "category_id": books.ID,
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Unknown category
	var errResp map[string]string
	status = env.call(http.MethodPost, "/products/", seller, fiber.Map{
		"name": "Novel", "price": 10, "stock": 1, "category_id": uuid.NewString(),
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Category not found", errResp["message"])

	// Price must be positive
	var validation map[string]interface{}
	status = env.call(http.MethodPost, "/products/", seller, fiber.Map{
		"name": "Novel", "price": 0, "stock": 1, "category_id": books.ID,
	}, &validation)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, validation["errors"], "price")

	novel := env.product(seller, books.ID, "Novel", 3)
	assert.Equal(t, 0.0, novel.Rating)
	assert.Equal(t, "12.50", novel.Price.StringFixed(2))
	env.product(seller, books.ID, "Sold out", 0)
	robot := env.product(seller, toys.ID, "Robot", 2)

	// Listing hides out of stock products and inactive categories
	status = env.call(http.MethodDelete, "/categories/"+toys.ID, "", nil, nil)
	require.Equal(t, http.StatusOK, status)

	var products []models.Product
	status = env.call(http.MethodGet, "/products/", "", nil, &products)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, products, 1)
	assert.Equal(t, novel.ID, products[0].ID)

	status = env.call(http.MethodGet, "/products/"+robot.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status = env.call(http.MethodGet, "/products/category/"+toys.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var byCategory []models.Product
	status = env.call(http.MethodGet, "/products/category/"+books.ID, "", nil, &byCategory)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, byCategory, 2)

	// Only the owning seller edits
	update := fiber.Map{
		"name": "Novel, 2nd edition", "description": "Revised", "price": "15.00",
		"stock": 7, "category_id": books.ID,
	}
	status = env.call(http.MethodPut, "/products/"+novel.ID, otherSeller, update, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var updated models.Product
	status = env.call(http.MethodPut, "/products/"+novel.ID, seller, update, &updated)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Novel, 2nd edition", updated.Name)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, "15.00", updated.Price.StringFixed(2))

	// Moving to an inactive category
	update["category_id"] = toys.ID
	status = env.call(http.MethodPut, "/products/"+novel.ID, seller, update, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.call(http.MethodDelete, "/products/"+novel.ID, otherSeller, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status = env.call(http.MethodDelete, "/products/"+novel.ID, seller, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	status = env.call(http.MethodDelete, "/products/"+novel.ID, seller, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status = env.call(http.MethodGet, "/products/"+novel.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReviewEndpoints(t *testing.T) {
	env := setupApp(t)
	admin := env.admin()
	seller := env.user("seller@example.com", models.RoleSeller)
	alice := env.user("alice@example.com", models.RoleBuyer)
	bob := env.user("bob@example.com", models.RoleBuyer)

	books := env.category(admin, "Books", nil)
	novel := env.product(seller, books.ID, "Novel", 3)

	// Only buyers review
	status := env.call(http.MethodPost, "/reviews/reviews", seller, fiber.Map{"product_id": novel.ID, "grade": 5}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Missing product
	var errResp map[string]string
	status = env.call(http.MethodPost, "/reviews/reviews", alice, fiber.Map{"product_id": uuid.NewString(), "grade": 5}, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Product not found", errResp["message"])

	// Grade out of range
	status = env.call(http.MethodPost, "/reviews/reviews", alice, fiber.Map{"product_id": novel.ID, "grade": 6}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var first models.Review
	status = env.call(http.MethodPost, "/reviews/reviews", alice, fiber.Map{"product_id": novel.ID, "grade": 4, "comment": "Nice"}, &first)
	require.Equal(t, http.StatusCreated, status)
	var second models.Review
	status = env.call(http.MethodPost, "/reviews/reviews", bob, fiber.Map{"product_id": novel.ID, "grade": 2}, &second)
	require.Equal(t, http.StatusCreated, status)

	var product models.Product
	env.call(http.MethodGet, "/products/"+novel.ID, "", nil, &product)
	assert.InDelta(t, 3.0, product.Rating, 0.0001)

	var reviews []models.Review
	status = env.call(http.MethodGet, "/reviews/products/"+novel.ID+"/reviews", "", nil, &reviews)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, reviews, 2)

	// Neither author nor admin
	status = env.call(http.MethodDelete, "/reviews/"+first.ID, bob, nil, &errResp)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only owner or admin can delete review", errResp["message"])

	var msg map[string]string
	status = env.call(http.MethodDelete, "/reviews/"+first.ID, alice, nil, &msg)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Review deleted", msg["message"])
	status = env.call(http.MethodDelete, "/reviews/"+first.ID, alice, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	env.call(http.MethodGet, "/products/"+novel.ID, "", nil, &product)
	assert.InDelta(t, 2.0, product.Rating, 0.0001)

	// Admin may delete any review
	status = env.call(http.MethodDelete, "/reviews/"+second.ID, admin, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	var all []models.Review
	env.call(http.MethodGet, "/reviews/", "", nil, &all)
	assert.Empty(t, all)
}

func TestCartCheckoutAndOrders(t *testing.T) {
	env := setupApp(t)
	admin := env.admin()
	seller := env.user("seller@example.com", models.RoleSeller)
	buyer := env.user("buyer@example.com", models.RoleBuyer)
	other := env.user("other@example.com", models.RoleBuyer)

	books := env.category(admin, "Books", nil)
	novel := env.product(seller, books.ID, "Novel", 3)

	// Sellers have no cart
	status := env.call(http.MethodGet, "/cart/", seller, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Empty cart cannot be checked out
	status = env.call(http.MethodPost, "/orders/checkout", buyer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.call(http.MethodPost, "/cart/items", buyer, fiber.Map{"product_id": novel.ID, "quantity": 4}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status = env.call(http.MethodPost, "/cart/items", buyer, fiber.Map{"product_id": novel.ID, "quantity": 1}, nil)
	assert.Equal(t, http.StatusCreated, status)
	status = env.call(http.MethodPut, "/cart/items/"+novel.ID, buyer, fiber.Map{"quantity": 2}, nil)
	assert.Equal(t, http.StatusOK, status)

	var cart services.Cart
	status = env.call(http.MethodGet, "/cart/", buyer, nil, &cart)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "25.00", cart.Total.StringFixed(2))

	var order models.Order
	status = env.call(http.MethodPost, "/orders/checkout", buyer, nil, &order)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "25.00", order.TotalAmount.StringFixed(2))

	// Stock was reserved and the cart emptied
	var product models.Product
	env.call(http.MethodGet, "/products/"+novel.ID, "", nil, &product)
	assert.Equal(t, 1, product.Stock)
	env.call(http.MethodGet, "/cart/", buyer, nil, &cart)
	assert.Empty(t, cart.Items)

	// Visibility
	status = env.call(http.MethodGet, "/orders/"+order.ID, other, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status = env.call(http.MethodGet, "/orders/"+order.ID, admin, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	var mine []models.Order
	env.call(http.MethodGet, "/orders/", buyer, nil, &mine)
	assert.Len(t, mine, 1)
	var theirs []models.Order
	env.call(http.MethodGet, "/orders/", other, nil, &theirs)
	assert.Empty(t, theirs)

	// Status changes are admin only; cancelling restocks
	status = env.call(http.MethodPatch, "/orders/"+order.ID+"/status", buyer, fiber.Map{"status": "cancelled"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status = env.call(http.MethodPatch, "/orders/"+order.ID+"/status", admin, fiber.Map{"status": "lost"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var cancelled models.Order
	status = env.call(http.MethodPatch, "/orders/"+order.ID+"/status", admin, fiber.Map{"status": "cancelled"}, &cancelled)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	env.call(http.MethodGet, "/products/"+novel.ID, "", nil, &product)
	assert.Equal(t, 3, product.Stock)

	status = env.call(http.MethodPatch, "/orders/"+order.ID+"/status", admin, fiber.Map{"status": "paid"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCartHidesUnavailableProducts(t *testing.T) {
	env := setupApp(t)
	admin := env.admin()
	seller := env.user("seller@example.com", models.RoleSeller)
	buyer := env.user("buyer@example.com", models.RoleBuyer)

	books := env.category(admin, "Books", nil)
	toys := env.category(admin, "Toys", nil)
	novel := env.product(seller, books.ID, "Novel", 5)
	kite := env.product(seller, toys.ID, "Kite", 5)

	status := env.call(http.MethodPost, "/cart/items", buyer, fiber.Map{"product_id": novel.ID, "quantity": 2}, nil)
	require.Equal(t, http.StatusCreated, status)
	status = env.call(http.MethodPost, "/cart/items", buyer, fiber.Map{"product_id": kite.ID, "quantity": 1}, nil)
	require.Equal(t, http.StatusCreated, status)

	// Seller removes the novel
	status = env.call(http.MethodDelete, "/products/"+novel.ID, seller, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var cart services.Cart
	status = env.call(http.MethodGet, "/cart/", buyer, nil, &cart)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, kite.ID, cart.Items[0].ProductID)
	assert.Equal(t, "12.50", cart.Total.StringFixed(2))

	// The kite's category goes away too
	status = env.call(http.MethodDelete, "/categories/"+toys.ID, "", nil, nil)
	require.Equal(t, http.StatusOK, status)

	cart = services.Cart{}
	status = env.call(http.MethodGet, "/cart/", buyer, nil, &cart)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())

	status = env.call(http.MethodPost, "/orders/checkout", buyer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var product models.Product
	status = env.call(http.MethodGet, "/products/"+kite.ID, "", nil, &product)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnauthenticatedRequests(t *testing.T) {
	env := setupApp(t)

	status := env.call(http.MethodGet, "/cart/", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status = env.call(http.MethodGet, "/orders/", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Public listings stay open
	status = env.call(http.MethodGet, "/products/", "", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", body["message"])
}
