package services

import (
	"context"
	"errors"
	"time"

	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Routing keys of the order lifecycle events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// EventPublisher delivers domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// OrderEvent is the payload of every order lifecycle event.
type OrderEvent struct {
	OrderID        string             `json:"order_id"`
	UserID         string             `json:"user_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// StatusInput is the body of an order status change.
type StatusInput struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	orderRepo repositories.OrderRepository
	cartRepo  repositories.CartRepository
	publisher EventPublisher
	cache     cache.Store
}

// NewOrderService creates a new OrderService. A nil publisher disables events
// and a nil store disables caching.
func NewOrderService(orderRepo repositories.OrderRepository, cartRepo repositories.CartRepository, publisher EventPublisher, store cache.Store) *OrderService {
	if store == nil {
		store = cache.Nop{}
	}
	return &OrderService{
		orderRepo: orderRepo,
		cartRepo:  cartRepo,
		publisher: publisher,
		cache:     store,
	}
}

// Checkout turns the buyer's active cart into a pending order.
func (s *OrderService) Checkout(ctx context.Context, buyer *models.User) (*models.Order, error) {
	lines, err := s.cartRepo.ListActive(ctx, buyer.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, BadRequest("Cart is empty")
	}

	order := &models.Order{
		UserID:      buyer.ID,
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.Zero,
	}
	lineIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Product == nil || !line.Product.IsActive {
			return nil, BadRequest("Product %s is no longer available", line.ProductID)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
		order.TotalAmount = order.TotalAmount.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		lineIDs = append(lineIDs, line.ID)
	}

	if err := s.orderRepo.Place(ctx, order, lineIDs); err != nil {
		if errors.Is(err, repositories.ErrInsufficientStock) {
			return nil, BadRequest("%v", err)
		}
		return nil, err
	}
	cache.Invalidate(ctx, s.cache, cache.KeyProducts)

	logger.FromContext(ctx).Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", buyer.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	s.publish(ctx, EventOrderCreated, order, "")
	return order, nil
}

// ListOrders returns the user's orders, or every order for an admin.
func (s *OrderService) ListOrders(ctx context.Context, user *models.User) ([]models.Order, error) {
	if user.Role == models.RoleAdmin {
		return s.orderRepo.ListAll(ctx)
	}
	return s.orderRepo.ListByUser(ctx, user.ID)
}

// GetOrder returns an order visible to user.
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, id string) (*models.Order, error) {
	order, err := s.activeOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID && user.Role != models.RoleAdmin {
		return nil, Forbidden("You can only view your own orders")
	}
	return order, nil
}

// UpdateOrderStatus moves an order to status. Cancelling returns the items
// to stock. Cancelled and delivered orders are final.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, BadRequest("invalid order status: %s", status)
	}

	order, err := s.activeOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusDelivered {
		return nil, BadRequest("Order is already %s", order.Status)
	}

	previous := order.Status
	restock := status == models.OrderStatusCancelled
	if err := s.orderRepo.UpdateStatus(ctx, order, status, restock); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, Conflict("Order %s was modified concurrently", id)
		}
		return nil, err
	}
	if restock {
		cache.Invalidate(ctx, s.cache, cache.KeyProducts)
	}

	logger.FromContext(ctx).Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	s.publish(ctx, EventOrderStatusChanged, order, previous)
	return order, nil
}

func (s *OrderService) activeOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("Order not found")
		}
		return nil, err
	}
	return order, nil
}

// publish sends an order event. The order is already committed, so a broker
// failure is only logged.
func (s *OrderService) publish(ctx context.Context, routingKey string, order *models.Order, previous models.OrderStatus) {
	if s.publisher == nil {
		return
	}
	event := OrderEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		logger.FromContext(ctx).Warn("failed to publish order event",
			zap.String("routing_key", routingKey),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}
