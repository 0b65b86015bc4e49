package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"logistics-service/internal/models"
	"logistics-service/internal/store"
	"logistics-service/internal/util"

	"go.uber.org/zap"
)

// OrderService handles order placement, status transitions and queries
type OrderService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store) *OrderService {
	return &OrderService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// OrderItemRequest represents one requested line in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrderRequest represents a request to place an order
type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// SearchOrdersRequest restricts an order search. DateFrom/DateTo are
// day-granular: DateTo is inclusive through the end of that day.
type SearchOrdersRequest struct {
	ProductName string
	Status      string
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}

// OrderListResponse is a paginated page of hydrated orders
type OrderListResponse struct {
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Items  []models.Order `json:"items"`
}

// CreateOrder atomically creates a Pending order and decrements stock
// for every requested product, or fails with no effect. All referenced
// product rows are locked for the duration of the transaction; every
// check runs before the first write.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderPlacementLatency.Observe(time.Since(start).Seconds())
	}()

	items := normalizeItems(req.Items)
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	products, err := s.store.GetProductsForUpdate(ctx, tx, productIDs)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	found := make(map[int64]*models.Product, len(products))
	for i := range products {
		found[products[i].ID] = &products[i]
	}

	missing := []int64{}
	for _, id := range productIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, &models.ProductNotFoundError{ProductIDs: missing}
	}

	shortages := []models.StockShortage{}
	for _, item := range items {
		product := found[item.ProductID]
		if product.StockQuantity < item.Quantity {
			shortages = append(shortages, models.StockShortage{
				ProductID: product.ID,
				Available: product.StockQuantity,
				Requested: item.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		util.StockConflictsTotal.Inc()
		return nil, &models.InsufficientStockError{Shortages: shortages}
	}

	order := &models.Order{Status: models.OrderStatusPending}
	if err := s.store.InsertOrder(ctx, tx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range items {
		product := found[item.ProductID]

		orderItem := &models.OrderItem{
			OrderID:            order.ID,
			ProductID:          item.ProductID,
			QuantityOrdered:    item.Quantity,
			PriceAtTimeOfOrder: product.Price,
		}
		if err := s.store.InsertOrderItem(ctx, tx, orderItem); err != nil {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if err := s.store.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int("item_count", len(items)))

	return s.store.GetOrderByID(ctx, order.ID)
}

// normalizeItems merges duplicate product ids (summing quantities) and
// sorts by ascending product id, so concurrent placements acquire row
// locks in a deterministic order.
func normalizeItems(items []OrderItemRequest) []OrderItemRequest {
	merged := make(map[int64]int, len(items))
	for _, item := range items {
		merged[item.ProductID] += item.Quantity
	}

	out := make([]OrderItemRequest, 0, len(merged))
	for productID, quantity := range merged {
		out = append(out, OrderItemRequest{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// GetOrder retrieves a hydrated order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.store.GetOrderByID(ctx, orderID)
}

// UpdateOrderStatus applies a status transition under the state
// machine. Re-applying the current status is a no-op success; anything
// outside the transition table fails with InvalidTransitionError.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	tx, err := s.store.BeginTxx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := s.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != newStatus {
		if !models.TransitionAllowed(order.Status, newStatus) {
			util.InvalidTransitionsTotal.Inc()
			return nil, &models.InvalidTransitionError{From: order.Status, To: newStatus}
		}

		if err := s.store.UpdateOrderStatus(ctx, tx, orderID, newStatus); err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}

		util.OrderStatusTransitionsTotal.WithLabelValues(order.Status, newStatus).Inc()
		s.logger.Info("Order status updated",
			zap.Int64("order_id", orderID),
			zap.String("from", order.Status),
			zap.String("to", newStatus))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	return s.store.GetOrderByID(ctx, orderID)
}

// ListOrders retrieves a page of orders with the total count
func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) (*OrderListResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	total, err := s.store.CountOrders(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrders(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return &OrderListResponse{Total: total, Limit: limit, Offset: offset, Items: orders}, nil
}

// SearchOrders retrieves a filtered page of orders with the total
// count. An empty result is not an error.
func (s *OrderService) SearchOrders(ctx context.Context, req *SearchOrdersRequest) (*OrderListResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SearchOrders")
	defer span.End()

	filter := searchFilter(req)

	total, err := s.store.CountOrdersFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrdersFiltered(ctx, filter, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	return &OrderListResponse{Total: total, Limit: req.Limit, Offset: req.Offset, Items: orders}, nil
}

// searchFilter translates day-granular request dates into created_at
// bounds: DateFrom becomes an inclusive lower bound at the start of the
// day, DateTo an exclusive upper bound at the start of the next day.
func searchFilter(req *SearchOrdersRequest) store.OrderFilter {
	filter := store.OrderFilter{
		Status:      req.Status,
		ProductName: req.ProductName,
	}
	if req.DateFrom != nil {
		from := startOfDay(*req.DateFrom)
		filter.CreatedFrom = &from
	}
	if req.DateTo != nil {
		before := startOfDay(*req.DateTo).AddDate(0, 0, 1)
		filter.CreatedBefore = &before
	}
	return filter
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
