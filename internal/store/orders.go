package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"logistics-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOrder creates a new order row inside tx. The id and the
// server-assigned created_at are written back into order.
func (s *Store) InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (status)
		VALUES ($1)
		RETURNING id, created_at`

	return tx.GetContext(ctx, order, query, order.Status)
}

// InsertOrderItem creates a new order item inside tx
func (s *Store) InsertOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity_ordered, price_at_time_of_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.QuantityOrdered, item.PriceAtTimeOfOrder)
}

// GetOrderByID retrieves a fully hydrated order (items with product
// names). Returns OrderNotFoundError if the id does not exist.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT id, status, created_at FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, err
	}

	orders := []models.Order{order}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetOrderForUpdate fetches a bare order row inside tx with an
// exclusive row lock. Returns OrderNotFoundError if absent.
func (s *Store) GetOrderForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order,
		"SELECT id, status, created_at FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates an order's status inside tx
func (s *Store) UpdateOrderStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2", status, orderID)
	return err
}

// CountOrders returns the total number of orders
func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders")
	return total, err
}

// ListOrders retrieves a hydrated page of orders ordered by descending
// created_at, tie-broken by descending id.
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT id, status, created_at FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderFilter restricts order searches. Zero-valued fields are ignored.
// CreatedBefore is an exclusive upper bound on created_at.
type OrderFilter struct {
	Status        string
	CreatedFrom   *time.Time
	CreatedBefore *time.Time
	ProductName   string
}

// whereClauses renders the non-join filter predicates against the
// orders table, using prefix to qualify columns in join queries.
func (f OrderFilter) whereClauses(prefix string, argOffset int) ([]string, []interface{}) {
	conds := []string{}
	args := []interface{}{}

	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("%sstatus = $%d", prefix, argOffset+len(args)))
	}
	if f.CreatedFrom != nil {
		args = append(args, *f.CreatedFrom)
		conds = append(conds, fmt.Sprintf("%screated_at >= $%d", prefix, argOffset+len(args)))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		conds = append(conds, fmt.Sprintf("%screated_at < $%d", prefix, argOffset+len(args)))
	}
	return conds, args
}

// CountOrdersFiltered counts orders matching the filter. When a product
// name predicate is present the count is over distinct order ids, so an
// order with several matching line items counts once.
func (s *Store) CountOrdersFiltered(ctx context.Context, f OrderFilter) (int64, error) {
	var total int64

	if f.ProductName != "" {
		conds := []string{"p.name ILIKE $1"}
		args := []interface{}{likePattern(f.ProductName)}

		extra, extraArgs := f.whereClauses("o.", len(args))
		conds = append(conds, extra...)
		args = append(args, extraArgs...)

		query := `
			SELECT COUNT(DISTINCT o.id)
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			JOIN products p ON p.id = oi.product_id
			WHERE ` + strings.Join(conds, " AND ")

		err := s.db.GetContext(ctx, &total, query, args...)
		return total, err
	}

	query := "SELECT COUNT(*) FROM orders"
	conds, args := f.whereClauses("", 0)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	err := s.db.GetContext(ctx, &total, query, args...)
	return total, err
}

// ListOrdersFiltered retrieves a hydrated page of orders matching the
// filter, ordered by descending created_at then descending id. With a
// product name predicate the page is computed over distinct order ids
// first, then hydrated preserving that page's order.
func (s *Store) ListOrdersFiltered(ctx context.Context, f OrderFilter, limit, offset int) ([]models.Order, error) {
	if f.ProductName != "" {
		ids, err := s.searchOrderIDs(ctx, f, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []models.Order{}, nil
		}

		orders, err := s.getOrdersByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if err := s.attachItems(ctx, orders); err != nil {
			return nil, err
		}
		return orders, nil
	}

	query := "SELECT id, status, created_at FROM orders"
	conds, args := f.whereClauses("", 0)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// searchOrderIDs returns the page of distinct order ids matching a
// product-name filter, in (created_at desc, id desc) order.
func (s *Store) searchOrderIDs(ctx context.Context, f OrderFilter, limit, offset int) ([]int64, error) {
	conds := []string{"p.name ILIKE $1"}
	args := []interface{}{likePattern(f.ProductName)}

	extra, extraArgs := f.whereClauses("o.", len(args))
	conds = append(conds, extra...)
	args = append(args, extraArgs...)

	query := `
		SELECT o.id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN products p ON p.id = oi.product_id
		WHERE ` + strings.Join(conds, " AND ") + `
		GROUP BY o.id, o.created_at
		ORDER BY o.created_at DESC, o.id DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids, query, args...)
	return ids, err
}

// getOrdersByIDs fetches bare order rows for the given ids, preserving
// the order of ids (the hydration query's natural order is discarded).
func (s *Store) getOrdersByIDs(ctx context.Context, ids []int64) ([]models.Order, error) {
	query, args, err := sqlx.In("SELECT id, status, created_at FROM orders WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	fetched := []models.Order{}
	if err := s.db.SelectContext(ctx, &fetched, query, args...); err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Order, len(fetched))
	for _, o := range fetched {
		byID[o.ID] = o
	}

	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// attachItems eager-loads line items (with product names via LEFT JOIN)
// for every order in the slice, in place.
func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
	}

	query, args, err := sqlx.In(`
		SELECT oi.id, oi.order_id, oi.product_id, p.name AS product_name,
		       oi.quantity_ordered, oi.price_at_time_of_order
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.order_id, oi.id`, ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	items := []models.OrderItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		if its, ok := byOrder[orders[i].ID]; ok {
			orders[i].Items = its
		}
	}
	return nil
}
