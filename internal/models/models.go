package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Order represents a customer order. Items are populated by the store
// when the order is hydrated; they are never written after creation.
type Order struct {
	ID        int64       `db:"id" json:"id"`
	Status    string      `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	Items     []OrderItem `db:"-" json:"items"`
}

// OrderItem represents a line item in an order. PriceAtTimeOfOrder is a
// frozen copy of the product price captured at placement. ProductName is
// a join-time projection and is nil if the product no longer exists.
type OrderItem struct {
	ID                 int64           `db:"id" json:"id"`
	OrderID            int64           `db:"order_id" json:"order_id"`
	ProductID          int64           `db:"product_id" json:"product_id"`
	ProductName        *string         `db:"product_name" json:"product_name"`
	QuantityOrdered    int             `db:"quantity_ordered" json:"quantity_ordered"`
	PriceAtTimeOfOrder decimal.Decimal `db:"price_at_time_of_order" json:"price_at_time_of_order"`
}

// Order statuses
const (
	OrderStatusPending   = "Pending"
	OrderStatusShipped   = "Shipped"
	OrderStatusCancelled = "Cancelled"
)

// AllowedTransitions is the order status state machine. Shipped and
// Cancelled are terminal. Re-applying the current status is a no-op and
// is handled before this table is consulted.
var AllowedTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {},
	OrderStatusCancelled: {},
}

// TransitionAllowed reports whether from -> to is a permitted status
// change (excluding the same-status no-op).
func TransitionAllowed(from, to string) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
