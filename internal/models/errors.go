package models

import "fmt"

// ProductNotFoundError is returned when an order references product ids
// that do not exist. IDs holds every missing id from the request.
type ProductNotFoundError struct {
	ProductIDs []int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("products not found: %v", e.ProductIDs)
}

// StockShortage describes one product whose available stock cannot
// cover the requested quantity.
type StockShortage struct {
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
	Requested int   `json:"requested"`
}

// InsufficientStockError is returned when at least one requested item
// exceeds available stock. Shortages holds every failing item.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortages) == 1 {
		s := e.Shortages[0]
		return fmt.Sprintf("insufficient stock for product_id=%d: available=%d, requested=%d",
			s.ProductID, s.Available, s.Requested)
	}
	return fmt.Sprintf("insufficient stock for %d products", len(e.Shortages))
}

// OrderNotFoundError is returned when an order id does not exist.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found: %d", e.OrderID)
}

// InvalidTransitionError is returned when a status change is not in the
// transition table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// DuplicateNameError is returned when a product name collides with an
// existing one. Detection relies on the unique constraint, not on a
// pre-check, so concurrent creates cannot race past it.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("product name already exists: %s", e.Name)
}
