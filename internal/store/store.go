package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"logistics-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// pq error code for unique constraint violations
const pqUniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection (used by tests)
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTxx starts a new transaction
func (s *Store) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// CreateProduct inserts a new product. A unique constraint violation on
// the name column is mapped to DuplicateNameError.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, price, stock_quantity)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, product, query,
		product.Name, product.Price, product.StockQuantity)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return &models.DuplicateNameError{Name: product.Name}
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// CountProducts returns the total number of products
func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products")
	return total, err
}

// ListProducts retrieves a page of products ordered by descending id
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products ORDER BY id DESC LIMIT $1 OFFSET $2", limit, offset)
	return products, err
}

// CountProductsMatching returns the number of products whose name
// contains the given substring (case-insensitive)
func (s *Store) CountProductsMatching(ctx context.Context, nameContains string) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM products WHERE name ILIKE $1", likePattern(nameContains))
	return total, err
}

// SearchProducts retrieves a page of products whose name contains the
// given substring (case-insensitive), ordered by descending id
func (s *Store) SearchProducts(ctx context.Context, nameContains string, limit, offset int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE name ILIKE $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
		likePattern(nameContains), limit, offset)
	return products, err
}

// SearchAllProducts retrieves all products whose name contains the
// given substring, without pagination
func (s *Store) SearchAllProducts(ctx context.Context, nameContains string) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE name ILIKE $1 ORDER BY id DESC", likePattern(nameContains))
	return products, err
}

// GetAllProducts retrieves every product ordered by descending id
func (s *Store) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id DESC")
	return products, err
}

// GetProductsForUpdate fetches the given products inside tx with an
// exclusive row lock. Rows are locked in ascending id order so that
// concurrent placements touching overlapping products acquire locks in
// the same order.
func (s *Store) GetProductsForUpdate(ctx context.Context, tx *sqlx.Tx, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	products := []models.Product{}
	if err := tx.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}
	return products, nil
}

// DecrementStock reduces a product's stock inside tx. The caller must
// hold the row lock and have verified availability; the check
// constraint on stock_quantity still rejects a negative result.
func (s *Store) DecrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	return nil
}

func likePattern(substr string) string {
	return "%" + substr + "%"
}
