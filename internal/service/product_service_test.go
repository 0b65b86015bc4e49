package service

import (
	"context"
	"testing"
	"time"

	"logistics-service/internal/models"
	"logistics-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockProductService(t *testing.T) (*ProductService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewProductService(store.NewStoreWithDB(sqlx.NewDb(db, "sqlmock"))), mock
}

func TestCreateProduct(t *testing.T) {
	svc, mock := newMockProductService(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO products \(name, price, stock_quantity\)`).
		WithArgs("Rice", sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))

	product, err := svc.CreateProduct(context.Background(), &CreateProductRequest{
		Name:          "Rice",
		Price:         100,
		StockQuantity: 10,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), product.ID)
	assert.Equal(t, "Rice", product.Name)
	assert.Equal(t, 10, product.StockQuantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductDuplicateName(t *testing.T) {
	svc, mock := newMockProductService(t)

	mock.ExpectQuery(`INSERT INTO products`).
		WithArgs("Rice", sqlmock.AnyArg(), 10).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "products_name_key"})

	product, err := svc.CreateProduct(context.Background(), &CreateProductRequest{
		Name:          "Rice",
		Price:         100,
		StockQuantity: 10,
	})

	require.Error(t, err)
	assert.Nil(t, product)

	var dup *models.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Rice", dup.Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsPagination(t *testing.T) {
	svc, mock := newMockProductService(t)
	now := time.Now()

	// total reflects the whole catalog even when the page holds one item
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM products ORDER BY id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(1, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock_quantity", "created_at"}).
			AddRow(2, "P2", "20.00", 7, now))

	resp, err := svc.ListProducts(context.Background(), 1, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 1, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "P2", resp.Items[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProductsEmptyQueryFallsBackToList(t *testing.T) {
	svc, mock := newMockProductService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM products ORDER BY id DESC`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock_quantity", "created_at"}).
			AddRow(1, "P1", "10.00", 5, now))

	resp, err := svc.SearchProducts(context.Background(), "", 20, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProductsMatching(t *testing.T) {
	svc, mock := newMockProductService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products WHERE name ILIKE \$1`).
		WithArgs("%rice%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM products WHERE name ILIKE \$1 ORDER BY id DESC`).
		WithArgs("%rice%", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "stock_quantity", "created_at"}).
			AddRow(1, "Rice", "100.00", 10, now))

	resp, err := svc.SearchProducts(context.Background(), "rice", 20, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Rice", resp.Items[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}
