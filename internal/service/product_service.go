package service

import (
	"context"
	"errors"
	"strings"

	"logistics-service/internal/models"
	"logistics-service/internal/store"
	"logistics-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService handles catalog business logic
type ProductService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store *store.Store) *ProductService {
	return &ProductService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name          string  `json:"name" binding:"required,min=1,max=200"`
	Price         float64 `json:"price" binding:"min=0"`
	StockQuantity int     `json:"stock_quantity" binding:"min=0"`
}

// ProductListResponse is a paginated page of products
type ProductListResponse struct {
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Items  []models.Product `json:"items"`
}

// CreateProduct inserts a new product. Name collisions surface as
// DuplicateNameError from the unique constraint; there is no pre-check,
// so concurrent creates cannot both pass.
func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	product := &models.Product{
		Name:          req.Name,
		Price:         decimal.NewFromFloat(req.Price),
		StockQuantity: req.StockQuantity,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		var dup *models.DuplicateNameError
		if errors.As(err, &dup) {
			util.DuplicateProductNamesTotal.Inc()
		}
		return nil, err
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name))

	return product, nil
}

// ListProducts retrieves a page of products with the total count
func (s *ProductService) ListProducts(ctx context.Context, limit, offset int) (*ProductListResponse, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	total, err := s.store.CountProducts(ctx)
	if err != nil {
		return nil, err
	}

	products, err := s.store.ListProducts(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ProductListResponse{Total: total, Limit: limit, Offset: offset, Items: products}, nil
}

// SearchProducts retrieves a page of products matching a
// case-insensitive name substring. An empty query falls back to the
// unfiltered listing.
func (s *ProductService) SearchProducts(ctx context.Context, nameContains string, limit, offset int) (*ProductListResponse, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.SearchProducts")
	defer span.End()

	if nameContains == "" {
		return s.ListProducts(ctx, limit, offset)
	}

	total, err := s.store.CountProductsMatching(ctx, nameContains)
	if err != nil {
		return nil, err
	}

	products, err := s.store.SearchProducts(ctx, nameContains, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ProductListResponse{Total: total, Limit: limit, Offset: offset, Items: products}, nil
}

// ProductsByName retrieves all products matching a name substring
// without pagination. A blank name returns the whole catalog.
func (s *ProductService) ProductsByName(ctx context.Context, name string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ProductsByName")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return s.store.GetAllProducts(ctx)
	}
	return s.store.SearchAllProducts(ctx, name)
}
