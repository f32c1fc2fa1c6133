package service

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// CatalogService serves read-only product listings
type CatalogService struct {
	store           CatalogStore
	defaultPageSize int
	maxPageSize     int
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, defaultPageSize, maxPageSize int) *CatalogService {
	return &CatalogService{store: store, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// ProductListRequest filters and pages a product listing
type ProductListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	Limit      int    `form:"limit" binding:"omitempty,min=1"`
	Keyword    string `form:"keyword" binding:"omitempty,max=100"`
	CategoryID int64  `form:"category" binding:"omitempty,gt=0"`
	BrandID    int64  `form:"brand" binding:"omitempty,gt=0"`
}

// ProductPage is one page of products
type ProductPage struct {
	Products []models.Product `json:"products"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Total    int              `json:"total"`
}

// ListProducts returns a page of products
func (s *CatalogService) ListProducts(ctx context.Context, req *ProductListRequest) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	products, total, err := s.store.ListProducts(ctx, store.ProductQuery{
		Keyword:    req.Keyword,
		CategoryID: req.CategoryID,
		BrandID:    req.BrandID,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	return &ProductPage{Products: products, Page: page, Limit: limit, Total: total}, nil
}

// GetProduct returns one product
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// ListCategories returns all categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// ListBrands returns all brands
func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	return s.store.ListBrands(ctx)
}
