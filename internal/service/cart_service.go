package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService manages the per-user cart
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore) *CartService {
	return &CartService{store: store, logger: util.GetLogger()}
}

// CartItemRequest adds or sets the quantity of a product in the cart
type CartItemRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,min=1,max=1000"`
}

// CartLine is a cart item priced at the product's current final price
type CartLine struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Available  int             `json:"available_items"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Cart is the priced view of a user's cart
type Cart struct {
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// GetCart returns the user's cart priced at current final prices
func (s *CartService) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	items, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	cart := &Cart{Items: make([]CartLine, 0, len(items)), TotalPrice: decimal.Zero}
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		unit := p.FinalPrice()
		line := CartLine{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   item.Quantity,
			Available:  p.AvailableItems,
			UnitPrice:  unit,
			TotalPrice: unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		cart.Items = append(cart.Items, line)
		cart.TotalPrice = cart.TotalPrice.Add(line.TotalPrice)
	}
	cart.TotalPrice = cart.TotalPrice.Round(2)
	return cart, nil
}

// AddItem adds quantity of a product to the cart, merging with an existing line
func (s *CartService) AddItem(ctx context.Context, userID int64, req *CartItemRequest) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	product, err := s.product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	existing, err := s.store.GetCartItem(ctx, userID, req.ProductID)
	switch {
	case err == nil:
		quantity += existing.Quantity
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if !product.InStock(quantity) {
		return nil, outOfStock(product.ID, product.Name, quantity, product.AvailableItems)
	}

	if err := s.store.SetCartItem(ctx, userID, product.ID, quantity); err != nil {
		return nil, err
	}
	s.logger.Debug("Cart item added",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", quantity))
	return s.GetCart(ctx, userID)
}

// UpdateItem sets the quantity of a product already in the cart
func (s *CartService) UpdateItem(ctx context.Context, userID int64, req *CartItemRequest) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	product, err := s.product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetCartItem(ctx, userID, req.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}

	if !product.InStock(req.Quantity) {
		return nil, outOfStock(product.ID, product.Name, req.Quantity, product.AvailableItems)
	}

	if err := s.store.SetCartItem(ctx, userID, product.ID, req.Quantity); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a product from the cart
func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := s.store.RemoveCartItem(ctx, userID, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// ClearCart empties the cart
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	return s.store.ClearCart(ctx, userID)
}

func (s *CartService) product(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}
