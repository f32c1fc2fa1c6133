package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// WishlistService manages saved products
type WishlistService struct {
	store WishlistStore
}

// NewWishlistService creates a new wishlist service
func NewWishlistService(store WishlistStore) *WishlistService {
	return &WishlistService{store: store}
}

// WishlistRequest names the product to save
type WishlistRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
}

// Add saves a product to the wishlist
func (s *WishlistService) Add(ctx context.Context, userID, productID int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Add")
	defer span.End()

	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}

	if err := s.store.AddWishlistItem(ctx, userID, productID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyInWishlist
		}
		return nil, err
	}
	return s.store.ListWishlist(ctx, userID)
}

// List returns the saved products
func (s *WishlistService) List(ctx context.Context, userID int64) ([]models.Product, error) {
	return s.store.ListWishlist(ctx, userID)
}

// Remove deletes a product from the wishlist
func (s *WishlistService) Remove(ctx context.Context, userID, productID int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Remove")
	defer span.End()

	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}

	if err := s.store.RemoveWishlistItem(ctx, userID, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWishlistItemNotFound
		}
		return nil, err
	}
	return s.store.ListWishlist(ctx, userID)
}

func (s *WishlistService) ensureProduct(ctx context.Context, productID int64) error {
	_, err := s.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get product: %w", err)
	}
	return nil
}
