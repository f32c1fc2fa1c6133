package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// AddWishlistItem saves a product to a user's wishlist
func (s *Store) AddWishlistItem(ctx context.Context, userID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)", userID, productID)
	if isUniqueViolation(err) {
		return fmt.Errorf("wishlist item %d: %w", productID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

// ListWishlist returns the products in a user's wishlist, most recent first
func (s *Store) ListWishlist(ctx context.Context, userID int64) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, `
		SELECT p.* FROM wishlist_items w
		JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return products, nil
}

// RemoveWishlistItem deletes a product from a user's wishlist
func (s *Store) RemoveWishlistItem(ctx context.Context, userID, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("wishlist item %d: %w", productID, ErrNotFound)
	}
	return nil
}
