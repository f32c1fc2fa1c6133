package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCart retrieves the cart lines of a user, oldest first
func (s *Store) GetCart(ctx context.Context, userID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE user_id = $1 ORDER BY created_at, product_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return items, nil
}

// GetCartItem retrieves one cart line
func (s *Store) GetCartItem(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetCartItem inserts or replaces the quantity of a cart line
func (s *Store) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}
	return nil
}

// RemoveCartItem deletes one cart line
func (s *Store) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cart item %d: %w", productID, ErrNotFound)
	}
	return nil
}

// ClearCart deletes every cart line of a user
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	return clearCart(ctx, s.db, userID)
}

func clearCart(ctx context.Context, e sqlx.ExecerContext, userID int64) error {
	if _, err := e.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
