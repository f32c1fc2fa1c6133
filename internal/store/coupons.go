package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// CreateCoupon inserts a coupon. A taken name returns ErrDuplicate.
func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO coupons (name, discount, expired_at, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		c.Name, c.Discount, c.ExpiredAt, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("coupon %q: %w", c.Name, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// GetCouponByName retrieves a coupon by its code
func (s *Store) GetCouponByName(ctx context.Context, name string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c, "SELECT * FROM coupons WHERE name = $1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coupon %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCoupon writes the discount and expiry of an existing coupon
func (s *Store) UpdateCoupon(ctx context.Context, c *models.Coupon) error {
	err := s.db.GetContext(ctx, &c.UpdatedAt, `
		UPDATE coupons SET discount = $1, expired_at = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`,
		c.Discount, c.ExpiredAt, c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("coupon %q: %w", c.Name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	return nil
}

// DeleteCoupon removes a coupon by its code
func (s *Store) DeleteCoupon(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM coupons WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("coupon %q: %w", name, ErrNotFound)
	}
	return nil
}

// ListCoupons retrieves all coupons, newest first
func (s *Store) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	coupons := []models.Coupon{}
	err := s.db.SelectContext(ctx, &coupons, "SELECT * FROM coupons ORDER BY created_at DESC")
	return coupons, err
}
