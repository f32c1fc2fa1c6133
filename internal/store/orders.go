package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID                int64               `db:"id"`
	UserID            int64               `db:"user_id"`
	Address           string              `db:"address"`
	Phone             string              `db:"phone"`
	Payment           string              `db:"payment"`
	Price             decimal.Decimal     `db:"price"`
	CouponID          sql.NullInt64       `db:"coupon_id"`
	CouponName        sql.NullString      `db:"coupon_name"`
	CouponDiscount    decimal.NullDecimal `db:"coupon_discount"`
	Status            string              `db:"status"`
	StockSettled      bool                `db:"stock_settled"`
	CheckoutSessionID sql.NullString      `db:"checkout_session_id"`
	CheckoutURL       sql.NullString      `db:"checkout_url"`
	IdempotencyKey    sql.NullString      `db:"idempotency_key"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

func (r *orderRow) toModel() *models.Order {
	o := &models.Order{
		ID:                r.ID,
		UserID:            r.UserID,
		Address:           r.Address,
		Phone:             r.Phone,
		Payment:           models.PaymentMethod(r.Payment),
		Price:             r.Price,
		Status:            models.OrderStatus(r.Status),
		StockSettled:      r.StockSettled,
		CheckoutSessionID: r.CheckoutSessionID.String,
		CheckoutURL:       r.CheckoutURL.String,
		IdempotencyKey:    r.IdempotencyKey.String,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Items:             []models.OrderItem{},
	}
	if r.CouponID.Valid {
		o.Coupon = &models.CouponSnapshot{
			ID:       r.CouponID.Int64,
			Name:     r.CouponName.String,
			Discount: r.CouponDiscount.Decimal,
		}
	}
	return o
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateOrder persists the order and its items. When settle is true the stock
// of every line is decremented and the user's cart cleared in the same
// transaction; insufficient stock rolls everything back.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, settle bool) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var (
			couponID       sql.NullInt64
			couponName     sql.NullString
			couponDiscount decimal.NullDecimal
		)
		if order.Coupon != nil {
			couponID = sql.NullInt64{Int64: order.Coupon.ID, Valid: true}
			couponName = nullString(order.Coupon.Name)
			couponDiscount = decimal.NullDecimal{Decimal: order.Coupon.Discount, Valid: true}
		}

		query := `
			INSERT INTO orders (user_id, address, phone, payment, price, coupon_id, coupon_name,
				coupon_discount, status, stock_settled, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			order.UserID, order.Address, order.Phone, string(order.Payment), order.Price,
			couponID, couponName, couponDiscount, string(order.Status), settle,
			nullString(order.IdempotencyKey),
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("order idempotency key %q: %w", order.IdempotencyKey, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.GetContext(ctx, &item.ID, `
				INSERT INTO order_items (order_id, product_id, name, quantity, item_price, total_price)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				item.OrderID, item.ProductID, item.Name, item.Quantity, item.ItemPrice, item.TotalPrice)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		if !settle {
			return nil
		}
		if err := settleStock(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := clearCart(ctx, tx, order.UserID); err != nil {
			return err
		}
		order.StockSettled = true
		return nil
	})
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrder(ctx, s.db, "SELECT * FROM orders WHERE id = $1", id)
}

// GetOrderByIdempotencyKey retrieves the order created by userID with key, or nil
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	order, err := getOrder(ctx, s.db, "SELECT * FROM orders WHERE idempotency_key = $1 AND user_id = $2", key, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*models.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	order := row.toModel()
	if err := sqlx.SelectContext(ctx, q, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return order, nil
}

// ListOrders returns orders newest first. Placed card orders are in-flight
// checkouts and are left out.
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := `SELECT * FROM orders WHERE NOT (status = $1 AND payment = $2)`
	args := []interface{}{string(models.OrderStatusPlaced), string(models.PaymentCard)}
	if filter.UserID != nil {
		query += " AND user_id = $3"
		args = append(args, *filter.UserID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*models.Order, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}

	byID := make(map[int64]*models.Order, len(rows))
	ids := make([]int64, 0, len(rows))
	for i := range rows {
		o := rows[i].toModel()
		orders = append(orders, o)
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return orders, nil
}

// SetCheckoutSession records the hosted checkout session of a card order
func (s *Store) SetCheckoutSession(ctx context.Context, orderID int64, sessionID, url string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET checkout_session_id = $1, checkout_url = $2, updated_at = NOW() WHERE id = $3",
		sessionID, url, orderID)
	if err != nil {
		return fmt.Errorf("failed to set checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// TransitionOrder moves an order from one status to another with a
// compare-and-set on the current status and applies the stock effect in the
// same transaction. ErrStatusConflict means the order was not in from.
func (s *Store) TransitionOrder(ctx context.Context, orderID int64, from, to models.OrderStatus, effect models.StockEffect) (*models.Order, error) {
	var order *models.Order

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    stock_settled = CASE WHEN $2 = 1 THEN TRUE WHEN $2 = 2 THEN FALSE ELSE stock_settled END,
			    updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			string(to), int(effect), orderID, string(from))
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		order, err = getOrder(ctx, tx, "SELECT * FROM orders WHERE id = $1", orderID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("order %d is %s, expected %s: %w", orderID, order.Status, from, ErrStatusConflict)
		}

		switch effect {
		case models.StockSettle:
			if err := settleStock(ctx, tx, order.Items); err != nil {
				return err
			}
			return clearCart(ctx, tx, order.UserID)
		case models.StockRestore:
			return restoreStock(ctx, tx, order.Items)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return order, err
		}
		return nil, err
	}

	return order, nil
}

// ExpireStaleCardOrders moves placed card orders created before cutoff to
// card-expired and returns them
func (s *Store) ExpireStaleCardOrders(ctx context.Context, cutoff time.Time) ([]*models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE status = $2 AND payment = $3 AND created_at < $4
		RETURNING *`,
		string(models.OrderStatusCardExpired), string(models.OrderStatusPlaced),
		string(models.PaymentCard), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale card orders: %w", err)
	}

	orders := make([]*models.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toModel())
	}
	return orders, nil
}
