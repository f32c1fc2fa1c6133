package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

// OrderStore is the persistence used by order placement and reconciliation
type OrderStore interface {
	GetCart(ctx context.Context, userID int64) ([]models.CartItem, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetCouponByName(ctx context.Context, name string) (*models.Coupon, error)

	CreateOrder(ctx context.Context, order *models.Order, settle bool) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	SetCheckoutSession(ctx context.Context, orderID int64, sessionID, url string) error
	TransitionOrder(ctx context.Context, orderID int64, from, to models.OrderStatus, effect models.StockEffect) (*models.Order, error)
	ExpireStaleCardOrders(ctx context.Context, cutoff time.Time) ([]*models.Order, error)
}

// CartStore persists cart lines
type CartStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetCart(ctx context.Context, userID int64) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, userID, productID int64) (*models.CartItem, error)
	SetCartItem(ctx context.Context, userID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

// WishlistStore persists wishlist entries
type WishlistStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	AddWishlistItem(ctx context.Context, userID, productID int64) error
	ListWishlist(ctx context.Context, userID int64) ([]models.Product, error)
	RemoveWishlistItem(ctx context.Context, userID, productID int64) error
}

// CouponStore persists coupons
type CouponStore interface {
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	GetCouponByName(ctx context.Context, name string) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, c *models.Coupon) error
	DeleteCoupon(ctx context.Context, name string) error
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
}

// CatalogStore reads products, categories and brands
type CatalogStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, q store.ProductQuery) ([]models.Product, int, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)
}

// EventPublisher publishes order lifecycle events
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order *models.Order) error
	PublishStatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) error
}

// EventDeduper remembers processed gateway event ids
type EventDeduper interface {
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	MarkEvent(ctx context.Context, eventID string, ttl time.Duration) error
}
