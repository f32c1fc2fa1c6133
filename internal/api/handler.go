package api

import (
	"context"
	"net/http"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	webhookPath     = "/order/webhook"
	maxWebhookBytes = 64 << 10
	readyTimeout    = 2 * time.Second
)

// OrderService places and manages orders
type OrderService interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, orderID, userID int64) (*models.Order, error)
	CollectCashOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, orderID, userID int64, admin bool) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*models.Order, error)
	ListAllOrders(ctx context.Context) ([]*models.Order, error)
}

// WebhookProcessor applies payment gateway events
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

// CartService manages carts
type CartService interface {
	GetCart(ctx context.Context, userID int64) (*service.Cart, error)
	AddItem(ctx context.Context, userID int64, req *service.CartItemRequest) (*service.Cart, error)
	UpdateItem(ctx context.Context, userID int64, req *service.CartItemRequest) (*service.Cart, error)
	RemoveItem(ctx context.Context, userID, productID int64) (*service.Cart, error)
	ClearCart(ctx context.Context, userID int64) error
}

// WishlistService manages wishlists
type WishlistService interface {
	Add(ctx context.Context, userID, productID int64) ([]models.Product, error)
	List(ctx context.Context, userID int64) ([]models.Product, error)
	Remove(ctx context.Context, userID, productID int64) ([]models.Product, error)
}

// CouponService manages coupons
type CouponService interface {
	Create(ctx context.Context, adminID int64, req *service.CreateCouponRequest) (*models.Coupon, error)
	Update(ctx context.Context, code string, req *service.UpdateCouponRequest) (*models.Coupon, error)
	Delete(ctx context.Context, code string) error
	Get(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
}

// CatalogService reads the catalog
type CatalogService interface {
	ListProducts(ctx context.Context, req *service.ProductListRequest) (*service.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators of the HTTP layer. A nil Limiter
// disables rate limiting.
type Dependencies struct {
	Orders    OrderService
	Payments  WebhookProcessor
	Carts     CartService
	Wishlists WishlistService
	Coupons   CouponService
	Catalog   CatalogService
	Auth      *Authenticator
	Limiter   RateLimiter
	RateLimit config.RateLimitConfig
	Checks    map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderService
	payments  WebhookProcessor
	carts     CartService
	wishlists WishlistService
	coupons   CouponService
	catalog   CatalogService
	auth      *Authenticator
	limiter   RateLimiter
	limits    config.RateLimitConfig
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		orders:    deps.Orders,
		payments:  deps.Payments,
		carts:     deps.Carts,
		wishlists: deps.Wishlists,
		coupons:   deps.Coupons,
		catalog:   deps.Catalog,
		auth:      deps.Auth,
		limits:    deps.RateLimit,
		checks:    deps.Checks,
		logger:    util.GetLogger(),
	}
	if deps.RateLimit.Enabled {
		h.limiter = deps.Limiter
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(recovery(h.logger))
	router.Use(requestID())
	router.Use(corsMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(tracingMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST(webhookPath, h.webhook)

	api := router.Group("", h.rateLimit(scopeGlobal, h.limits.GlobalLimit, h.limits.GlobalWindow, clientIPKey))

	api.GET("/product", h.listProducts)
	api.GET("/product/:id", h.getProduct)
	api.GET("/category", h.listCategories)
	api.GET("/brand", h.listBrands)

	authed := api.Group("", h.auth.Authenticate())

	order := authed.Group("/order")
	{
		order.POST("", h.rateLimit(scopeOrder, h.limits.OrderLimit, h.limits.OrderWindow, userKey), h.createOrder)
		order.GET("", h.listOrders)
		order.GET("/all", RequireRole(RoleAdmin), h.listAllOrders)
		order.GET("/:id", h.getOrder)
		order.PATCH("/:id/cancel", h.cancelOrder)
		order.PATCH("/:id/collect", RequireRole(RoleAdmin), h.collectOrder)
	}

	cart := authed.Group("/cart")
	{
		cart.POST("", h.addCartItem)
		cart.GET("", h.getCart)
		cart.PATCH("", h.updateCartItem)
		cart.DELETE("/:productId", h.removeCartItem)
		cart.DELETE("", h.clearCart)
	}

	wishlist := authed.Group("/wishlist")
	{
		wishlist.POST("", h.addWishlistItem)
		wishlist.GET("", h.getWishlist)
		wishlist.DELETE("/:productId", h.removeWishlistItem)
	}

	coupon := authed.Group("/coupon", RequireRole(RoleAdmin))
	{
		coupon.POST("", h.createCoupon)
		coupon.GET("", h.listCoupons)
		coupon.GET("/:code", h.getCoupon)
		coupon.PATCH("/:code", h.updateCoupon)
		coupon.DELETE("/:code", h.deleteCoupon)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
