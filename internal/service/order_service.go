package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	gateway        payment.Gateway
	eventPublisher EventPublisher
	checkoutTTL    time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	gateway payment.Gateway,
	eventPublisher EventPublisher,
	checkoutTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:          store,
		gateway:        gateway,
		eventPublisher: eventPublisher,
		checkoutTTL:    checkoutTTL,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// CreateOrderRequest represents a request to create an order from the user's cart
type CreateOrderRequest struct {
	UserID         int64                `json:"-"`
	Address        string               `json:"address" binding:"required,min=5,max=200"`
	Phone          string               `json:"phone" binding:"required,phone"`
	Payment        models.PaymentMethod `json:"payment" binding:"required,oneof=cash card"`
	Coupon         string               `json:"coupon,omitempty" binding:"omitempty,max=50"`
	IdempotencyKey string               `json:"-"`
}

// CreateOrderResponse carries the created cash order or the card checkout URL
type CreateOrderResponse struct {
	Order *models.Order `json:"order,omitempty"`
	URL   string        `json:"url,omitempty"`
}

// CreateOrder turns the user's cart into an order
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("user_id", req.UserID),
		attribute.String("payment", string(req.Payment)))
	defer span.End()

	resp, err := s.createOrder(ctx, req)
	util.RecordError(span, err)
	return resp, err
}

func (s *OrderService) createOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return s.replay(existing)
		}
	}

	var coupon *models.Coupon
	if req.Coupon != "" {
		c, err := s.store.GetCouponByName(ctx, strings.ToUpper(req.Coupon))
		if errors.Is(err, store.ErrNotFound) || (err == nil && !c.ValidAt(s.now())) {
			util.OrdersFailedTotal.WithLabelValues("invalid_coupon").Inc()
			return nil, ErrInvalidCoupon
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get coupon: %w", err)
		}
		coupon = c
	}

	cart, err := s.store.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	products, err := s.loadProducts(ctx, cart)
	if err != nil {
		return nil, err
	}

	items, total, err := s.buildItems(cart, products)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:         req.UserID,
		Address:        req.Address,
		Phone:          req.Phone,
		Payment:        req.Payment,
		Items:          items,
		Price:          total,
		Status:         models.OrderStatusPlaced,
		IdempotencyKey: req.IdempotencyKey,
	}
	if coupon != nil {
		order.Coupon = &models.CouponSnapshot{ID: coupon.ID, Name: coupon.Name, Discount: coupon.Discount}
	}

	if req.Payment == models.PaymentCash {
		return s.placeCashOrder(ctx, order)
	}
	return s.placeCardOrder(ctx, order)
}

func (s *OrderService) replay(order *models.Order) (*CreateOrderResponse, error) {
	if order.Payment == models.PaymentCash {
		return &CreateOrderResponse{Order: order}, nil
	}
	if order.Status == models.OrderStatusPlaced && order.CheckoutURL != "" {
		return &CreateOrderResponse{URL: order.CheckoutURL}, nil
	}
	return nil, ErrGateway.With("Checkout for this request is no longer available", nil)
}

func (s *OrderService) loadProducts(ctx context.Context, cart []models.CartItem) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(cart))
	for i, line := range cart {
		productIDs[i] = line.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	return productMap, nil
}

// buildItems snapshots every cart line at the product's current final price.
// The first missing or understocked line aborts.
func (s *OrderService) buildItems(cart []models.CartItem, products map[int64]*models.Product) ([]models.OrderItem, decimal.Decimal, error) {
	items := make([]models.OrderItem, 0, len(cart))
	total := decimal.Zero

	for _, line := range cart {
		product, ok := products[line.ProductID]
		if !ok {
			util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
			return nil, total, ErrProductNotFound.With(fmt.Sprintf("Product %d not found", line.ProductID), nil)
		}
		if !product.InStock(line.Quantity) {
			util.OrdersFailedTotal.WithLabelValues("out_of_stock").Inc()
			return nil, total, outOfStock(product.ID, product.Name, line.Quantity, product.AvailableItems)
		}

		unit := product.FinalPrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, models.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Quantity:   line.Quantity,
			ItemPrice:  unit,
			TotalPrice: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return items, total.Round(2), nil
}

// placeCashOrder persists the order, settles stock and clears the cart in one transaction
func (s *OrderService) placeCashOrder(ctx context.Context, order *models.Order) (*CreateOrderResponse, error) {
	start := time.Now()
	err := s.store.CreateOrder(ctx, order, true)
	util.StockSettleLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, s.mapCreateError(order, err)
	}

	util.OrdersCreatedTotal.WithLabelValues(string(order.Payment)).Inc()
	s.logger.Info("Cash order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("price", order.Price.String()))
	s.publishPlaced(ctx, order)

	return &CreateOrderResponse{Order: order}, nil
}

// placeCardOrder persists the order unsettled and opens a hosted checkout for it
func (s *OrderService) placeCardOrder(ctx context.Context, order *models.Order) (*CreateOrderResponse, error) {
	if err := s.store.CreateOrder(ctx, order, false); err != nil {
		return nil, s.mapCreateError(order, err)
	}

	util.OrdersCreatedTotal.WithLabelValues(string(order.Payment)).Inc()
	s.logger.Info("Card order placed", zap.Int64("order_id", order.ID), zap.Int64("user_id", order.UserID))
	s.publishPlaced(ctx, order)

	checkout := &payment.CheckoutRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		LineItems:      make([]payment.LineItem, 0, len(order.Items)),
		ExpiresAt:      order.CreatedAt.Add(s.checkoutTTL),
		IdempotencyKey: fmt.Sprintf("order-%d-checkout", order.ID),
	}
	for _, item := range order.Items {
		checkout.LineItems = append(checkout.LineItems, payment.LineItem{
			Name:      item.Name,
			UnitPrice: item.ItemPrice,
			Quantity:  item.Quantity,
		})
	}

	if order.Coupon != nil {
		discountID, err := s.gateway.CreateDiscount(ctx, order.Coupon.Discount)
		if err != nil {
			return nil, s.failCheckout(ctx, order, err)
		}
		checkout.DiscountID = discountID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, checkout)
	if err != nil {
		return nil, s.failCheckout(ctx, order, err)
	}

	if err := s.store.SetCheckoutSession(ctx, order.ID, session.ID, session.URL); err != nil {
		return nil, fmt.Errorf("failed to save checkout session: %w", err)
	}
	order.CheckoutSessionID = session.ID
	order.CheckoutURL = session.URL

	return &CreateOrderResponse{URL: session.URL}, nil
}

func (s *OrderService) mapCreateError(order *models.Order, err error) error {
	var stockErr *store.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		util.OrdersFailedTotal.WithLabelValues("out_of_stock").Inc()
		name := ""
		for _, item := range order.Items {
			if item.ProductID == stockErr.ProductID {
				name = item.Name
			}
		}
		return outOfStock(stockErr.ProductID, name, stockErr.Requested, stockErr.Available)
	case errors.Is(err, store.ErrDuplicate):
		return ErrInvalidRequest.With("A request with this Idempotency-Key is already being processed", err)
	case errors.Is(err, store.ErrNotFound):
		util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
		return ErrProductNotFound.Wrap(err)
	}
	util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
	return fmt.Errorf("failed to create order: %w", err)
}

// failCheckout marks a card order whose checkout could not be opened
func (s *OrderService) failCheckout(ctx context.Context, order *models.Order, cause error) error {
	util.OrdersFailedTotal.WithLabelValues("gateway_error").Inc()
	s.logger.Error("Checkout session creation failed",
		zap.Int64("order_id", order.ID),
		zap.Error(cause))

	updated, err := s.store.TransitionOrder(ctx, order.ID, models.OrderStatusPlaced, models.OrderStatusCardFailed, models.StockNone)
	if err != nil {
		s.logger.Error("Failed to mark order as card-failed", zap.Int64("order_id", order.ID), zap.Error(err))
	} else {
		util.OrdersPaymentFailedTotal.Inc()
		s.publishStatus(ctx, updated, models.OrderStatusPlaced, "gateway_error")
	}

	return ErrGateway.Wrap(cause)
}

// CancelOrder cancels a placed order owned by userID
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotAuthorized
	}

	effect, err := models.Transition(order, models.OrderStatusCanceled)
	if err != nil {
		return nil, ErrCannotCancel.Wrap(err)
	}

	updated, err := s.store.TransitionOrder(ctx, order.ID, order.Status, models.OrderStatusCanceled, effect)
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, ErrCannotCancel.Wrap(err)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	util.OrdersCanceledTotal.Inc()
	s.logger.Info("Order canceled",
		zap.Int64("order_id", order.ID),
		zap.String("stock_effect", effect.String()))

	if updated.Payment == models.PaymentCard && updated.CheckoutSessionID != "" {
		if err := s.gateway.ExpireCheckoutSession(ctx, updated.CheckoutSessionID); err != nil {
			s.logger.Warn("Failed to expire checkout session",
				zap.Int64("order_id", updated.ID),
				zap.String("session_id", updated.CheckoutSessionID),
				zap.Error(err))
		}
	}

	s.publishStatus(ctx, updated, order.Status, "canceled_by_user")
	return updated, nil
}

// CollectCashOrder marks a placed cash order as paid on delivery
func (s *OrderService) CollectCashOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CollectCashOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	effect, err := models.Transition(order, models.OrderStatusCashSettled)
	if err != nil {
		return nil, ErrCannotCollect.Wrap(err)
	}

	updated, err := s.store.TransitionOrder(ctx, order.ID, order.Status, models.OrderStatusCashSettled, effect)
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, ErrCannotCollect.Wrap(err)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to collect order: %w", err)
	}

	util.OrdersCashCollectedTotal.Inc()
	s.logger.Info("Cash order collected", zap.Int64("order_id", order.ID))
	s.publishStatus(ctx, updated, order.Status, "")
	return updated, nil
}

// GetOrder returns an order visible to the requester
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID int64, admin bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && order.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return order, nil
}

// ListOrders returns the user's orders after sweeping stale card checkouts
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.Int64("user_id", userID))
	defer span.End()

	s.sweep(ctx)
	return s.store.ListOrders(ctx, models.OrderFilter{UserID: &userID})
}

// ListAllOrders returns every order after sweeping stale card checkouts
func (s *OrderService) ListAllOrders(ctx context.Context) ([]*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	s.sweep(ctx)
	return s.store.ListOrders(ctx, models.OrderFilter{})
}

// ExpireStaleCardOrders moves placed card orders older than the checkout TTL to card-expired
func (s *OrderService) ExpireStaleCardOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.checkoutTTL)
	expired, err := s.store.ExpireStaleCardOrders(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, order := range expired {
		util.OrdersExpiredTotal.Inc()
		s.publishStatus(ctx, order, models.OrderStatusPlaced, "checkout_expired")
	}
	if len(expired) > 0 {
		s.logger.Info("Expired stale card orders", zap.Int("count", len(expired)), zap.Time("cutoff", cutoff))
	}
	return len(expired), nil
}

func (s *OrderService) sweep(ctx context.Context) {
	if _, err := s.ExpireStaleCardOrders(ctx); err != nil {
		s.logger.Error("Stale card order sweep failed", zap.Error(err))
	}
}

func (s *OrderService) getOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, order *models.Order) {
	if err := s.eventPublisher.PublishOrderPlaced(ctx, order); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) publishStatus(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) {
	if err := s.eventPublisher.PublishStatusChanged(ctx, order, from, reason); err != nil {
		s.logger.Error("Failed to publish order status event",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.Error(err))
	}
}
