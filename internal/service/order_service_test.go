package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser    int64 = 7
	otherUser   int64 = 8
	testProduct int64 = 1
	checkoutTTL       = time.Hour
)

type orderFixture struct {
	store      *memStore
	gateway    *fakeGateway
	publisher  *fakePublisher
	deduper    *fakeDeduper
	orders     *OrderService
	reconciler *PaymentReconciler
}

// newOrderFixture stocks product 1 at 100 with 10% off and 5 available,
// and puts 2 of it in the test user's cart
func newOrderFixture() *orderFixture {
	f := &orderFixture{
		store:     newMemStore(),
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		deduper:   newFakeDeduper(),
	}
	f.store.addProduct(testProduct, "Phone", 100, 10, 5)
	f.store.addToCart(testUser, testProduct, 2)

	f.orders = NewOrderService(f.store, f.gateway, f.publisher, checkoutTTL)
	f.reconciler = NewPaymentReconciler(f.store, f.gateway, f.deduper, f.publisher, 24*time.Hour)
	return f
}

func cashRequest(userID int64) *CreateOrderRequest {
	return &CreateOrderRequest{
		UserID:  userID,
		Address: "12 Nile Street, Cairo",
		Phone:   "01012345678",
		Payment: models.PaymentCash,
	}
}

func cardRequest(userID int64) *CreateOrderRequest {
	req := cashRequest(userID)
	req.Payment = models.PaymentCard
	return req
}

// placeCard creates a card order for the test user and returns its id
func (f *orderFixture) placeCard(t *testing.T) int64 {
	t.Helper()
	resp, err := f.orders.CreateOrder(context.Background(), cardRequest(testUser))
	require.NoError(t, err)
	require.NotEmpty(t, resp.URL)
	require.NotEmpty(t, f.gateway.sessions)
	return f.gateway.sessions[len(f.gateway.sessions)-1].OrderID
}

func (f *orderFixture) deliver(t *testing.T, eventID, eventType string, orderID int64) *WebhookResult {
	t.Helper()
	result, err := f.reconciler.HandleWebhook(context.Background(), eventPayload(eventID, eventType, orderID), validSignature)
	require.NoError(t, err)
	return result
}

func TestCreateCashOrder(t *testing.T) {
	f := newOrderFixture()

	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)
	require.NotNil(t, resp.Order)
	assert.Empty(t, resp.URL)

	order := resp.Order
	assert.True(t, decimal.NewFromInt(180).Equal(order.Price), "price %s", order.Price)
	assert.True(t, decimal.NewFromInt(180).Equal(order.FinalPrice()))
	assert.Equal(t, models.OrderStatusPlaced, order.Status)
	assert.True(t, order.StockSettled)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Phone", order.Items[0].Name)
	assert.True(t, decimal.NewFromInt(90).Equal(order.Items[0].ItemPrice))

	p := f.store.product(testProduct)
	assert.Equal(t, 3, p.AvailableItems)
	assert.Equal(t, 2, p.SoldItems)
	assert.Equal(t, 0, f.store.cartLen(testUser))
	assert.Equal(t, []int64{order.ID}, f.publisher.placed)
}

func TestCreateOrderWithCoupon(t *testing.T) {
	f := newOrderFixture()
	f.store.addCoupon("SAVE10", 10, time.Now().Add(time.Hour))

	req := cashRequest(testUser)
	req.Coupon = "save10"
	resp, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, resp.Order.Coupon)
	assert.Equal(t, "SAVE10", resp.Order.Coupon.Name)
	assert.True(t, decimal.NewFromInt(180).Equal(resp.Order.Price))
	assert.True(t, decimal.NewFromInt(162).Equal(resp.Order.FinalPrice()))
}

func TestCreateOrderRejectsInvalidCoupon(t *testing.T) {
	tests := []struct {
		name   string
		coupon string
	}{
		{"unknown", "NOPE"},
		{"expired", "OLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture()
			f.store.addCoupon("OLD", 10, time.Now().Add(-time.Minute))

			req := cashRequest(testUser)
			req.Coupon = tt.coupon
			_, err := f.orders.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidCoupon)

			assert.Equal(t, 0, f.store.orderCount())
			assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
			assert.Equal(t, 1, f.store.cartLen(testUser))
		})
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newOrderFixture()

	_, err := f.orders.CreateOrder(context.Background(), cashRequest(otherUser))
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.store.orderCount())
}

func TestCreateOrderOutOfStock(t *testing.T) {
	f := newOrderFixture()
	f.store.addToCart(otherUser, testProduct, 6)

	_, err := f.orders.CreateOrder(context.Background(), cashRequest(otherUser))
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, "Sorry, only 5 items of Phone are available", AsError(err).Message)

	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
}

func TestCreateOrderMissingProduct(t *testing.T) {
	f := newOrderFixture()
	f.store.addToCart(otherUser, 99, 1)

	_, err := f.orders.CreateOrder(context.Background(), cashRequest(otherUser))
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 0, f.store.orderCount())
}

func TestCreateOrderStoreFailureIsInternal(t *testing.T) {
	f := newOrderFixture()
	f.store.createErr = errBoom

	_, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, AsError(err), ErrInternal)
	assert.Equal(t, 1, f.store.cartLen(testUser))
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	f := newOrderFixture()

	req := cashRequest(testUser)
	req.IdempotencyKey = "checkout-1"
	first, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 3, f.store.product(testProduct).AvailableItems)
}

func TestCreateOrderIdempotencyKeyReplaysCheckoutURL(t *testing.T) {
	f := newOrderFixture()

	req := cardRequest(testUser)
	req.IdempotencyKey = "checkout-2"
	first, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	assert.Len(t, f.gateway.sessions, 1)
}

func TestConcurrentCashOrdersNeverOversell(t *testing.T) {
	f := newOrderFixture()
	const buyers = 10
	for i := 0; i < buyers; i++ {
		f.store.addToCart(int64(100+i), testProduct, 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.orders.CreateOrder(context.Background(), cashRequest(userID))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrOutOfStock)
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	p := f.store.product(testProduct)
	assert.Equal(t, 0, p.AvailableItems)
	assert.Equal(t, 5, p.SoldItems)
}

func TestCreateCardOrderOpensCheckout(t *testing.T) {
	f := newOrderFixture()
	f.store.addCoupon("SAVE10", 10, time.Now().Add(time.Hour))

	req := cardRequest(testUser)
	req.Coupon = "SAVE10"
	resp, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp.Order)

	require.Len(t, f.gateway.sessions, 1)
	checkout := f.gateway.sessions[0]
	assert.Equal(t, "https://checkout.test/cs_test_1", resp.URL)
	assert.Equal(t, "coupon_1", checkout.DiscountID)
	assert.Equal(t, "order-1-checkout", checkout.IdempotencyKey)
	require.Len(t, checkout.LineItems, 1)
	assert.True(t, decimal.NewFromInt(90).Equal(checkout.LineItems[0].UnitPrice))
	assert.Equal(t, 2, checkout.LineItems[0].Quantity)

	order := f.store.order(checkout.OrderID)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPlaced, order.Status)
	assert.False(t, order.StockSettled)
	assert.Equal(t, "cs_test_1", order.CheckoutSessionID)
	assert.Equal(t, order.CreatedAt.Add(checkoutTTL), checkout.ExpiresAt)

	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
	assert.Equal(t, 1, f.store.cartLen(testUser))
}

func TestCreateCardOrderGatewayFailure(t *testing.T) {
	f := newOrderFixture()
	f.gateway.sessionErr = errBoom

	_, err := f.orders.CreateOrder(context.Background(), cardRequest(testUser))
	require.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, errBoom)

	order := f.store.order(1)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusCardFailed, order.Status)
	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
	assert.Equal(t, 1, f.store.cartLen(testUser))
}

func TestCancelCashOrderRestoresStockOnce(t *testing.T) {
	f := newOrderFixture()
	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)
	require.Equal(t, 3, f.store.product(testProduct).AvailableItems)

	canceled, err := f.orders.CancelOrder(context.Background(), resp.Order.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, canceled.Status)
	assert.False(t, canceled.StockSettled)
	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)

	_, err = f.orders.CancelOrder(context.Background(), resp.Order.ID, testUser)
	assert.ErrorIs(t, err, ErrCannotCancel)
	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
	assert.Equal(t, 0, f.store.product(testProduct).SoldItems)
}

func TestCancelCardOrderExpiresCheckout(t *testing.T) {
	f := newOrderFixture()
	orderID := f.placeCard(t)

	canceled, err := f.orders.CancelOrder(context.Background(), orderID, testUser)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, canceled.Status)
	assert.Equal(t, []string{"cs_test_1"}, f.gateway.expiredSessions)
	assert.Equal(t, 5, f.store.product(testProduct).AvailableItems)
}

func TestCancelOrderChecksOwnership(t *testing.T) {
	f := newOrderFixture()
	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(context.Background(), resp.Order.ID, otherUser)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.orders.CancelOrder(context.Background(), 404, testUser)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, models.OrderStatusPlaced, f.store.order(resp.Order.ID).Status)
}

func TestCollectCashOrder(t *testing.T) {
	f := newOrderFixture()
	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)

	collected, err := f.orders.CollectCashOrder(context.Background(), resp.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCashSettled, collected.Status)
	assert.Equal(t, 3, f.store.product(testProduct).AvailableItems)

	_, err = f.orders.CollectCashOrder(context.Background(), resp.Order.ID)
	assert.ErrorIs(t, err, ErrCannotCollect)

	_, err = f.orders.CancelOrder(context.Background(), resp.Order.ID, testUser)
	assert.ErrorIs(t, err, ErrCannotCancel)
}

func TestCollectRejectsCardOrder(t *testing.T) {
	f := newOrderFixture()
	orderID := f.placeCard(t)

	_, err := f.orders.CollectCashOrder(context.Background(), orderID)
	assert.ErrorIs(t, err, ErrCannotCollect)
	assert.Equal(t, models.OrderStatusPlaced, f.store.order(orderID).Status)
}

func TestGetOrderVisibility(t *testing.T) {
	f := newOrderFixture()
	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)

	order, err := f.orders.GetOrder(context.Background(), resp.Order.ID, testUser, false)
	require.NoError(t, err)
	assert.Equal(t, resp.Order.ID, order.ID)

	_, err = f.orders.GetOrder(context.Background(), resp.Order.ID, otherUser, false)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.orders.GetOrder(context.Background(), resp.Order.ID, otherUser, true)
	assert.NoError(t, err)

	_, err = f.orders.GetOrder(context.Background(), 404, testUser, true)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrdersHidesOpenCheckouts(t *testing.T) {
	f := newOrderFixture()
	f.placeCard(t)

	orders, err := f.orders.ListOrders(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, orders)

	resp, err := f.orders.CreateOrder(context.Background(), cashRequest(testUser))
	require.NoError(t, err)

	orders, err = f.orders.ListOrders(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, resp.Order.ID, orders[0].ID)

	orders, err = f.orders.ListOrders(context.Background(), otherUser)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSweepExpiresStaleCardOrders(t *testing.T) {
	f := newOrderFixture()
	stale := f.placeCard(t)
	f.store.setCreatedAt(stale, time.Now().Add(-2*checkoutTTL))
	fresh := f.placeCard(t)

	orders, err := f.orders.ListAllOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, stale, orders[0].ID)
	assert.Equal(t, models.OrderStatusCardExpired, orders[0].Status)
	assert.Equal(t, models.OrderStatusPlaced, f.store.order(fresh).Status)

	require.NotEmpty(t, f.publisher.changes)
	last := f.publisher.changes[len(f.publisher.changes)-1]
	assert.Equal(t, models.OrderStatusCardExpired, last.to)
	assert.Equal(t, "checkout_expired", last.reason)

	n, err := f.orders.ExpireStaleCardOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLatePaymentSettlesExpiredOrder(t *testing.T) {
	f := newOrderFixture()
	orderID := f.placeCard(t)
	f.store.setCreatedAt(orderID, time.Now().Add(-2*checkoutTTL))

	n, err := f.orders.ExpireStaleCardOrders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result := f.deliver(t, "evt_late", payment.EventCheckoutCompleted, orderID)
	assert.Equal(t, OutcomePaid, result.Outcome)

	order := f.store.order(orderID)
	assert.Equal(t, models.OrderStatusCardPaid, order.Status)
	assert.True(t, order.StockSettled)
	assert.Equal(t, 3, f.store.product(testProduct).AvailableItems)
}
