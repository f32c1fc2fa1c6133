package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

// memStore mirrors the PostgreSQL store: status compare-and-set and
// conditional stock decrements under one lock
type memStore struct {
	mu        sync.Mutex
	products  map[int64]*models.Product
	carts     map[int64][]models.CartItem
	wishlists map[int64][]int64
	coupons   map[string]*models.Coupon
	orders    map[int64]*models.Order
	nextID    int64
	couponID  int64
	clock     func() time.Time

	createErr error
	getErr    error
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[int64]*models.Product{},
		carts:     map[int64][]models.CartItem{},
		wishlists: map[int64][]int64{},
		coupons:   map[string]*models.Coupon{},
		orders:    map[int64]*models.Order{},
		clock:     time.Now,
	}
}

func (m *memStore) addProduct(id int64, name string, price, discount int64, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &models.Product{
		ID:             id,
		Name:           name,
		Price:          decimal.NewFromInt(price),
		Discount:       decimal.NewFromInt(discount),
		AvailableItems: available,
	}
}

func (m *memStore) addToCart(userID, productID int64, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = append(m.carts[userID], models.CartItem{UserID: userID, ProductID: productID, Quantity: qty})
}

func (m *memStore) addCoupon(name string, discount int64, expiredAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.couponID++
	m.coupons[name] = &models.Coupon{ID: m.couponID, Name: name, Discount: decimal.NewFromInt(discount), ExpiredAt: expiredAt}
}

func (m *memStore) product(id int64) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id]
}

func (m *memStore) order(id int64) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	return copyOrder(o)
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) cartLen(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

func (m *memStore) setCreatedAt(orderID int64, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].CreatedAt = t
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem{}, o.Items...)
	if o.Coupon != nil {
		coupon := *o.Coupon
		c.Coupon = &coupon
	}
	return &c
}

func (m *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListProducts(_ context.Context, q store.ProductQuery) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Product
	for _, p := range m.products {
		if q.Keyword != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Keyword)) {
			continue
		}
		if q.CategoryID != 0 && p.CategoryID != q.CategoryID {
			continue
		}
		if q.BrandID != 0 && p.BrandID != q.BrandID {
			continue
		}
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if q.Offset >= total {
		return []models.Product{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return all[q.Offset:end], total, nil
}

func (m *memStore) ListCategories(context.Context) ([]models.Category, error) {
	return []models.Category{{ID: 1, Name: "Phones", Slug: "phones"}}, nil
}

func (m *memStore) ListBrands(context.Context) ([]models.Brand, error) {
	return []models.Brand{{ID: 1, Name: "Acme", Slug: "acme"}}, nil
}

func (m *memStore) GetCart(_ context.Context, userID int64) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CartItem{}, m.carts[userID]...), nil
}

func (m *memStore) GetCartItem(_ context.Context, userID, productID int64) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.carts[userID] {
		if item.ProductID == productID {
			c := item
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) SetCartItem(_ context.Context, userID, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.carts[userID] {
		if item.ProductID == productID {
			m.carts[userID][i].Quantity = quantity
			return nil
		}
	}
	m.carts[userID] = append(m.carts[userID], models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity})
	return nil
}

func (m *memStore) RemoveCartItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.carts[userID] {
		if item.ProductID == productID {
			m.carts[userID] = append(m.carts[userID][:i], m.carts[userID][i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ClearCart(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *memStore) AddWishlistItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.wishlists[userID] {
		if id == productID {
			return store.ErrDuplicate
		}
	}
	m.wishlists[userID] = append(m.wishlists[userID], productID)
	return nil
}

func (m *memStore) ListWishlist(_ context.Context, userID int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, id := range m.wishlists[userID] {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) RemoveWishlistItem(_ context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range m.wishlists[userID] {
		if id == productID {
			m.wishlists[userID] = append(m.wishlists[userID][:i], m.wishlists[userID][i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) CreateCoupon(_ context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Name]; ok {
		return store.ErrDuplicate
	}
	m.couponID++
	c.ID = m.couponID
	stored := *c
	m.coupons[c.Name] = &stored
	return nil
}

func (m *memStore) GetCouponByName(_ context.Context, name string) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memStore) UpdateCoupon(_ context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Name]; !ok {
		return store.ErrNotFound
	}
	stored := *c
	m.coupons[c.Name] = &stored
	return nil
}

func (m *memStore) DeleteCoupon(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[name]; !ok {
		return store.ErrNotFound
	}
	delete(m.coupons, name)
	return nil
}

func (m *memStore) ListCoupons(context.Context) ([]models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Coupon{}
	for _, c := range m.coupons {
		out = append(out, *c)
	}
	return out, nil
}

// settle must be called with the lock held
func (m *memStore) settle(o *models.Order) error {
	for _, item := range o.Items {
		p := m.products[item.ProductID]
		if p == nil {
			return store.ErrNotFound
		}
		if p.AvailableItems < item.Quantity {
			return &store.InsufficientStockError{ProductID: p.ID, Requested: item.Quantity, Available: p.AvailableItems}
		}
	}
	for _, item := range o.Items {
		p := m.products[item.ProductID]
		p.AvailableItems -= item.Quantity
		p.SoldItems += item.Quantity
	}
	delete(m.carts, o.UserID)
	return nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, settle bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if order.IdempotencyKey != "" {
		for _, o := range m.orders {
			if o.IdempotencyKey == order.IdempotencyKey {
				return store.ErrDuplicate
			}
		}
	}
	if settle {
		if err := m.settle(order); err != nil {
			return err
		}
		order.StockSettled = true
	}

	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = m.clock()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", store.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key && o.UserID == userID {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (m *memStore) ListOrders(_ context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Order{}
	for _, o := range m.orders {
		if o.Status == models.OrderStatusPlaced && o.Payment == models.PaymentCard {
			continue
		}
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) SetCheckoutSession(_ context.Context, orderID int64, sessionID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.CheckoutSessionID = sessionID
	o.CheckoutURL = url
	return nil
}

func (m *memStore) TransitionOrder(_ context.Context, orderID int64, from, to models.OrderStatus, effect models.StockEffect) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.Status != from {
		return copyOrder(o), store.ErrStatusConflict
	}

	switch effect {
	case models.StockSettle:
		if err := m.settle(o); err != nil {
			return nil, err
		}
		o.StockSettled = true
	case models.StockRestore:
		for _, item := range o.Items {
			if p := m.products[item.ProductID]; p != nil {
				p.AvailableItems += item.Quantity
				p.SoldItems -= item.Quantity
			}
		}
		o.StockSettled = false
	}
	o.Status = to
	return copyOrder(o), nil
}

func (m *memStore) ExpireStaleCardOrders(_ context.Context, cutoff time.Time) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Order{}
	for _, o := range m.orders {
		if o.Status == models.OrderStatusPlaced && o.Payment == models.PaymentCard && o.CreatedAt.Before(cutoff) {
			o.Status = models.OrderStatusCardExpired
			out = append(out, copyOrder(o))
		}
	}
	return out, nil
}

const validSignature = "t=1,v1=valid"

// fakeGateway verifies a payload by comparing the header and decodes the
// payload as a payment.Event
type fakeGateway struct {
	mu              sync.Mutex
	discountErr     error
	sessionErr      error
	expireErr       error
	discounts       []decimal.Decimal
	sessions        []*payment.CheckoutRequest
	expiredSessions []string
}

func (g *fakeGateway) CreateDiscount(_ context.Context, percentOff decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.discountErr != nil {
		return "", g.discountErr
	}
	g.discounts = append(g.discounts, percentOff)
	return fmt.Sprintf("coupon_%d", len(g.discounts)), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req *payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_test_%d", req.OrderID)
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expiredSessions = append(g.expiredSessions, sessionID)
	return g.expireErr
}

func (g *fakeGateway) VerifyEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	if signatureHeader != validSignature {
		return nil, payment.ErrInvalidSignature
	}
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func eventPayload(id, eventType string, orderID int64) []byte {
	raw, _ := json.Marshal(payment.Event{ID: id, Type: eventType, OrderID: orderID})
	return raw
}

type publishedEvent struct {
	orderID int64
	from    models.OrderStatus
	to      models.OrderStatus
	reason  string
}

type fakePublisher struct {
	mu      sync.Mutex
	placed  []int64
	changes []publishedEvent
	err     error
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, order.ID)
	return p.err
}

func (p *fakePublisher) PublishStatusChanged(_ context.Context, order *models.Order, from models.OrderStatus, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, publishedEvent{orderID: order.ID, from: from, to: order.Status, reason: reason})
	return p.err
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (d *fakeDeduper) SeenEvent(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.seen[eventID], nil
}

func (d *fakeDeduper) MarkEvent(_ context.Context, eventID string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.seen[eventID] = true
	return nil
}

var errBoom = errors.New("boom")
