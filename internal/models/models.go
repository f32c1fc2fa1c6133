package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Product represents a catalog product with its stock counters
type Product struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    string          `db:"description" json:"description"`
	CategoryID     int64           `db:"category_id" json:"category_id"`
	BrandID        int64           `db:"brand_id" json:"brand_id"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	AvailableItems int             `db:"available_items" json:"available_items"`
	SoldItems      int             `db:"sold_items" json:"sold_items"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// FinalPrice returns the price after the product discount, rounded to 2 decimals
func (p *Product) FinalPrice() decimal.Decimal {
	off := p.Price.Mul(p.Discount).Div(hundred)
	return p.Price.Sub(off).Round(2)
}

// MarshalJSON adds the computed final_price
func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		FinalPrice decimal.Decimal `json:"final_price"`
	}{product(p), p.FinalPrice()})
}

// InStock reports whether quantity items can be taken from available stock
func (p *Product) InStock(quantity int) bool {
	return p.AvailableItems >= quantity
}

// Category groups products
type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Brand is the manufacturer of a product
type Brand struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is one product line in a user's cart
type CartItem struct {
	UserID    int64     `db:"user_id" json:"-"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WishlistItem is one product saved in a user's wishlist
type WishlistItem struct {
	UserID    int64     `db:"user_id" json:"-"`
	ProductID int64     `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Coupon is a named percentage discount with an expiry
type Coupon struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	ExpiredAt time.Time       `db:"expired_at" json:"expired_at"`
	CreatedBy int64           `db:"created_by" json:"created_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ValidAt reports whether the coupon can still be applied at t
func (c *Coupon) ValidAt(t time.Time) bool {
	return c.ExpiredAt.After(t)
}

// PaymentMethod is how an order is paid
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// CouponSnapshot is the coupon as it was when the order was created
type CouponSnapshot struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Discount decimal.Decimal `json:"discount"`
}

// Order is a frozen snapshot of a cart plus a mutable status
type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Address           string          `json:"address"`
	Phone             string          `json:"phone"`
	Payment           PaymentMethod   `json:"payment"`
	Items             []OrderItem     `json:"items"`
	Price             decimal.Decimal `json:"price"`
	Coupon            *CouponSnapshot `json:"coupon,omitempty"`
	Status            OrderStatus     `json:"status"`
	StockSettled      bool            `json:"stock_settled"`
	CheckoutSessionID string          `json:"-"`
	CheckoutURL       string          `json:"-"`
	IdempotencyKey    string          `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// FinalPrice is the order price after the coupon, rounded to 2 decimals
func (o *Order) FinalPrice() decimal.Decimal {
	if o.Coupon == nil {
		return o.Price.Round(2)
	}
	off := o.Price.Mul(o.Coupon.Discount).Div(hundred)
	return o.Price.Sub(off).Round(2)
}

// MarshalJSON adds the computed final_price
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		FinalPrice decimal.Decimal `json:"final_price"`
	}{order(o), o.FinalPrice()})
}

// OrderItem is a line of an order. Name and prices never change after creation.
type OrderItem struct {
	ID         int64           `db:"id" json:"id"`
	OrderID    int64           `db:"order_id" json:"order_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	Name       string          `db:"name" json:"name"`
	Quantity   int             `db:"quantity" json:"quantity"`
	ItemPrice  decimal.Decimal `db:"item_price" json:"item_price"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
}

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID *int64
}
