package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderCanceled      = "ORDER_CANCELED"
	EventTypeOrderCashCollected = "ORDER_CASH_COLLECTED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderPaymentFailed = "ORDER_PAYMENT_FAILED"
	EventTypeOrderExpired       = "ORDER_EXPIRED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
}

// OrderPlacedEvent published when an order is persisted
type OrderPlacedEvent struct {
	BaseEvent
	Payment    PaymentMethod   `json:"payment"`
	Price      decimal.Decimal `json:"price"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Coupon     string          `json:"coupon,omitempty"`
	Items      []OrderItemData `json:"items"`
}

// OrderStatusEvent published on every status transition after placement
type OrderStatusEvent struct {
	BaseEvent
	From   OrderStatus `json:"from"`
	To     OrderStatus `json:"to"`
	Reason string      `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// EventTypeForStatus returns the event type published when an order enters s
func EventTypeForStatus(s OrderStatus) string {
	switch s {
	case OrderStatusCanceled:
		return EventTypeOrderCanceled
	case OrderStatusCashSettled:
		return EventTypeOrderCashCollected
	case OrderStatusCardPaid:
		return EventTypeOrderPaid
	case OrderStatusCardFailed:
		return EventTypeOrderPaymentFailed
	case OrderStatusCardExpired:
		return EventTypeOrderExpired
	default:
		return EventTypeOrderPlaced
	}
}
