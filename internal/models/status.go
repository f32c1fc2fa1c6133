package models

import (
	"errors"
	"fmt"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPlaced      OrderStatus = "placed"
	OrderStatusCanceled    OrderStatus = "canceled"
	OrderStatusCashSettled OrderStatus = "cash-settled"
	OrderStatusCardPaid    OrderStatus = "card-paid"
	OrderStatusCardFailed  OrderStatus = "card-failed"
	OrderStatusCardExpired OrderStatus = "card-expired"
)

// StockEffect is what happens to product stock when a transition commits
type StockEffect int

const (
	StockNone StockEffect = iota
	// StockSettle decrements available and increments sold items, and clears the cart.
	StockSettle
	// StockRestore is the inverse of StockSettle, applied only to settled orders.
	StockRestore
)

func (e StockEffect) String() string {
	switch e {
	case StockSettle:
		return "settle"
	case StockRestore:
		return "restore"
	default:
		return "none"
	}
}

// ErrInvalidTransition is returned for any transition outside the table
var ErrInvalidTransition = errors.New("invalid order status transition")

type transition struct {
	from OrderStatus
	to   OrderStatus
}

type rule struct {
	payment PaymentMethod // empty means any
	effect  StockEffect
}

var transitions = map[transition]rule{
	{OrderStatusPlaced, OrderStatusCanceled}:        {effect: StockRestore},
	{OrderStatusPlaced, OrderStatusCashSettled}:     {payment: PaymentCash, effect: StockNone},
	{OrderStatusPlaced, OrderStatusCardPaid}:        {payment: PaymentCard, effect: StockSettle},
	{OrderStatusPlaced, OrderStatusCardFailed}:      {payment: PaymentCard, effect: StockNone},
	{OrderStatusPlaced, OrderStatusCardExpired}:     {payment: PaymentCard, effect: StockNone},
	{OrderStatusCardExpired, OrderStatusCardPaid}:   {payment: PaymentCard, effect: StockSettle},
	{OrderStatusCardExpired, OrderStatusCardFailed}: {payment: PaymentCard, effect: StockNone},
}

// Transition validates moving order o to status to and returns the stock
// effect to apply. A restore is downgraded to none when the order never
// had its stock settled.
func Transition(o *Order, to OrderStatus) (StockEffect, error) {
	r, ok := transitions[transition{o.Status, to}]
	if !ok || (r.payment != "" && r.payment != o.Payment) {
		return StockNone, fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, o.Status, to, o.Payment)
	}

	switch r.effect {
	case StockRestore:
		if !o.StockSettled {
			return StockNone, nil
		}
	case StockSettle:
		if o.StockSettled {
			return StockNone, nil
		}
	}
	return r.effect, nil
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	for t := range transitions {
		if t.from == s {
			return false
		}
	}
	return true
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusCanceled, OrderStatusCashSettled,
		OrderStatusCardPaid, OrderStatusCardFailed, OrderStatusCardExpired:
		return true
	}
	return false
}
