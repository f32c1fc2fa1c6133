// Package payment adapts the hosted card checkout provider.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event types that confirm a successful card payment
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Gateway creates discounts and hosted checkout sessions and authenticates
// the events the provider sends back
type Gateway interface {
	CreateDiscount(ctx context.Context, percentOff decimal.Decimal) (string, error)
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}

// LineItem is one priced line of a checkout session
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CheckoutRequest describes the session to create for an order
type CheckoutRequest struct {
	OrderID        int64
	UserID         int64
	LineItems      []LineItem
	DiscountID     string
	ExpiresAt      time.Time
	IdempotencyKey string
}

// CheckoutSession is a created hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a verified provider event reduced to what reconciliation needs
type Event struct {
	ID        string
	Type      string
	OrderID   int64
	SessionID string
}

// HasOrder reports whether the event carries an order reference
func (e *Event) HasOrder() bool {
	return e.OrderID > 0
}

// Succeeded reports whether the event confirms payment
func (e *Event) Succeeded() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventCheckoutAsyncPaymentSucceeded
}

// MinorUnits converts an amount to the smallest currency unit
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
