package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error and decides its HTTP status
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindAuthorization
	KindSignature
	KindUpstream
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindAuthorization:
		return "authorization"
	case KindSignature:
		return "signature"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a failure reported to the caller with a message and status
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Status returns the HTTP status for the error kind
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindBusinessRule, KindSignature:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// With returns a copy carrying a specific message and cause. An empty message keeps the default.
func (e *Error) With(message string, err error) *Error {
	out := *e
	if message != "" {
		out.Message = message
	}
	out.Err = err
	return &out
}

// Wrap returns a copy with the default message and err as cause
func (e *Error) Wrap(err error) *Error {
	return e.With("", err)
}

var (
	ErrInvalidRequest = newError(KindValidation, "invalid_request", "Invalid request")
	ErrInternal       = newError(KindInternal, "internal", "Something went wrong")
	ErrRateLimited    = newError(KindRateLimited, "rate_limited", "Too many requests, please try again later")
	ErrUnauthorized   = newError(KindAuthorization, "unauthorized", "You are not logged in")

	ErrInvalidCoupon   = newError(KindBusinessRule, "invalid_coupon", "Coupon is invalid or expired")
	ErrEmptyCart       = newError(KindBusinessRule, "empty_cart", "Your cart is empty")
	ErrProductNotFound = newError(KindNotFound, "product_not_found", "Product not found")
	ErrOutOfStock      = newError(KindBusinessRule, "out_of_stock", "Product is out of stock")
	ErrOrderNotFound   = newError(KindNotFound, "order_not_found", "Order not found")
	ErrNotAuthorized   = newError(KindAuthorization, "not_authorized", "You are not authorized to access this order")
	ErrCannotCancel    = newError(KindBusinessRule, "cannot_cancel", "Order can no longer be canceled")
	ErrCannotCollect   = newError(KindBusinessRule, "cannot_collect", "Only placed cash orders can be marked as collected")

	ErrInvalidSignature = newError(KindSignature, "invalid_signature", "Webhook signature verification failed")
	ErrGateway          = newError(KindUpstream, "gateway_error", "Payment provider is unavailable, please try again")

	ErrCartItemNotFound     = newError(KindNotFound, "cart_item_not_found", "Product is not in your cart")
	ErrAlreadyInWishlist    = newError(KindBusinessRule, "wishlist_duplicate", "Product is already in your wishlist")
	ErrWishlistItemNotFound = newError(KindNotFound, "wishlist_item_not_found", "Product is not in your wishlist")
	ErrCouponNotFound       = newError(KindNotFound, "coupon_not_found", "Coupon not found")
	ErrCouponExists         = newError(KindBusinessRule, "coupon_exists", "Coupon already exists")
	ErrCouponExpired        = newError(KindBusinessRule, "coupon_expired", "Coupon has expired")
)

// OutOfStockError reports the stock actually available for a product
type OutOfStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func outOfStock(productID int64, name string, requested, available int) *Error {
	msg := fmt.Sprintf("Sorry, only %d items of %s are available", available, name)
	if name == "" {
		msg = fmt.Sprintf("Sorry, only %d items of product %d are available", available, productID)
	}
	return ErrOutOfStock.With(msg, &OutOfStockError{
		ProductID: productID,
		Name:      name,
		Requested: requested,
		Available: available,
	})
}

// AsError converts any error into an *Error, defaulting to ErrInternal
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err)
}
