package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"storefront/config"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const metadataOrderID = "order_id"

// StripeGateway implements Gateway on Stripe Checkout
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
	logger        *zap.Logger
}

// NewStripeGateway creates a gateway with one reusable API client
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	return newStripeGateway(client.New(cfg.SecretKey, nil), cfg)
}

func newStripeGateway(sc *client.API, cfg config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		sc:            sc,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		currency:      cfg.Currency,
		logger:        util.GetLogger(),
	}
}

func observe(operation string, start time.Time) {
	util.GatewayRequestLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CreateDiscount creates a single-use percentage coupon
func (g *StripeGateway) CreateDiscount(ctx context.Context, percentOff decimal.Decimal) (string, error) {
	defer observe("create_discount", time.Now())

	params := &stripe.CouponParams{
		PercentOff: stripe.Float64(percentOff.InexactFloat64()),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx

	coupon, err := g.sc.Coupons.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe coupon: %w", err)
	}
	return coupon.ID, nil
}

// CreateCheckoutSession creates a payment-mode session whose metadata carries the order id
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	defer observe("create_checkout_session", time.Now())

	orderID := strconv.FormatInt(req.OrderID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(orderID),
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(MinorUnits(item.UnitPrice)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	if req.DiscountID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.DiscountID)},
		}
	}

	params.AddMetadata(metadataOrderID, orderID)
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}

	g.logger.Info("Checkout session created",
		zap.Int64("order_id", req.OrderID),
		zap.String("session_id", session.ID))

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	defer observe("expire_checkout_session", time.Now())

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.sc.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("failed to expire stripe checkout session: %w", err)
	}
	return nil
}

// eventObject is the slice of event.data.object reconciliation reads. It is
// shared by checkout sessions and payment intents.
type eventObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// VerifyEvent checks the Stripe-Signature header over the raw payload
func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode event object: %w", err)
	}

	ref := obj.Metadata[metadataOrderID]
	if ref == "" && obj.Object == "checkout.session" {
		ref = obj.ClientReferenceID
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		out.OrderID = id
	}
	if obj.Object == "checkout.session" {
		out.SessionID = obj.ID
	}

	return out, nil
}
