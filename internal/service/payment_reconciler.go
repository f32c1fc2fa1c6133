package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Webhook outcomes, also used as metric labels
const (
	OutcomeIgnored          = "ignored"
	OutcomeDuplicate        = "duplicate"
	OutcomeUnknownOrder     = "unknown_order"
	OutcomeAlreadyApplied   = "already_applied"
	OutcomeRejected         = "rejected"
	OutcomePaid             = "paid"
	OutcomeFailed           = "failed"
	OutcomeOutOfStock       = "out_of_stock_at_settlement"
	OutcomeInvalidSignature = "invalid_signature"
)

const maxTransitionAttempts = 3

// WebhookResult describes how an event was handled
type WebhookResult struct {
	EventID string `json:"event_id"`
	OrderID int64  `json:"order_id,omitempty"`
	Outcome string `json:"outcome"`
}

// PaymentReconciler applies verified gateway events to card orders
type PaymentReconciler struct {
	store          OrderStore
	gateway        payment.Gateway
	deduper        EventDeduper
	eventPublisher EventPublisher
	dedupeTTL      time.Duration
	logger         *zap.Logger
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(
	store OrderStore,
	gateway payment.Gateway,
	deduper EventDeduper,
	eventPublisher EventPublisher,
	dedupeTTL time.Duration,
) *PaymentReconciler {
	return &PaymentReconciler{
		store:          store,
		gateway:        gateway,
		deduper:        deduper,
		eventPublisher: eventPublisher,
		dedupeTTL:      dedupeTTL,
		logger:         util.GetLogger(),
	}
}

// HandleWebhook verifies the raw payload and reconciles the order it names.
// A returned error means the event was not applied and should be redelivered.
func (r *PaymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleWebhook")
	defer span.End()

	event, err := r.gateway.VerifyEvent(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(OutcomeInvalidSignature).Inc()
		r.logger.Warn("Rejected webhook with invalid signature", zap.Error(err))
		return nil, ErrInvalidSignature.Wrap(err)
	}

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("event_type", event.Type),
		attribute.Int64("order_id", event.OrderID))

	result := &WebhookResult{EventID: event.ID, OrderID: event.OrderID}

	if !event.HasOrder() {
		result.Outcome = OutcomeIgnored
		util.WebhookEventsTotal.WithLabelValues(result.Outcome).Inc()
		r.logger.Debug("Ignoring event without order reference",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return result, nil
	}

	if r.seen(ctx, event.ID) {
		result.Outcome = OutcomeDuplicate
		util.WebhookEventsTotal.WithLabelValues(result.Outcome).Inc()
		r.logger.Info("Event already processed", zap.String("event_id", event.ID))
		return result, nil
	}

	target := models.OrderStatusCardFailed
	if event.Succeeded() {
		target = models.OrderStatusCardPaid
	}

	outcome, err := r.reconcile(ctx, event, target)
	if err != nil {
		util.RecordError(span, err)
		r.logger.Error("Failed to reconcile payment event",
			zap.String("event_id", event.ID),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		return nil, err
	}

	if err := r.deduper.MarkEvent(ctx, event.ID, r.dedupeTTL); err != nil {
		r.logger.Warn("Failed to mark event processed", zap.String("event_id", event.ID), zap.Error(err))
	}

	result.Outcome = outcome
	util.WebhookEventsTotal.WithLabelValues(outcome).Inc()
	return result, nil
}

// seen fails open: a Redis error lets the event through to the status guard
func (r *PaymentReconciler) seen(ctx context.Context, eventID string) bool {
	seen, err := r.deduper.SeenEvent(ctx, eventID)
	if err != nil {
		r.logger.Warn("Event dedupe lookup failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

func (r *PaymentReconciler) reconcile(ctx context.Context, event *payment.Event, target models.OrderStatus) (string, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := r.store.GetOrderByID(ctx, event.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Payment event for unknown order",
				zap.String("event_id", event.ID),
				zap.Int64("order_id", event.OrderID))
			return OutcomeUnknownOrder, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to get order: %w", err)
		}

		if order.Status == target {
			return OutcomeAlreadyApplied, nil
		}

		effect, err := models.Transition(order, target)
		if err != nil {
			r.logger.Warn("Payment event rejected by order state",
				zap.String("event_id", event.ID),
				zap.Int64("order_id", order.ID),
				zap.String("status", string(order.Status)),
				zap.String("target", string(target)),
				zap.Error(err))
			return OutcomeRejected, nil
		}

		start := time.Now()
		updated, err := r.store.TransitionOrder(ctx, order.ID, order.Status, target, effect)
		if effect == models.StockSettle {
			util.StockSettleLatency.Observe(time.Since(start).Seconds())
		}

		var stockErr *store.InsufficientStockError
		switch {
		case err == nil:
			return r.applied(ctx, updated, order.Status, event), nil
		case errors.Is(err, store.ErrStatusConflict):
			continue
		case errors.As(err, &stockErr):
			return r.failSettlement(ctx, order, stockErr)
		default:
			return "", fmt.Errorf("failed to transition order: %w", err)
		}
	}

	return "", fmt.Errorf("order %d changed status %d times during reconciliation", event.OrderID, maxTransitionAttempts)
}

func (r *PaymentReconciler) applied(ctx context.Context, order *models.Order, from models.OrderStatus, event *payment.Event) string {
	if order.Status == models.OrderStatusCardPaid {
		util.OrdersPaidTotal.Inc()
		r.logger.Info("Order paid",
			zap.Int64("order_id", order.ID),
			zap.String("event_id", event.ID),
			zap.String("from", string(from)))
		r.publish(ctx, order, from, "")
		return OutcomePaid
	}

	util.OrdersPaymentFailedTotal.Inc()
	r.logger.Info("Order payment failed",
		zap.Int64("order_id", order.ID),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	r.publish(ctx, order, from, event.Type)
	return OutcomeFailed
}

// failSettlement moves a paid-for order whose stock ran out to card-failed
func (r *PaymentReconciler) failSettlement(ctx context.Context, order *models.Order, stockErr *store.InsufficientStockError) (string, error) {
	util.OrdersFailedTotal.WithLabelValues(OutcomeOutOfStock).Inc()
	r.logger.Error("Insufficient stock at settlement",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", stockErr.ProductID),
		zap.Int("available", stockErr.Available),
		zap.Int("requested", stockErr.Requested))

	updated, err := r.store.TransitionOrder(ctx, order.ID, order.Status, models.OrderStatusCardFailed, models.StockNone)
	if err != nil {
		return "", fmt.Errorf("failed to mark order as card-failed: %w", err)
	}

	util.OrdersPaymentFailedTotal.Inc()
	r.publish(ctx, updated, order.Status, OutcomeOutOfStock)
	return OutcomeOutOfStock, nil
}

func (r *PaymentReconciler) publish(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) {
	if err := r.eventPublisher.PublishStatusChanged(ctx, order, from, reason); err != nil {
		r.logger.Error("Failed to publish order status event",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.Error(err))
	}
}
