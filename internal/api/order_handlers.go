package api

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 255

// createOrder handles order creation from the caller's cart
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	req.UserID = userID(c)
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		h.fail(c, service.ErrInvalidRequest.With("Idempotency-Key is too long", nil))
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	// Card orders answer with the hosted checkout to follow
	if resp.URL != "" {
		ok(c, http.StatusOK, resp)
		return
	}
	ok(c, http.StatusCreated, resp)
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

// listAllOrders returns every order
func (h *Handler) listAllOrders(c *gin.Context) {
	orders, err := h.orders.ListAllOrders(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID(c), isAdmin(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, order)
}

func (h *Handler) collectOrder(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.orders.CollectCashOrder(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, order)
}

// webhook receives payment gateway events. The body is read raw so the
// signature can be checked against the exact bytes sent.
func (h *Handler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, service.ErrInvalidRequest.With("Payload too large", err))
			return
		}
		h.fail(c, service.ErrInvalidRequest.With("Failed to read payload", err))
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Debug("Webhook handled",
		zap.String("event_id", result.EventID),
		zap.String("outcome", result.Outcome))
	ok(c, http.StatusOK, result)
}
