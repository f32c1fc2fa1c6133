package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	cart, err := h.carts.AddItem(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req service.CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	cart, err := h.carts.UpdateItem(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, err := paramID(c, "productId")
	if err != nil {
		h.fail(c, err)
		return
	}

	cart, err := h.carts.RemoveItem(c.Request.Context(), userID(c), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearCart(c.Request.Context(), userID(c)); err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "Cart cleared")
}

func (h *Handler) addWishlistItem(c *gin.Context) {
	var req service.WishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	products, err := h.wishlists.Add(c.Request.Context(), userID(c), req.ProductID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, products)
}

func (h *Handler) getWishlist(c *gin.Context) {
	products, err := h.wishlists.List(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, products)
}

func (h *Handler) removeWishlistItem(c *gin.Context) {
	productID, err := paramID(c, "productId")
	if err != nil {
		h.fail(c, err)
		return
	}

	products, err := h.wishlists.Remove(c.Request.Context(), userID(c), productID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, products)
}
