package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCoupon(c *gin.Context) {
	var req service.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, coupon)
}

func (h *Handler) listCoupons(c *gin.Context) {
	coupons, err := h.coupons.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, coupons)
}

func (h *Handler) getCoupon(c *gin.Context) {
	coupon, err := h.coupons.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, coupon)
}

func (h *Handler) updateCoupon(c *gin.Context) {
	var req service.UpdateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	coupon, err := h.coupons.Update(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, coupon)
}

func (h *Handler) deleteCoupon(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), c.Param("code")); err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, "Coupon deleted")
}

func (h *Handler) listProducts(c *gin.Context) {
	var req service.ProductListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, product)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, categories)
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.catalog.ListBrands(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, brands)
}
