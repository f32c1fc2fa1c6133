package api

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	scopeGlobal = "global"
	scopeOrder  = "order_create"
)

// RateLimiter counts requests per key in fixed windows
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*redisclient.RateLimitResult, error)
}

// rateLimit allows limit requests per window for each key. Limiter errors fail open.
func (h *Handler) rateLimit(scope string, limit int, window time.Duration, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}

		result, err := h.limiter.Allow(c.Request.Context(), fmt.Sprintf("%s:%s", scope, key(c)), limit, window)
		if err != nil {
			h.logger.Warn("Rate limiter unavailable, allowing request",
				zap.String("scope", scope),
				zap.Error(err))
			c.Next()
			return
		}

		if !result.Allowed {
			util.RateLimitedTotal.WithLabelValues(scope).Inc()
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			h.fail(c, service.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func clientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

func userKey(c *gin.Context) string {
	return "user:" + strconv.FormatInt(userID(c), 10)
}
