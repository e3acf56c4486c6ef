package server

import (
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/qpayrelay/internal/observability/logger"
	"github.com/smallbiznis/qpayrelay/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitInvoice = "invoice"
	rateLimitContact = "contact"
)

// CORS allows the configured browser origins. An origin of "*" allows any.
func CORS(origins []string) gin.HandlerFunc {
	allowAny := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAny || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) ClientRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		clientIP := strings.TrimSpace(c.ClientIP())

		var (
			result *ratelimit.RateLimitResult
			err    error
		)
		switch endpoint {
		case rateLimitContact:
			result, err = s.limiter.AllowContact(ctx, clientIP)
		default:
			result, err = s.limiter.AllowInvoice(ctx, clientIP)
		}
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("rate limit check failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			s.obsMetrics.RecordRateLimited(ctx, endpoint)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
