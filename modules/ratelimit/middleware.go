package ratelimit

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// KeyFunc extracts the rate limit key of a request.
type KeyFunc func(c *fiber.Ctx) string

// Middleware applies a Limiter to Fiber routes.
type Middleware struct {
	limiter Limiter
	limit   int
	logger  types.Logger
}

// NewMiddleware creates a middleware reporting limit in X-RateLimit-Limit.
func NewMiddleware(limiter Limiter, limit int, logger types.Logger) *Middleware {
	return &Middleware{
		limiter: limiter,
		limit:   limit,
		logger:  logger,
	}
}

// ByIP limits requests by client IP.
func (m *Middleware) ByIP() fiber.Handler {
	return m.Handler(func(c *fiber.Ctx) string {
		return "ip:" + c.IP()
	})
}

// Handler limits requests by the key returned from keyFn. Limiter failures
// let the request through.
func (m *Middleware) Handler(keyFn KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := m.limiter.Allow(c.UserContext(), keyFn(c))
		if err != nil {
			m.logger.Warn("Rate limiter unavailable", "path", c.Path(), "error", err)
			c.Set("X-RateLimit-Error", "limiter unavailable")
			return c.Next()
		}

		setRateLimitHeaders(c, result, m.limit)

		if !result.Allowed {
			return sendRateLimitExceeded(c, result)
		}
		return c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(c *fiber.Ctx, result *Result, limit int) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// sendRateLimitExceeded sends a 429 Too Many Requests response.
func sendRateLimitExceeded(c *fiber.Ctx, result *Result) error {
	retryAfter := RetryAfterSeconds(result)
	c.Set("Retry-After", strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "rate_limited",
		"message":     fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter),
		"retry_after": retryAfter,
	})
}

// RetryAfterSeconds rounds the retry delay of a denied result up to whole
// seconds, with a minimum of one.
func RetryAfterSeconds(result *Result) int {
	secs := int(math.Ceil(result.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
