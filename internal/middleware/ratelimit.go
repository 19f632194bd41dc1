package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/strandart/api/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// allow counts one request for subject against the window and reports whether
// it is still within the limit. If Redis fails the request is allowed and
// count is 0.
func (rl *RateLimiter) allow(ctx context.Context, keyPrefix, subject string, maxRequests int, window time.Duration) (bool, int64) {
	key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, 0
	}

	// Set expiration on first request
	if count == 1 {
		rl.redis.Expire(ctx, key, window)
	}

	return count <= int64(maxRequests), count
}

// Limit creates a rate limiting middleware. Authenticated requests are
// counted per user; public routes fall back to the client address.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := GetUserID(c)
		if subject == "" {
			subject = c.IP()
		}

		ctx := context.Background()
		ok, count := rl.allow(ctx, keyPrefix, subject, maxRequests, window)
		if count == 0 {
			// Redis unavailable; let the request through
			return c.Next()
		}

		if !ok {
			// Get TTL for retry-after header
			key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// DesignLimit returns a rate limiter for design CRUD endpoints (60 req/min)
func (rl *RateLimiter) DesignLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("design", maxPerMin, time.Minute)
}

// TemplateLimit returns a rate limiter for template downloads (20 req/hour)
func (rl *RateLimiter) TemplateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("template", maxPerHour, time.Hour)
}

// WakeGate throttles GPU wake-ups dispatched from the WebSocket hub, where no
// middleware chain runs.
type WakeGate struct {
	limiter    *RateLimiter
	maxPerHour int
}

// WakeLimit returns a gate for GPU wake requests (10 req/hour)
func (rl *RateLimiter) WakeLimit(maxPerHour int) *WakeGate {
	return &WakeGate{limiter: rl, maxPerHour: maxPerHour}
}

// AllowWake reports whether subject may dispatch another wake-up
func (g *WakeGate) AllowWake(ctx context.Context, subject string) bool {
	ok, _ := g.limiter.allow(ctx, "wake", subject, g.maxPerHour, time.Hour)
	return ok
}
