package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const throttleWindow = time.Minute

// Throttle limits requests per subject named in the JSON body (email, phone
// number or identity id) or, when none is given, per client IP. Counters live in Redis for one minute.
// Redis errors let the request through.
func Throttle(cache *redis.Client, scope string, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key := "rl:" + scope + ":" + throttleSubject(c)

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			if logger != nil {
				logger.Warn("throttle check failed", slog.String("scope", scope), slog.Any("error", err))
			}
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, throttleWindow)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

func throttleSubject(c *fiber.Ctx) string {
	var req struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		IdentityID  string `json:"identityId"`
	}
	_ = c.BodyParser(&req)
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		return email
	}
	if phone := strings.TrimSpace(req.PhoneNumber); phone != "" {
		return phone
	}
	if id := strings.TrimSpace(req.IdentityID); id != "" {
		return "id:" + id
	}
	return c.IP()
}
