package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync/ridesync/internal/logging"
)

func throttledApp(cache *redis.Client, max int) *fiber.App {
	app := fiber.New()
	app.Post("/login", Throttle(cache, "login", max, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postBody(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestThrottleLimitsPerContact(t *testing.T) {
	cache, mr := newTestCache(t)
	app := throttledApp(cache, 2)

	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"email":"a@x.com"}`))
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"email":"A@x.com"}`))
	assert.Equal(t, fiber.StatusTooManyRequests, postBody(t, app, `{"email":"a@x.com"}`))

	// Other contacts have their own budget.
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"phoneNumber":"+15550001"}`))

	assert.True(t, mr.Exists("rl:login:a@x.com"))
	assert.Greater(t, mr.TTL("rl:login:a@x.com").Seconds(), 0.0)

	mr.FastForward(throttleWindow)
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"email":"a@x.com"}`))
}

func TestThrottleLimitsPerIdentity(t *testing.T) {
	cache, mr := newTestCache(t)
	app := throttledApp(cache, 2)

	body := `{"identityId":"6f1c1f7e-0000-4000-8000-000000000001","otp":"000000"}`
	assert.Equal(t, fiber.StatusOK, postBody(t, app, body))
	assert.Equal(t, fiber.StatusOK, postBody(t, app, body))
	assert.Equal(t, fiber.StatusTooManyRequests, postBody(t, app, body))
	assert.True(t, mr.Exists("rl:login:id:6f1c1f7e-0000-4000-8000-000000000001"))

	// A different identity from the same client is not affected.
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"identityId":"other"}`))
}

func TestThrottleFailsOpen(t *testing.T) {
	cache := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { cache.Close() })
	app := throttledApp(cache, 1)

	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"email":"a@x.com"}`))
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{"email":"a@x.com"}`))
}

func TestThrottleWithoutCache(t *testing.T) {
	app := throttledApp(nil, 1)
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{}`))
	assert.Equal(t, fiber.StatusOK, postBody(t, app, `{}`))
}
