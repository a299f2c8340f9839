package identity

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync/ridesync/internal/auth"
	"github.com/ridesync/ridesync/internal/logging"
	"github.com/ridesync/ridesync/internal/middleware"
)

type httpFixture struct {
	app      *fiber.App
	notifier *capturingNotifier
}

func newHTTPFixture(t *testing.T) httpFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := auth.NewIssuer("test-secret", "ridesync", clock)
	require.NoError(t, err)
	notifier := &capturingNotifier{}
	svc := NewService(NewMemoryRepository(), notifier, BcryptHasher{Cost: 4}, issuer, logging.Discard(), Options{Clock: clock})
	h := NewHandler(svc, time.Second, logging.Discard())

	app := fiber.New()
	group := app.Group("/auth")
	group.Post("/send-otp", h.SendOTP)
	group.Post("/verify-otp", h.VerifyOTP)
	group.Post("/login", h.Login)
	group.Post("/social", h.Social)
	group.Post("/driver-application", h.DriverApplication)
	group.Get("/me", middleware.JWTAuth(issuer), h.Me)
	return httpFixture{app: app, notifier: notifier}
}

func (f httpFixture) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHTTPRegistrationFlow(t *testing.T) {
	f := newHTTPFixture(t)

	status, body := f.do(t, fiber.MethodPost, "/auth/send-otp", map[string]any{
		"email": "driver@x.com", "fullName": "Dee", "userType": "driver",
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "email", body["deliveryChannel"])
	assert.NotContains(t, body, "otp")
	id := body["identityId"].(string)
	code := f.notifier.lastCode(t)

	status, body = f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{
		"identityId": id, "otp": "000000", "password": "secret1",
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "challenge_mismatch", body["error"])
	assert.Equal(t, false, body["success"])

	status, body = f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{
		"identityId": id, "otp": code, "password": "secret1",
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["token"])
	ident := body["identity"].(map[string]any)
	assert.Equal(t, true, ident["isVerified"])
	assert.Equal(t, false, ident["isApproved"])

	status, body = f.do(t, fiber.MethodPost, "/auth/login", map[string]any{
		"email": "driver@x.com", "password": "secret1",
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	token := body["token"].(string)

	status, body = f.do(t, fiber.MethodPost, "/auth/driver-application", map[string]any{
		"identityId": id, "driverLicense": "DL-1", "vehicleType": "luxury", "vehicleYear": 2022,
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "luxury", body["identity"].(map[string]any)["vehicleType"])

	status, body = f.do(t, fiber.MethodGet, "/auth/me", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	me := body["identity"].(map[string]any)
	assert.Equal(t, id, me["id"])
	assert.Equal(t, "DL-1", me["driverLicense"])
}

func TestHTTPErrorMapping(t *testing.T) {
	f := newHTTPFixture(t)

	status, body := f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{
		"identityId": "nope", "otp": "123456",
	}, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "identity_not_found", body["error"])

	status, body = f.do(t, fiber.MethodPost, "/auth/send-otp", map[string]any{"fullName": "A", "userType": "rider"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "contact_required", body["error"])

	status, body = f.do(t, fiber.MethodPost, "/auth/login", map[string]any{"email": "ghost@x.com", "password": "secret1"}, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "identity_not_found", body["error"])
}

func TestHTTPDeliveryFailureIs500(t *testing.T) {
	f := newHTTPFixture(t)
	f.notifier.err = assert.AnError

	status, body := f.do(t, fiber.MethodPost, "/auth/send-otp", map[string]any{
		"phoneNumber": "+15550001", "fullName": "A", "userType": "rider",
	}, "")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "delivery_failed", body["error"])
	assert.NotContains(t, body["message"], assert.AnError.Error())
}

func TestHTTPSocialStatusCodes(t *testing.T) {
	f := newHTTPFixture(t)
	req := map[string]any{"socialId": "g-1", "provider": "google", "fullName": "G", "userType": "rider"}

	status, first := f.do(t, fiber.MethodPost, "/auth/social", req, "")
	require.Equal(t, fiber.StatusCreated, status)

	status, second := f.do(t, fiber.MethodPost, "/auth/social", req, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t,
		first["identity"].(map[string]any)["id"],
		second["identity"].(map[string]any)["id"])
	assert.Equal(t, "google", second["identity"].(map[string]any)["socialProvider"])
}

func TestHTTPMalformedBody(t *testing.T) {
	f := newHTTPFixture(t)
	req := httptest.NewRequest(fiber.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHTTPVerifyOTPAttemptCap(t *testing.T) {
	f := newHTTPFixture(t)
	status, body := f.do(t, fiber.MethodPost, "/auth/send-otp", map[string]any{
		"email": "a@x.com", "fullName": "A", "userType": "rider",
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	id := body["identityId"].(string)
	code := f.notifier.lastCode(t)

	for i := 1; i < defaultMaxAttempts; i++ {
		_, body = f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{"identityId": id, "otp": "000000"}, "")
		require.Equal(t, "challenge_mismatch", body["error"])
	}
	status, body = f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{"identityId": id, "otp": "000000"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "too_many_attempts", body["error"])

	_, body = f.do(t, fiber.MethodPost, "/auth/verify-otp", map[string]any{"identityId": id, "otp": code}, "")
	assert.Equal(t, "challenge_missing", body["error"])
}
