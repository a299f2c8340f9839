package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesync/ridesync/internal/config"
	"github.com/ridesync/ridesync/internal/logging"
)

func devConfig() config.Config {
	return config.Config{
		AppName:              "ridesync",
		AppEnv:               "development",
		Port:                 "0",
		JWTSecret:            "secret",
		VerificationTokenTTL: time.Hour,
		SessionTokenTTL:      time.Hour,
		ChallengeTTL:         time.Minute,
		RequestTimeout:       time.Second,
	}
}

func TestNewServesHealth(t *testing.T) {
	srv, err := New(devConfig(), nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNewRejectsProductionWithoutStores(t *testing.T) {
	cfg := devConfig()
	cfg.AppEnv = "production"
	_, err := New(cfg, nil, nil, logging.Discard())
	assert.Error(t, err)
}
