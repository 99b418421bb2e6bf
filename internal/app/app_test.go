package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/optin/internal/api"
	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/service/ratelimit"
	"github.com/ignite/optin/internal/service/subscription"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Type = "memory"
	cfg.Mail.Provider = "log"
	cfg.Server.PublicBaseURL = "https://list.example.com"
	return cfg
}

func TestNew_InProcessFallbacks(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)

	ctx := context.Background()
	sub, err := a.Subscriptions.Subscribe(ctx, "Reader@Example.com", "test", subscription.Client{Identity: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeIssued, sub.Outcome)

	conf, err := a.Subscriptions.Confirm(ctx, sub.Token, subscription.Client{})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeConfirmed, conf.Outcome)
}

func TestNew_RedisRateCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.RateLimit.PerMinute = 1

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Redis)

	counter, err := a.rateCounter()
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.RedisCounter{}, counter)

	ctx := context.Background()
	client := subscription.Client{Identity: "9.9.9.9"}
	first, err := a.Subscriptions.Subscribe(ctx, "a@example.com", "test", client)
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeIssued, first.Outcome)

	second, err := a.Subscriptions.Subscribe(ctx, "b@example.com", "test", client)
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeRateLimited, second.Outcome)
	assert.Equal(t, first.Message, second.Message)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.Suppression.Backend = "carrier-pigeon"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Suppression.Backend = "postgres"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "DATABASE_URL")

	cfg = memoryConfig()
	cfg.RateLimit.Backend = "redis"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestHandlers_ServeHealth(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	router := api.SetupRoutes(a.Handlers(), a.Config.Server)
	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"x@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
