package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/streamvault")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("BASE_URL", "https://vault.example.com")
	t.Setenv("TWITCH_CLIENT_ID", "client-id")
	t.Setenv("TWITCH_CLIENT_SECRET", "client-secret")
	t.Setenv("TWITCH_WEBHOOK_SECRET", "webhook-secret-123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 8080, cfg.EventSubWebhookPort)
	assert.Equal(t, 3, cfg.SubscribeMaxAttempts)
	assert.Equal(t, "10s", cfg.SubscribeAttemptTimeout.String())
	assert.Equal(t, "2m0s", cfg.JobTimeout.String())
	assert.Equal(t, "15m0s", cfg.ReconcileInterval.String())
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWITCH_CLIENT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWITCH_CLIENT_ID")
}

func TestLoad_RelativeBaseURLRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BASE_URL", "/just/a/path")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BASE_URL")
}

func TestLoad_WebhookSecretLength(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWITCH_WEBHOOK_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWITCH_WEBHOOK_SECRET")
}

func TestCallbackURL(t *testing.T) {
	cfg := &Config{BaseURL: "https://vault.example.com/"}
	assert.Equal(t, "https://vault.example.com/webhook/callback", cfg.CallbackURL())

	cfg.BaseURL = "https://vault.example.com"
	assert.Equal(t, "https://vault.example.com/webhook/callback", cfg.CallbackURL())
}
