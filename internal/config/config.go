package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// WebhookCallbackPath is the fixed path provider callbacks are delivered to,
// relative to BaseURL on the listener port.
const WebhookCallbackPath = "/webhook/callback"

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8000"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	BaseURL             string `env:"BASE_URL"`
	TwitchClientID      string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret  string `env:"TWITCH_CLIENT_SECRET"`
	TwitchWebhookSecret string `env:"TWITCH_WEBHOOK_SECRET"`

	EventSubWebhookPort int `env:"EVENTSUB_WEBHOOK_PORT" default:"8080"`

	SubscribeMaxAttempts    int           `env:"SUBSCRIBE_MAX_ATTEMPTS" default:"3"`
	SubscribeAttemptTimeout time.Duration `env:"SUBSCRIBE_ATTEMPT_TIMEOUT" default:"10s"`
	ListenerBindTimeout     time.Duration `env:"LISTENER_BIND_TIMEOUT" default:"10s"`
	JobTimeout              time.Duration `env:"JOB_TIMEOUT" default:"120s"`
	ReconcileInterval       time.Duration `env:"RECONCILE_INTERVAL" default:"15m"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// CallbackURL is the full public URL the provider delivers webhook callbacks to.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + WebhookCallbackPath
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":          cfg.DatabaseURL,
		"REDIS_URL":             cfg.RedisURL,
		"BASE_URL":              cfg.BaseURL,
		"TWITCH_CLIENT_ID":      cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":  cfg.TwitchClientSecret,
		"TWITCH_WEBHOOK_SECRET": cfg.TwitchWebhookSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", cfg.BaseURL)
	}

	// Twitch rejects webhook secrets outside this range.
	if len(cfg.TwitchWebhookSecret) < 10 || len(cfg.TwitchWebhookSecret) > 100 {
		return errors.New("TWITCH_WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if cfg.SubscribeMaxAttempts < 1 {
		return errors.New("SUBSCRIBE_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}
