// Package config loads the portal configuration from the environment.
//
// A .env file in the working directory is read first when present. Values
// already set in the process environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	DBPath   string
	Env      string
	LogLevel slog.Level
	SiteURL  string

	JWTSecret              string
	SessionTTL             time.Duration
	SessionRefreshInterval time.Duration
	LoginPersistTimeout    time.Duration
	CookieSecure           bool

	Discord        DiscordConfig
	OwnerDiscordID string

	Stripe StripeConfig
	S3     S3Config

	CORSOrigins       []string
	CheckoutRateLimit int
}

type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// ProductID is checked per checkout, not at startup.
	ProductID string
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	VideoBucket     string
	ThumbnailBucket string
	PublicURL       string
}

// Enabled reports whether uploads have somewhere to go.
func (c S3Config) Enabled() bool {
	return c.VideoBucket != "" && c.ThumbnailBucket != ""
}

// IsProduction reports whether APP_ENV is "production".
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the configuration and fails when a startup precondition is
// not met.
func Load() (Config, error) {
	_ = godotenv.Load()

	port := getenvInt("PORT", 8080)
	env := strings.ToLower(getenv("APP_ENV", "development"))

	cfg := Config{
		Port:     port,
		DBPath:   getenv("DB_PATH", "data/portal.db"),
		Env:      env,
		LogLevel: parseLevel(getenv("LOG_LEVEL", "info")),
		SiteURL:  strings.TrimRight(getenv("SITE_URL", ""), "/"),

		JWTSecret:              strings.TrimSpace(getenv("JWT_SECRET", "")),
		SessionTTL:             getenvDuration("SESSION_TTL", 30*24*time.Hour),
		SessionRefreshInterval: getenvDuration("SESSION_REFRESH_INTERVAL", 5*time.Minute),
		LoginPersistTimeout:    getenvDuration("LOGIN_PERSIST_TIMEOUT", 5*time.Second),
		CookieSecure:           getenvBool("COOKIE_SECURE", env == "production"),

		Discord: DiscordConfig{
			ClientID:     strings.TrimSpace(getenv("DISCORD_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("DISCORD_CLIENT_SECRET", "")),
			CallbackURL:  getenv("DISCORD_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/discord/callback", port)),
		},
		OwnerDiscordID: strings.TrimSpace(getenv("OWNER_DISCORD_ID", "")),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			ProductID:     strings.TrimSpace(getenv("STRIPE_PRODUCT_ID", "")),
		},
		S3: S3Config{
			Endpoint:        strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			Region:          getenv("S3_REGION", "auto"),
			AccessKeyID:     strings.TrimSpace(getenv("S3_ACCESS_KEY_ID", "")),
			SecretAccessKey: strings.TrimSpace(getenv("S3_SECRET_ACCESS_KEY", "")),
			VideoBucket:     strings.TrimSpace(getenv("S3_VIDEO_BUCKET", "")),
			ThumbnailBucket: strings.TrimSpace(getenv("S3_THUMBNAIL_BUCKET", "")),
			PublicURL:       strings.TrimSpace(getenv("S3_PUBLIC_URL", "")),
		},

		CORSOrigins:       splitList(getenv("CORS_ORIGINS", "")),
		CheckoutRateLimit: getenvInt("CHECKOUT_RATE_LIMIT", 10),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// getenvDuration accepts Go durations ("90s", "5m").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
