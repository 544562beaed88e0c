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

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	AppURL      string `env:"APP_URL" default:"http://localhost:5173"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	JWTSigningKey string        `env:"JWT_SIGNING_KEY"`
	JWKSURL       string        `env:"JWKS_URL"`
	JWTAudience   string        `env:"JWT_AUDIENCE"`
	JWTIssuer     string        `env:"JWT_ISSUER"`
	JWTTokenType  string        `env:"JWT_TOKEN_TYPE" default:"access"`
	JWTLeeway     time.Duration `env:"JWT_LEEWAY" default:"0s"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MemberBufferSize        int `env:"MEMBER_BUFFER_SIZE" default:"256"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"40"`

	// Comma separated; APP_URL is always allowed.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOrigins returns APP_URL followed by any extra CORS origins.
func (c *Config) AllowedOrigins() []string {
	origins := []string{strings.TrimRight(c.AppURL, "/")}
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	return origins
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
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	if cfg.JWTSigningKey == "" && cfg.JWKSURL == "" {
		return errors.New("JWT_SIGNING_KEY or JWKS_URL is required")
	}
	if cfg.JWTSigningKey != "" && len(cfg.JWTSigningKey) < 32 && !cfg.IsDevelopment() {
		return errors.New("JWT_SIGNING_KEY must be at least 32 characters outside development")
	}

	if _, err := url.ParseRequestURI(cfg.AppURL); err != nil {
		return fmt.Errorf("APP_URL must be a valid URL: %w", err)
	}

	if cfg.MaxWebSocketConnections <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.MemberBufferSize <= 0 {
		return errors.New("MEMBER_BUFFER_SIZE must be positive")
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst <= 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}

	return nil
}
