package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the realtime server. Every knob has a sane
// default; only the JWT secret must be provided.
type Config struct {
	Port           string `env:"SERVER_PORT"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"` // comma separated, "*" allows all

	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE"`   // bytes per websocket frame
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH"` // bytes per chat message
	SendBuffer       int           `env:"SEND_BUFFER"`
	RateLimitBurst   int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefill  time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`

	TypingTTL       time.Duration `env:"TYPING_TTL"`
	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	JWTSecret     string `env:"JWT_SECRET,required=true"`
	BadgerPath    string `env:"BADGER_FILEPATH"`
	ModerationURL string `env:"MODERATION_URL"`
	LogLevel      string `env:"LOG_LEVEL"`
}

// LoadConfig reads an optional .env file, then the environment, then fills
// the gaps with defaults.
func LoadConfig() (Config, error) {
	// A missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg.sanitized(), nil
}

// DefaultConfig returns the sanitized zero configuration, used by tests.
func DefaultConfig() Config {
	cfg := Config{JWTSecret: "test-secret"}
	return cfg.sanitized()
}

func (c Config) sanitized() Config {
	if c.Port == "" {
		c.Port = ":8080"
	} else if !strings.HasPrefix(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = "http://localhost:3000"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 2000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = time.Second
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 2 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.BadgerPath == "" {
		c.BadgerPath = "./data/badger"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// Origins returns the configured allow-list, trimmed.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps the configured level name onto slog's levels, defaulting
// to info on anything unrecognized.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
