package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL"`
	RedisURL          string `env:"REDIS_URL"`
	IdentitySecret    string `env:"IDENTITY_SECRET"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`

	TicketStaleSeconds int  `env:"TICKET_STALE_SECONDS" envDefault:"120"`
	PairingTTLSeconds  int  `env:"PAIRING_TTL_SECONDS" envDefault:"120"`
	SignalTTLSeconds   int  `env:"SIGNAL_TTL_SECONDS" envDefault:"3600"`
	SignalMaxBytes     int  `env:"SIGNAL_MAX_BYTES" envDefault:"65536"`
	GraceWindowMillis  int  `env:"GRACE_WINDOW_MS" envDefault:"5000"`
	MatchMaxSkips      int  `env:"MATCH_MAX_SKIPS" envDefault:"8"`
	MatchScanDepth     int  `env:"MATCH_SCAN_DEPTH" envDefault:"32"`
	MatchMutualFilters bool `env:"MATCH_MUTUAL_FILTERS" envDefault:"true"`

	RateLimitIdentity int `env:"RATE_LIMIT_IDENTITY" envDefault:"10"`
	RateLimitEnqueue  int `env:"RATE_LIMIT_ENQUEUE" envDefault:"30"`
	RateLimitPoll     int `env:"RATE_LIMIT_POLL" envDefault:"120"`
	RateLimitCancel   int `env:"RATE_LIMIT_CANCEL" envDefault:"30"`
	RateLimitTeardown int `env:"RATE_LIMIT_TEARDOWN" envDefault:"10"`
	RateLimitSignal   int `env:"RATE_LIMIT_SIGNAL" envDefault:"240"`
	RateLimitICE      int `env:"RATE_LIMIT_ICE" envDefault:"30"`
	RateLimitStats    int `env:"RATE_LIMIT_STATS" envDefault:"60"`
	RateLimitWindowMs int `env:"RATE_LIMIT_WINDOW_MS" envDefault:"60000"`

	ICEServerURLs  []string `env:"ICE_SERVER_URLS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302"`
	TURNUsername   string   `env:"TURN_USERNAME"`
	TURNCredential string   `env:"TURN_CREDENTIAL"`
}

func (c *Config) TicketStaleAfter() time.Duration {
	return time.Duration(c.TicketStaleSeconds) * time.Second
}

func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLSeconds) * time.Second
}

func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.SignalTTLSeconds) * time.Second
}

func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowMillis) * time.Millisecond
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.MatchMaxSkips < 0 {
		return fmt.Errorf("MATCH_MAX_SKIPS must not be negative")
	}
	if c.MatchScanDepth < 2 {
		return fmt.Errorf("MATCH_SCAN_DEPTH must be at least 2")
	}
	if c.GraceWindowMillis <= 0 {
		return fmt.Errorf("GRACE_WINDOW_MS must be positive")
	}
	if c.RateLimitWindowMs <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive")
	}

	if isProduction {
		if c.IdentitySecret == "" {
			log.Warn().Msg("IDENTITY_SECRET is empty in production: anonymous identities are accepted unsigned")
		} else if err := validateSecret("IDENTITY_SECRET", c.IdentitySecret); err != nil {
			return err
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: in-memory store cannot be shared between instances")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
