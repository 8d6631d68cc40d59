// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store drivers.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Ops HTTP server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// AdminToken guards /admin. Empty disables the admin routes.
	AdminToken string `env:"ADMIN_TOKEN"`

	// Telegram
	TelegramToken       string        `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	TelegramAPIURL      string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	TelegramPollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"10s"`
	BotRequestTimeout   time.Duration `env:"BOT_REQUEST_TIMEOUT" envDefault:"2m"`
	BotName             string        `env:"BOT_NAME" envDefault:"Zun"`
	BotBirthday         string        `env:"BOT_BIRTHDAY" envDefault:"October 28, 2025"`

	// Generative backend
	GenAIProvider      string        `env:"GENAI_PROVIDER" envDefault:"openai"`
	GenAIAPIKey        string        `env:"GEMINI_API_KEY,required,notEmpty"`
	GenAIBaseURL       string        `env:"GENAI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	GenAIModel         string        `env:"GENAI_MODEL" envDefault:"gemini-flash-latest"`
	GenAIFallbackModel string        `env:"GENAI_FALLBACK_MODEL" envDefault:"gemini-2.0-flash"`
	GenAIMaxTokens     int           `env:"GENAI_MAX_TOKENS" envDefault:"2048"`
	GenAITimeout       time.Duration `env:"GENAI_TIMEOUT" envDefault:"60s"`

	// Store
	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"mongo"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	MongoURI         string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase    string        `env:"MONGO_DATABASE" envDefault:"zun"`
	MongoCredentials string        `env:"MONGO_CREDENTIALS"`
	DatabaseURL      string        `env:"DATABASE_URL"`

	// Cache (Redis). Empty disables the link lease and chat rate limit.
	RedisURL string `env:"REDIS_URL"`

	// Ledger policy
	LedgerUnitCost         float64       `env:"LEDGER_UNIT_COST" envDefault:"0.5"`
	LedgerBonusUnit        float64       `env:"LEDGER_BONUS_UNIT" envDefault:"100"`
	LedgerResetPeriod      time.Duration `env:"LEDGER_RESET_PERIOD" envDefault:"168h"`
	LedgerFailOpen         bool          `env:"LEDGER_FAIL_OPEN" envDefault:"true"`
	LedgerUnlimitedBalance float64       `env:"LEDGER_UNLIMITED_BALANCE" envDefault:"999"`

	// Linking
	LinkUniqueness        string        `env:"LINK_UNIQUENESS" envDefault:"global"`
	LinkProbeTimeout      time.Duration `env:"LINK_PROBE_TIMEOUT" envDefault:"10s"`
	LinkLeaseTTL          time.Duration `env:"LINK_LEASE_TTL" envDefault:"30s"`
	LinkRepairSchedule    string        `env:"LINK_REPAIR_SCHEDULE" envDefault:"@every 1m"`
	LinkRepairGrace       time.Duration `env:"LINK_REPAIR_GRACE" envDefault:"2m"`
	LinkRepairMaxAttempts int           `env:"LINK_REPAIR_MAX_ATTEMPTS" envDefault:"5"`

	// Chat rate limiting. A zero rate disables it.
	ChatRatePerMinute int `env:"CHAT_RATE_PER_MINUTE" envDefault:"20"`
	ChatBurst         int `env:"CHAT_BURST" envDefault:"5"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AdminEnabled reports whether the admin routes are mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminToken != ""
}

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		fail("LOG_FORMAT %q is not one of json, text", c.LogFormat)
	}

	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			fail("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			fail("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreMemory:
	default:
		fail("STORE_DRIVER %q is not one of mongo, postgres, memory", c.StoreDriver)
	}

	switch c.GenAIProvider {
	case "openai", "anthropic":
	default:
		fail("GENAI_PROVIDER %q is not one of openai, anthropic", c.GenAIProvider)
	}
	if c.GenAIModel == "" {
		fail("GENAI_MODEL must not be empty")
	}

	switch c.LinkUniqueness {
	case "user", "global":
	default:
		fail("LINK_UNIQUENESS %q is not one of user, global", c.LinkUniqueness)
	}

	if c.LedgerUnitCost <= 0 {
		fail("LEDGER_UNIT_COST must be positive")
	}
	if c.LedgerBonusUnit <= 0 {
		fail("LEDGER_BONUS_UNIT must be positive")
	}
	if c.LedgerResetPeriod <= 0 {
		fail("LEDGER_RESET_PERIOD must be positive")
	}
	if c.LedgerUnlimitedBalance < c.LedgerUnitCost {
		fail("LEDGER_UNLIMITED_BALANCE must cover at least one question")
	}
	if c.LinkRepairMaxAttempts <= 0 {
		fail("LINK_REPAIR_MAX_ATTEMPTS must be positive")
	}
	if c.ChatRatePerMinute < 0 || c.ChatBurst < 0 {
		fail("CHAT_RATE_PER_MINUTE and CHAT_BURST must not be negative")
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
