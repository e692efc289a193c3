package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName          = "CongoSave"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultAccessTokenTTL   = time.Hour
	defaultDecimalPlaces    = 2
	defaultLedgerRetries    = 3
	defaultResolverSchedule = "@every 5m"
	defaultInterestSchedule = "@every 1h"
	defaultPageSize         = 100
	defaultEventBuffer      = 1024
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	JWTSecret      string
	AccessTokenTTL time.Duration
	WebhookSecret  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Ledger
	DecimalPlaces int32
	LedgerRetries int

	// Background jobs
	ResolverSchedule string
	InterestSchedule string
	ResolverPageSize int
	InterestPageSize int
	EventBuffer      int

	// Transfer fees, applied to every tier-less transfer.
	TransferFeeFlat decimal.Decimal
	TransferFeeBps  int64
	TransferFeeCap  decimal.Decimal
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NATSURL:          os.Getenv("NATS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AccessTokenTTL:   defaultAccessTokenTTL,
		WebhookSecret:    os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		DecimalPlaces:    defaultDecimalPlaces,
		LedgerRetries:    defaultLedgerRetries,
		ResolverSchedule: getEnv("RESOLVER_SCHEDULE", defaultResolverSchedule),
		InterestSchedule: getEnv("INTEREST_SCHEDULE", defaultInterestSchedule),
		ResolverPageSize: defaultPageSize,
		InterestPageSize: defaultPageSize,
		EventBuffer:      defaultEventBuffer,
		TransferFeeFlat:  decimal.Zero,
		TransferFeeCap:   decimal.Zero,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.AccessTokenTTL = d
	}

	places, err := getInt("DEFAULT_DECIMAL_PLACES", defaultDecimalPlaces)
	if err != nil {
		return Config{}, err
	}
	if places < 0 || places > 8 {
		return Config{}, fmt.Errorf("DEFAULT_DECIMAL_PLACES must be between 0 and 8")
	}
	cfg.DecimalPlaces = int32(places)

	if cfg.LedgerRetries, err = getInt("LEDGER_MAX_RETRIES", defaultLedgerRetries); err != nil {
		return Config{}, err
	}
	if cfg.ResolverPageSize, err = getInt("RESOLVER_PAGE_SIZE", defaultPageSize); err != nil {
		return Config{}, err
	}
	if cfg.InterestPageSize, err = getInt("INTEREST_PAGE_SIZE", defaultPageSize); err != nil {
		return Config{}, err
	}
	if cfg.EventBuffer, err = getInt("EVENT_BUFFER", defaultEventBuffer); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("TRANSFER_FEE_FLAT"); v != "" {
		flat, err := decimal.NewFromString(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRANSFER_FEE_FLAT: %w", err)
		}
		cfg.TransferFeeFlat = flat
	}
	if v := os.Getenv("TRANSFER_FEE_CAP"); v != "" {
		feeCap, err := decimal.NewFromString(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRANSFER_FEE_CAP: %w", err)
		}
		cfg.TransferFeeCap = feeCap
	}
	bps, err := getInt("TRANSFER_FEE_BPS", 0)
	if err != nil {
		return Config{}, err
	}
	if bps < 0 || bps > 10_000 {
		return Config{}, fmt.Errorf("TRANSFER_FEE_BPS must be between 0 and 10000")
	}
	cfg.TransferFeeBps = int64(bps)

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
