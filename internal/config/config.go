// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paygate/paygate/internal/payment"
)

// Environment names recognized by Config.Env.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort               = 8402
	DefaultScheme             = "exact"
	DefaultNetwork            = "eip155:84532"
	DefaultAsset              = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	DefaultAmount             = "10000"
	DefaultGlobalPerMinute    = 120
	DefaultUnpaidPerMinute    = 10
	DefaultLedgerCapacity     = 10000
	DefaultLedgerTTL          = 10 * time.Minute
	DefaultFacilitatorTimeout = 5 * time.Second
)

// Config holds everything the process needs to start. All fields are read
// once at startup; nothing re-reads the environment at request time.
type Config struct {
	Port int
	Env  string

	// Payment terms for the monetized route.
	Scheme  string
	Network string
	Asset   string
	Amount  string
	PayTo   string

	FacilitatorURL     string
	FacilitatorTimeout time.Duration

	// DevBypass admits requests carrying the bypass header without
	// contacting the facilitator. Refused in production.
	DevBypass bool

	GlobalPerMinute int
	UnpaidPerMinute int

	LedgerCapacity int
	LedgerTTL      time.Duration

	// RedisAddr, when set, backs the rate-limit counters with Redis so
	// several instances share windows. Empty means in-process counters.
	RedisAddr string
}

// FromEnv builds a Config from PAYGATE_* variables and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:            getenv("PAYGATE_ENV", EnvDevelopment),
		Scheme:         getenv("PAYGATE_SCHEME", DefaultScheme),
		Network:        getenv("PAYGATE_NETWORK", DefaultNetwork),
		Asset:          getenv("PAYGATE_ASSET", DefaultAsset),
		Amount:         getenv("PAYGATE_AMOUNT", DefaultAmount),
		PayTo:          os.Getenv("PAYGATE_PAY_TO"),
		FacilitatorURL: os.Getenv("PAYGATE_FACILITATOR_URL"),
		RedisAddr:      os.Getenv("PAYGATE_REDIS_ADDR"),
	}

	var err error
	if cfg.Port, err = intenv("PAYGATE_PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.DevBypass, err = boolenv("PAYGATE_DEV_BYPASS", false); err != nil {
		return nil, err
	}
	if cfg.GlobalPerMinute, err = intenv("PAYGATE_GLOBAL_RPM", DefaultGlobalPerMinute); err != nil {
		return nil, err
	}
	if cfg.UnpaidPerMinute, err = intenv("PAYGATE_UNPAID_RPM", DefaultUnpaidPerMinute); err != nil {
		return nil, err
	}
	if cfg.LedgerCapacity, err = intenv("PAYGATE_LEDGER_CAPACITY", DefaultLedgerCapacity); err != nil {
		return nil, err
	}
	if cfg.LedgerTTL, err = durenv("PAYGATE_LEDGER_TTL", DefaultLedgerTTL); err != nil {
		return nil, err
	}
	if cfg.FacilitatorTimeout, err = durenv("PAYGATE_FACILITATOR_TIMEOUT", DefaultFacilitatorTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that must never reach request handling.
func (c *Config) Validate() error {
	if c.Env != EnvProduction && c.Env != EnvDevelopment {
		return fmt.Errorf("config: PAYGATE_ENV must be %q or %q, got %q", EnvProduction, EnvDevelopment, c.Env)
	}
	if c.DevBypass && c.Env == EnvProduction {
		return fmt.Errorf("config: PAYGATE_DEV_BYPASS cannot be enabled in production")
	}
	if !c.DevBypass && c.FacilitatorURL == "" {
		return fmt.Errorf("config: PAYGATE_FACILITATOR_URL is required without dev bypass")
	}
	if c.PayTo == "" {
		return fmt.Errorf("config: PAYGATE_PAY_TO is required")
	}
	if !common.IsHexAddress(c.PayTo) {
		return fmt.Errorf("config: PAYGATE_PAY_TO %q is not a valid address", c.PayTo)
	}
	if c.Amount == "" {
		return fmt.Errorf("config: PAYGATE_AMOUNT cannot be empty")
	}
	if _, _, err := payment.Network(c.Network).Parse(); err != nil {
		return fmt.Errorf("config: PAYGATE_NETWORK: %w", err)
	}
	if err := payment.ValidateRequirements(c.PaymentRequirements()); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PAYGATE_PORT %d out of range", c.Port)
	}
	if c.GlobalPerMinute <= 0 {
		return fmt.Errorf("config: PAYGATE_GLOBAL_RPM must be positive")
	}
	if c.UnpaidPerMinute <= 0 {
		return fmt.Errorf("config: PAYGATE_UNPAID_RPM must be positive")
	}
	if c.LedgerCapacity <= 0 {
		return fmt.Errorf("config: PAYGATE_LEDGER_CAPACITY must be positive")
	}
	if c.LedgerTTL <= 0 {
		return fmt.Errorf("config: PAYGATE_LEDGER_TTL must be positive")
	}
	if c.FacilitatorTimeout <= 0 {
		return fmt.Errorf("config: PAYGATE_FACILITATOR_TIMEOUT must be positive")
	}
	return nil
}

// PaymentRequirements assembles the payment terms for the monetized route.
func (c *Config) PaymentRequirements() payment.Requirements {
	return payment.Requirements{
		Scheme:  c.Scheme,
		Network: payment.Network(c.Network),
		Asset:   c.Asset,
		Amount:  c.Amount,
		PayTo:   c.PayTo,
	}
}

// Production reports whether the service runs in the production environment.
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intenv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func boolenv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func durenv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
