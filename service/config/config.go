package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	DefaultProgramID = "2a4NcnkF5zf14JQXHAv39AsRf7jMFj13wKmTL6ZcDQNd"
	DefaultTokenMint = "goLdQwNaZToyavwkbuPJzTt5XPNR3H7WQBGenWtzPH3"
	DefaultRPCURL    = "https://api.devnet.solana.com"
	DefaultLabel     = "Fire Chutulu"
	DefaultIcon      = "https://chutulu.fun/icon.png"
	DefaultMessage   = "Chutulu fired!"
)

// Secret holds a sensitive value. It renders as [REDACTED] in fmt, slog and
// JSON output; Reveal returns the raw value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// MarshalText keeps the secret out of encoders.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the underlying value.
func (s Secret) Reveal() string {
	return string(s)
}

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr     string
	LogLevel       string
	RequestTimeout time.Duration
	AllowPreflight bool

	// Solana configuration
	SolanaRPCURL     string
	SolanaCommitment rpc.CommitmentType
	ProgramID        solana.PublicKey
	TokenMint        solana.PublicKey
	PayerSecretKey   Secret

	// Action metadata
	ActionLabel   string
	ActionIcon    string
	ActionMessage string

	// NATS configuration, empty disables fire events
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	timeout, err := parseDuration("REQUEST_TIMEOUT", "20s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequestTimeout = timeout
	}

	allow, err := parseBool("ALLOW_PREFLIGHT", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AllowPreflight = allow
	}

	// Solana configuration
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", DefaultRPCURL)
	cfg.SolanaCommitment = rpc.CommitmentType(getEnvOrDefault("SOLANA_COMMITMENT", string(rpc.CommitmentConfirmed)))

	programID, err := parsePublicKey("PROGRAM_ID", DefaultProgramID)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ProgramID = programID
	}

	mint, err := parsePublicKey("TOKEN_MINT", DefaultTokenMint)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TokenMint = mint
	}

	cfg.PayerSecretKey = Secret(strings.TrimSpace(os.Getenv("PAYER_SECRET_KEY")))
	if cfg.PayerSecretKey == "" {
		errs = append(errs, fmt.Errorf("PAYER_SECRET_KEY is required"))
	}

	// Action metadata
	cfg.ActionLabel = getEnvOrDefault("ACTION_LABEL", DefaultLabel)
	cfg.ActionIcon = getEnvOrDefault("ACTION_ICON", DefaultIcon)
	cfg.ActionMessage = getEnvOrDefault("ACTION_MESSAGE", DefaultMessage)

	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	switch c.SolanaCommitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("SolanaCommitment %q must be processed, confirmed or finalized", c.SolanaCommitment))
	}

	if c.ProgramID.IsZero() {
		errs = append(errs, fmt.Errorf("ProgramID is required"))
	}

	if c.TokenMint.IsZero() {
		errs = append(errs, fmt.Errorf("TokenMint is required"))
	}

	if c.PayerSecretKey == "" {
		errs = append(errs, fmt.Errorf("PayerSecretKey is required"))
	}

	if c.ActionLabel == "" || c.ActionIcon == "" {
		errs = append(errs, fmt.Errorf("ActionLabel and ActionIcon must be non-empty"))
	}

	if c.RequestTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RequestTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// parsePublicKey parses a base58 public key from an environment variable or uses a default.
func parsePublicKey(key, defaultValue string) (solana.PublicKey, error) {
	value := getEnvOrDefault(key, defaultValue)
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid public key %q: %w", key, value, err)
	}
	return pk, nil
}
