package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "4Z7cXSyeFR8wNGMVXUE1TwtKn5D5Vu7FzEv69dokLv7KrQk7h6pu4LF8ZRR9yQBhc7uSM6RTTZtU1fmaxiNrxXrs"

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("PAYER_SECRET_KEY", testSecret)
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.SolanaCommitment)
	assert.Equal(t, solana.MustPublicKeyFromBase58(DefaultProgramID), cfg.ProgramID)
	assert.Equal(t, solana.MustPublicKeyFromBase58(DefaultTokenMint), cfg.TokenMint)
	assert.Equal(t, testSecret, cfg.PayerSecretKey.Reveal())
	assert.Equal(t, DefaultLabel, cfg.ActionLabel)
	assert.Equal(t, DefaultIcon, cfg.ActionIcon)
	assert.Equal(t, DefaultMessage, cfg.ActionMessage)
	assert.Empty(t, cfg.NATSURL)
	assert.False(t, cfg.AllowPreflight)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
}

func TestLoad_MissingPayerSecret(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "PAYER_SECRET_KEY is required")
}

func TestLoad_InvalidProgramID(t *testing.T) {
	os.Setenv("PAYER_SECRET_KEY", testSecret)
	os.Setenv("PROGRAM_ID", "not-a-key")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "PROGRAM_ID: invalid public key")
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	os.Setenv("TOKEN_MINT", "xyz")
	os.Setenv("REQUEST_TIMEOUT", "soon")
	os.Setenv("ALLOW_PREFLIGHT", "maybe")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_MINT")
	assert.Contains(t, err.Error(), "invalid duration")
	assert.Contains(t, err.Error(), "invalid boolean")
	assert.Contains(t, err.Error(), "PAYER_SECRET_KEY is required")
}

func TestLoad_InvalidCommitment(t *testing.T) {
	os.Setenv("PAYER_SECRET_KEY", testSecret)
	os.Setenv("SOLANA_COMMITMENT", "eventually")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SolanaCommitment")
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("PAYER_SECRET_KEY", "  "+testSecret+"\n")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("SOLANA_RPC_URL", "http://localhost:8899")
	os.Setenv("SOLANA_COMMITMENT", "finalized")
	os.Setenv("ACTION_LABEL", "Fire!")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("ALLOW_PREFLIGHT", "true")
	os.Setenv("REQUEST_TIMEOUT", "5s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://localhost:8899", cfg.SolanaRPCURL)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.SolanaCommitment)
	assert.Equal(t, "Fire!", cfg.ActionLabel)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.True(t, cfg.AllowPreflight)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, testSecret, cfg.PayerSecretKey.Reveal(), "surrounding whitespace is trimmed")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerAddr:       ":8080",
			SolanaRPCURL:     DefaultRPCURL,
			SolanaCommitment: rpc.CommitmentConfirmed,
			ProgramID:        solana.MustPublicKeyFromBase58(DefaultProgramID),
			TokenMint:        solana.MustPublicKeyFromBase58(DefaultTokenMint),
			PayerSecretKey:   Secret(testSecret),
			ActionLabel:      DefaultLabel,
			ActionIcon:       DefaultIcon,
			RequestTimeout:   10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing rpc url", func(c *Config) { c.SolanaRPCURL = "" }, "SolanaRPCURL is required"},
		{"zero program", func(c *Config) { c.ProgramID = solana.PublicKey{} }, "ProgramID is required"},
		{"zero mint", func(c *Config) { c.TokenMint = solana.PublicKey{} }, "TokenMint is required"},
		{"missing secret", func(c *Config) { c.PayerSecretKey = "" }, "PayerSecretKey is required"},
		{"empty icon", func(c *Config) { c.ActionIcon = "" }, "must be non-empty"},
		{"short timeout", func(c *Config) { c.RequestTimeout = time.Millisecond }, "at least 1 second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret(testSecret)

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))

	cfg := &Config{PayerSecretKey: s}
	assert.NotContains(t, fmt.Sprintf("%+v", cfg), testSecret)

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testSecret)

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("config", "payer_secret_key", s)
	assert.NotContains(t, buf.String(), testSecret)
	assert.Contains(t, buf.String(), "[REDACTED]")
}

// cleanupEnv removes all config-related environment variables
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR",
		"LOG_LEVEL",
		"SOLANA_RPC_URL",
		"SOLANA_COMMITMENT",
		"PROGRAM_ID",
		"TOKEN_MINT",
		"PAYER_SECRET_KEY",
		"ACTION_LABEL",
		"ACTION_ICON",
		"ACTION_MESSAGE",
		"NATS_URL",
		"ALLOW_PREFLIGHT",
		"REQUEST_TIMEOUT",
	} {
		os.Unsetenv(key)
	}
}
