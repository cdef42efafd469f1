package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/chutulu/service/nats"
	"github.com/brojonat/chutulu/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxRequestBodySize = 1 << 16 // 64KB - the body carries a single address
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// FireBuilder builds a payer-signed fire transaction for a player.
type FireBuilder interface {
	Build(ctx context.Context, player solanago.PublicKey) (*solana.FireTransaction, error)
}

// ActionMetadata is the static content of the action endpoint.
type ActionMetadata struct {
	Label   string
	Icon    string
	Message string
}

type metadataResponse struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

type fireRequest struct {
	Account string `json:"account"`
}

type fireResponse struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}

type actionRule struct {
	PathPattern string `json:"pathPattern"`
	APIPath     string `json:"apiPath"`
}

type actionsManifest struct {
	Rules []actionRule `json:"rules"`
}

// handleAction returns the action endpoint handler.
// GET / returns the metadata, POST / builds a fire transaction and every
// other method is rejected with 405.
func handleAction(builder FireBuilder, publisher nats.Publisher, game solana.Game, meta ActionMetadata, timeout time.Duration, logger *slog.Logger) http.Handler {
	getMetadata := handleGetMetadata(meta, logger)
	fire := handleFire(builder, publisher, game, meta, timeout, logger)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getMetadata.ServeHTTP(w, r)
		case http.MethodPost:
			fire.ServeHTTP(w, r)
		default:
			logger.Info("action request", "method", r.Method)
			w.Header().Set("Allow", "GET, POST")
			writeError(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		}
	})
}

// handleGetMetadata returns a handler that serves the static label and icon.
// The request body is ignored.
// GET /
func handleGetMetadata(meta ActionMetadata, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("action request", "method", r.Method)
		writeJSON(w, metadataResponse{
			Label: meta.Label,
			Icon:  meta.Icon,
		}, http.StatusOK)
	})
}

// handleFire returns a handler that builds a fire transaction for the
// account in the request body.
// POST / {"account": "<base58>"}
func handleFire(builder FireBuilder, publisher nats.Publisher, game solana.Game, meta ActionMetadata, timeout time.Duration, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req fireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Info("action request", "method", r.Method)
			logger.Debug("failed to decode fire request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		logger.Info("action request", "method", r.Method, "account", req.Account)

		player, err := parsePlayer(req.Account)
		if err != nil {
			logger.Debug("invalid account", "account", req.Account, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		tx, err := builder.Build(ctx, player)
		if errors.Is(err, solana.ErrPlayerIsPayer) {
			logger.Warn("rejected fee payer as player", "account", player.String())
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.Error("failed to build fire transaction",
				"account", player.String(),
				"error", err,
			)
			writeError(w, "failed to build transaction", http.StatusInternalServerError)
			return
		}

		logger.Info("built fire transaction",
			"account", player.String(),
			"player_token_account", tx.PlayerTokenAccount.String(),
			"blockhash", tx.Blockhash.String(),
		)

		if publisher != nil {
			event := nats.FromFireTransaction(tx, game)
			if err := publisher.PublishFire(ctx, event); err != nil {
				// the transaction is already built, the event is best effort
				logger.Warn("failed to publish fire event",
					"account", player.String(),
					"event_id", event.EventID,
					"error", err,
				)
			}
		}

		writeJSON(w, fireResponse{
			Transaction: tx.Base64,
			Message:     meta.Message,
		}, http.StatusOK)
	})
}

// handleActionsManifest serves the actions.json rules that route every path
// of this host to the action endpoint.
// GET /actions.json
func handleActionsManifest() http.Handler {
	manifest := actionsManifest{
		Rules: []actionRule{{PathPattern: "/**", APIPath: "/"}},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manifest, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// parsePlayer validates a player address and decodes it.
func parsePlayer(account string) (solanago.PublicKey, error) {
	if err := validateAddress(account); err != nil {
		return solanago.PublicKey{}, err
	}
	player, err := solanago.PublicKeyFromBase58(account)
	if err != nil {
		return solanago.PublicKey{}, errorf("invalid account: %v", err)
	}
	return player, nil
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("account is required")
	}

	if len(address) > maxAddressLength {
		return errorf("account too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in account: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid account format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
