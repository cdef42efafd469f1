package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/chutulu/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// ErrPlayerIsPayer is returned when the player is the fee payer. The two
// signer slots would collapse into one that the payer alone fills.
var ErrPlayerIsPayer = errors.New("account must not be the fee payer")

// BlockhashSource hands out a fresh recent blockhash per call.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// TokenAccountResolver returns the associated token account of owner for
// mint, creating it when needed.
type TokenAccountResolver interface {
	ResolveOrCreate(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error)
}

// TransactionSigner adds the server's signature to a transaction without
// requiring the other signers.
type TransactionSigner interface {
	PublicKey() solana.PublicKey
	PartialSign(tx *solana.Transaction) error
}

// Game identifies the on-chain game: its program and reward token mint.
type Game struct {
	ProgramID solana.PublicKey
	Mint      solana.PublicKey
}

// FireBuilder builds fire transactions for players.
type FireBuilder struct {
	game      Game
	blockhash BlockhashSource
	accounts  TokenAccountResolver
	signer    TransactionSigner
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewFireBuilder creates a builder. metrics may be nil.
func NewFireBuilder(game Game, blockhash BlockhashSource, accounts TokenAccountResolver, signer TransactionSigner, m *metrics.Metrics, logger *slog.Logger) *FireBuilder {
	return &FireBuilder{
		game:      game,
		blockhash: blockhash,
		accounts:  accounts,
		signer:    signer,
		metrics:   m,
		logger:    logger,
	}
}

// Build derives the game accounts, resolves the player's token account,
// assembles the fire instruction and returns the payer-signed transaction.
// Failures are not retried.
func (b *FireBuilder) Build(ctx context.Context, player solana.PublicKey) (*FireTransaction, error) {
	start := time.Now()
	out, err := b.build(ctx, player)
	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.RecordFireTransaction(status, time.Since(start).Seconds())
	}
	return out, err
}

func (b *FireBuilder) build(ctx context.Context, player solana.PublicKey) (*FireTransaction, error) {
	if player.Equals(b.signer.PublicKey()) {
		return nil, ErrPlayerIsPayer
	}

	derived, err := DeriveGameAccounts(b.game.ProgramID, b.game.Mint)
	if err != nil {
		return nil, err
	}

	playerTokenAccount, err := b.accounts.ResolveOrCreate(ctx, player, b.game.Mint)
	if err != nil {
		return nil, fmt.Errorf("resolve player token account: %w", err)
	}

	ix := NewFireInstruction(FireInstructionParams{
		ProgramID:          b.game.ProgramID,
		Mint:               b.game.Mint,
		Player:             player,
		PlayerTokenAccount: playerTokenAccount,
		Accounts:           derived,
	})

	encoded, blockhash, err := b.Finalize(ctx, ix)
	if err != nil {
		return nil, err
	}

	b.logger.DebugContext(ctx, "built fire transaction",
		"player", player.String(),
		"player_token_account", playerTokenAccount.String(),
		"blockhash", blockhash.String(),
	)

	return &FireTransaction{
		Base64:             encoded,
		Blockhash:          blockhash,
		Player:             player,
		PlayerTokenAccount: playerTokenAccount,
		FeePayer:           b.signer.PublicKey(),
	}, nil
}

// Finalize wraps ix in a transaction with a freshly fetched blockhash, signs
// it as fee payer and returns it base64 encoded. Signature slots of other
// signers stay empty; the signatures that are present must verify.
func (b *FireBuilder) Finalize(ctx context.Context, ix solana.Instruction) (string, solana.Hash, error) {
	blockhash, err := b.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return "", solana.Hash{}, fmt.Errorf("fetch recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(b.signer.PublicKey()),
	)
	if err != nil {
		return "", solana.Hash{}, fmt.Errorf("build transaction: %w", err)
	}

	if err := b.signer.PartialSign(tx); err != nil {
		return "", solana.Hash{}, err
	}
	if err := VerifyPresentSignatures(tx); err != nil {
		return "", solana.Hash{}, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", solana.Hash{}, fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), blockhash, nil
}

// VerifyPresentSignatures checks every non-empty signature of tx against its
// signer. Empty slots are allowed.
func VerifyPresentSignatures(tx *solana.Transaction) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	signers := tx.Message.Signers()
	if len(tx.Signatures) > len(signers) {
		return fmt.Errorf("got %d signatures for %d signers", len(tx.Signatures), len(signers))
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			continue
		}
		if !sig.Verify(signers[i], msg) {
			return fmt.Errorf("invalid signature by %s", signers[i])
		}
	}
	return nil
}
