package solana

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/chutulu/service/metrics"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// createIdempotentDiscriminator is the associated token program's
// CreateIdempotent instruction. It succeeds when the account already exists.
const createIdempotentDiscriminator = byte(1)

// Chain is the subset of Client the token account provisioner uses.
type Chain interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// TokenAccountProvisioner resolves a player's associated token account and
// creates it, paid by the fee payer, when it does not exist yet.
type TokenAccountProvisioner struct {
	chain   Chain
	payer   *Payer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTokenAccountProvisioner creates a provisioner. metrics may be nil.
func NewTokenAccountProvisioner(chain Chain, payer *Payer, m *metrics.Metrics, logger *slog.Logger) *TokenAccountProvisioner {
	return &TokenAccountProvisioner{
		chain:   chain,
		payer:   payer,
		metrics: m,
		logger:  logger,
	}
}

// ResolveOrCreate returns the associated token account of owner for mint.
// It is safe to call on every request. Errors are returned as is, without
// retrying.
func (p *TokenAccountProvisioner) ResolveOrCreate(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("find associated token address: %w", err)
	}

	exists, err := p.chain.AccountExists(ctx, ata)
	if err != nil {
		p.recordResolution("error")
		return solana.PublicKey{}, fmt.Errorf("look up token account: %w", err)
	}
	if exists {
		p.recordResolution("exists")
		return ata, nil
	}

	p.logger.InfoContext(ctx, "creating player token account",
		"owner", owner.String(),
		"mint", mint.String(),
		"token_account", ata.String(),
	)

	sig, err := p.sendCreate(ctx, owner, mint)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordTokenAccountCreated(status)
	}
	if err != nil {
		p.recordResolution("error")
		return solana.PublicKey{}, fmt.Errorf("create token account %s: %w", ata, err)
	}

	p.recordResolution("created")
	p.logger.InfoContext(ctx, "player token account create sent",
		"token_account", ata.String(),
		"signature", sig.String(),
	)
	return ata, nil
}

func (p *TokenAccountProvisioner) sendCreate(ctx context.Context, owner, mint solana.PublicKey) (solana.Signature, error) {
	blockhash, err := p.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{NewCreateIdempotentInstruction(p.payer.PublicKey(), owner, mint)},
		blockhash,
		solana.TransactionPayer(p.payer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if err := p.payer.Sign(tx); err != nil {
		return solana.Signature{}, err
	}

	return p.chain.SendTransaction(ctx, tx)
}

// NewCreateIdempotentInstruction builds the associated token program's
// CreateIdempotent instruction for owner and mint, funded by payer.
func NewCreateIdempotentInstruction(payer, owner, mint solana.PublicKey) solana.Instruction {
	create := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
	return solana.NewInstruction(
		associatedtokenaccount.ProgramID,
		create.Accounts(),
		[]byte{createIdempotentDiscriminator},
	)
}

func (p *TokenAccountProvisioner) recordResolution(result string) {
	if p.metrics != nil {
		p.metrics.RecordTokenAccountResolution(result)
	}
}
