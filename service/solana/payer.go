package solana

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Payer is the server-held fee-payer credential. The secret key is only
// reachable through signing; String, LogValue and MarshalJSON expose the
// public key alone.
type Payer struct {
	key    solana.PrivateKey
	public solana.PublicKey
}

// LoadPayer decodes a fee-payer secret. Both the base58 export format and the
// JSON byte array written by solana-keygen are accepted.
func LoadPayer(secret string) (*Payer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payer secret key is empty")
	}

	var (
		key solana.PrivateKey
		err error
	)
	if strings.HasPrefix(secret, "[") {
		key, err = solana.PrivateKeyFromSolanaKeygenFileBytes([]byte(secret))
	} else {
		key, err = solana.PrivateKeyFromBase58(secret)
	}
	if err != nil {
		// the decode error never contains key material
		return nil, fmt.Errorf("invalid payer secret key: %w", err)
	}

	return NewPayer(key)
}

// NewPayer wraps an already decoded private key. The key is copied.
func NewPayer(key solana.PrivateKey) (*Payer, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payer secret key: %w", err)
	}
	owned := make(solana.PrivateKey, len(key))
	copy(owned, key)
	return &Payer{key: owned, public: owned.PublicKey()}, nil
}

// PublicKey returns the fee payer address.
func (p *Payer) PublicKey() solana.PublicKey {
	return p.public
}

// PartialSign adds the payer's signature to tx and leaves every other signer
// slot untouched.
func (p *Payer) PartialSign(tx *solana.Transaction) error {
	if p.key == nil {
		return errors.New("payer key has been zeroed")
	}
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(p.public) {
			return &p.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("payer sign: %w", err)
	}
	return nil
}

// Sign signs tx and fails if any other signer is required.
func (p *Payer) Sign(tx *solana.Transaction) error {
	for _, signer := range tx.Message.Signers() {
		if !signer.Equals(p.public) {
			return fmt.Errorf("transaction requires signer %s besides the payer", signer)
		}
	}
	return p.PartialSign(tx)
}

// Zero overwrites the secret key. The payer cannot sign afterwards.
func (p *Payer) Zero() {
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
}

func (p *Payer) String() string {
	return "payer:" + p.public.String()
}

// LogValue implements slog.LogValuer.
func (p *Payer) LogValue() slog.Value {
	return slog.StringValue(p.public.String())
}

// MarshalJSON renders the public key only.
func (p *Payer) MarshalJSON() ([]byte, error) {
	return p.public.MarshalJSON()
}
