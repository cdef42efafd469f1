package solana

import (
	"github.com/gagliardetto/solana-go"
)

// GameAccounts are the program derived accounts of the game program.
type GameAccounts struct {
	Level             solana.PublicKey // seed "level", the game data account
	ChestVault        solana.PublicKey // seed "chestVault"
	GameActions       solana.PublicKey // seed "gameActions"
	TokenAccountOwner solana.PublicKey // seed "token_account_owner_pda"
	TokenVault        solana.PublicKey // seeds "token_vault" + mint
}

// FireTransaction is the result of one build: a payer-signed transaction
// waiting for the player's signature.
type FireTransaction struct {
	// Base64 is the serialized wire transaction, base64 encoded.
	Base64             string
	Blockhash          solana.Hash
	Player             solana.PublicKey
	PlayerTokenAccount solana.PublicKey
	FeePayer           solana.PublicKey
}

// TransactionSummary describes a decoded fire transaction.
// This is our domain model, independent of the wire format.
type TransactionSummary struct {
	FeePayer  string          `json:"fee_payer"`
	Blockhash string          `json:"blockhash"`
	Signers   []SignerSlot    `json:"signers"`
	Programs  []string        `json:"programs"`
	Fire      *FireInvocation `json:"fire,omitempty"`
}

// SignerSlot is one required signature of a transaction.
type SignerSlot struct {
	Address string `json:"address"`
	Signed  bool   `json:"signed"`
	// Valid is only meaningful when Signed is true.
	Valid bool `json:"valid"`
}

// FireInvocation is the decoded fire instruction of a transaction.
type FireInvocation struct {
	ProgramID string         `json:"program_id"`
	Opcode    []byte         `json:"opcode"`
	Accounts  []AccountEntry `json:"accounts"`
}

// AccountEntry is one account reference of a decoded instruction.
type AccountEntry struct {
	Role     string `json:"role"`
	Address  string `json:"address"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
}
