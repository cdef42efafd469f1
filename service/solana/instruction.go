package solana

import (
	"github.com/gagliardetto/solana-go"
)

// FireOpcode selects the fire instruction of the game program. It is part of
// the program's binary interface.
var FireOpcode = [9]byte{84, 206, 8, 255, 98, 163, 218, 19, 1}

// FireAccountCount is the number of accounts the fire instruction takes.
const FireAccountCount = 12

// fireAccountSource selects the address that fills one account position.
type fireAccountSource int

const (
	sourceLevel fireAccountSource = iota
	sourceChestVault
	sourceGameActions
	sourcePlayer
	sourceSystemProgram
	sourcePlayerTokenAccount
	sourceTokenVault
	sourceTokenAccountOwner
	sourceMint
	sourceTokenProgram
	sourceAssociatedTokenProgram
)

type fireAccountSpec struct {
	role     string
	source   fireAccountSource
	writable bool
	signer   bool
}

// fireAccounts is the account layout of the fire instruction. The program
// reads accounts by position, so the order must match it exactly. The player
// appears twice: read-only as the player, writable and signing as the signer.
var fireAccounts = [FireAccountCount]fireAccountSpec{
	{"level", sourceLevel, true, false},
	{"chest_vault", sourceChestVault, true, false},
	{"game_actions", sourceGameActions, true, false},
	{"player", sourcePlayer, false, false},
	{"signer", sourcePlayer, true, true},
	{"system_program", sourceSystemProgram, false, false},
	{"player_token_account", sourcePlayerTokenAccount, true, false},
	{"vault_token_account", sourceTokenVault, true, false},
	{"token_account_owner", sourceTokenAccountOwner, true, false},
	{"mint", sourceMint, false, false},
	{"token_program", sourceTokenProgram, false, false},
	{"associated_token_program", sourceAssociatedTokenProgram, false, false},
}

// FireInstructionParams are the inputs of the fire instruction.
type FireInstructionParams struct {
	ProgramID          solana.PublicKey
	Mint               solana.PublicKey
	Player             solana.PublicKey
	PlayerTokenAccount solana.PublicKey
	Accounts           GameAccounts
}

// NewFireInstruction assembles the fire instruction.
func NewFireInstruction(p FireInstructionParams) solana.Instruction {
	metas := make(solana.AccountMetaSlice, 0, FireAccountCount)
	for _, acct := range fireAccounts {
		metas = append(metas, solana.NewAccountMeta(p.address(acct.source), acct.writable, acct.signer))
	}

	data := make([]byte, len(FireOpcode))
	copy(data, FireOpcode[:])

	return solana.NewInstruction(p.ProgramID, metas, data)
}

// FireAccountRoles returns the role name of every fire account, in order.
func FireAccountRoles() []string {
	roles := make([]string, 0, FireAccountCount)
	for _, acct := range fireAccounts {
		roles = append(roles, acct.role)
	}
	return roles
}

func (p FireInstructionParams) address(src fireAccountSource) solana.PublicKey {
	switch src {
	case sourceLevel:
		return p.Accounts.Level
	case sourceChestVault:
		return p.Accounts.ChestVault
	case sourceGameActions:
		return p.Accounts.GameActions
	case sourcePlayer:
		return p.Player
	case sourceSystemProgram:
		return solana.SystemProgramID
	case sourcePlayerTokenAccount:
		return p.PlayerTokenAccount
	case sourceTokenVault:
		return p.Accounts.TokenVault
	case sourceTokenAccountOwner:
		return p.Accounts.TokenAccountOwner
	case sourceMint:
		return p.Mint
	case sourceTokenProgram:
		return solana.TokenProgramID
	case sourceAssociatedTokenProgram:
		return solana.SPLAssociatedTokenAccountProgramID
	}
	panic("unknown fire account source")
}
