package main

import (
	"fmt"

	"github.com/brojonat/chutulu/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

type accountRow struct {
	Index    int    `json:"index"`
	Role     string `json:"role"`
	Address  string `json:"address"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
}

// accountsCommand prints the fire instruction accounts for a player without
// touching the network.
func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:      "accounts",
		Usage:     "Derive the fire instruction accounts for a player",
		ArgsUsage: "ACCOUNT",
		Description: `Derive the game's program addresses and the player's associated token
account, then print the twelve accounts of the fire instruction in order.

Example:
  chutulu accounts 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --json`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("account is required")
			}
			player, err := solanago.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid account: %w", err)
			}
			programID, err := solanago.PublicKeyFromBase58(c.String("program-id"))
			if err != nil {
				return fmt.Errorf("invalid program id: %w", err)
			}
			mint, err := solanago.PublicKeyFromBase58(c.String("token-mint"))
			if err != nil {
				return fmt.Errorf("invalid token mint: %w", err)
			}

			rows, err := fireAccountRows(programID, mint, player)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeIndentedJSON(c.App.Writer, rows)
			}
			for _, row := range rows {
				fmt.Fprintf(c.App.Writer, "%2d %-26s %-44s %s\n", row.Index, row.Role, row.Address, accountFlags(row.Writable, row.Signer))
			}
			return nil
		},
	}
}

func fireAccountRows(programID, mint, player solanago.PublicKey) ([]accountRow, error) {
	accounts, err := solana.DeriveGameAccounts(programID, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive game accounts: %w", err)
	}
	ata, _, err := solanago.FindAssociatedTokenAddress(player, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token account: %w", err)
	}

	ix := solana.NewFireInstruction(solana.FireInstructionParams{
		ProgramID:          programID,
		Mint:               mint,
		Player:             player,
		PlayerTokenAccount: ata,
		Accounts:           accounts,
	})

	roles := solana.FireAccountRoles()
	rows := make([]accountRow, 0, len(roles))
	for i, meta := range ix.Accounts() {
		rows = append(rows, accountRow{
			Index:    i,
			Role:     roles[i],
			Address:  meta.PublicKey.String(),
			Writable: meta.IsWritable,
			Signer:   meta.IsSigner,
		})
	}
	return rows, nil
}
