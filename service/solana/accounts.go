package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seeds of the game program's derived accounts.
var (
	SeedLevel                = []byte("level")
	SeedChestVault           = []byte("chestVault")
	SeedGameActions          = []byte("gameActions")
	SeedTokenAccountOwnerPDA = []byte("token_account_owner_pda")
	SeedTokenVault           = []byte("token_vault")
)

// DeriveAddress finds the program derived address for seeds under programID.
// It is a pure function: the same inputs always yield the same address.
func DeriveAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	// FindProgramAddress appends the bump to the slice it is given
	own := make([][]byte, len(seeds))
	copy(own, seeds)

	addr, _, err := solana.FindProgramAddress(own, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive address for seed %q: %w", joinSeeds(seeds), err)
	}
	return addr, nil
}

// DeriveGameAccounts derives the five program-owned accounts the fire
// instruction references. Nothing is cached; callers derive per request.
func DeriveGameAccounts(programID, mint solana.PublicKey) (GameAccounts, error) {
	var (
		out GameAccounts
		err error
	)
	targets := []struct {
		dst   *solana.PublicKey
		seeds [][]byte
	}{
		{&out.Level, [][]byte{SeedLevel}},
		{&out.ChestVault, [][]byte{SeedChestVault}},
		{&out.GameActions, [][]byte{SeedGameActions}},
		{&out.TokenAccountOwner, [][]byte{SeedTokenAccountOwnerPDA}},
		{&out.TokenVault, [][]byte{SeedTokenVault, mint.Bytes()}},
	}
	for _, t := range targets {
		*t.dst, err = DeriveAddress(programID, t.seeds...)
		if err != nil {
			return GameAccounts{}, err
		}
	}
	return out, nil
}

func joinSeeds(seeds [][]byte) string {
	var out []byte
	for i, s := range seeds {
		if i > 0 {
			out = append(out, '+')
		}
		out = append(out, s...)
	}
	return string(out)
}
