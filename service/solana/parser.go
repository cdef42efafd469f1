package solana

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DecodeFireTransaction parses a base64 wire transaction and summarizes its
// signer slots and, when present, its fire instruction. programID selects the
// instruction to decode; a zero programID matches any instruction carrying the
// fire opcode.
func DecodeFireTransaction(b64 string, programID solana.PublicKey) (*TransactionSummary, error) {
	tx, err := solana.TransactionFromBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return summarize(tx, programID)
}

func summarize(tx *solana.Transaction, programID solana.PublicKey) (*TransactionSummary, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	signers := tx.Message.Signers()
	if len(signers) == 0 {
		return nil, fmt.Errorf("transaction has no signers")
	}

	summary := &TransactionSummary{
		FeePayer:  signers[0].String(),
		Blockhash: tx.Message.RecentBlockhash.String(),
		Signers:   make([]SignerSlot, 0, len(signers)),
	}

	for i, signer := range signers {
		slot := SignerSlot{Address: signer.String()}
		if i < len(tx.Signatures) && !tx.Signatures[i].IsZero() {
			slot.Signed = true
			slot.Valid = tx.Signatures[i].Verify(signer, msg)
		}
		summary.Signers = append(summary.Signers, slot)
	}

	programs, err := tx.GetProgramIDs()
	if err != nil {
		return nil, fmt.Errorf("resolve program ids: %w", err)
	}
	summary.Programs = programs.ToBase58()

	for _, inst := range tx.Message.Instructions {
		prog, err := tx.Message.Program(inst.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("resolve program: %w", err)
		}
		if !programID.IsZero() && !prog.Equals(programID) {
			continue
		}
		if !bytes.Equal(inst.Data, FireOpcode[:]) {
			continue
		}

		metas, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, fmt.Errorf("resolve instruction accounts: %w", err)
		}

		fire := &FireInvocation{
			ProgramID: prog.String(),
			Opcode:    append([]byte(nil), inst.Data...),
			Accounts:  make([]AccountEntry, 0, len(metas)),
		}
		roles := FireAccountRoles()
		for i, meta := range metas {
			role := ""
			if i < len(roles) {
				role = roles[i]
			}
			fire.Accounts = append(fire.Accounts, AccountEntry{
				Role:     role,
				Address:  meta.PublicKey.String(),
				Writable: meta.IsWritable,
				Signer:   meta.IsSigner,
			})
		}
		summary.Fire = fire
		break
	}

	return summary, nil
}

// UnsignedSigners returns the addresses whose signature slot is still empty.
func (s *TransactionSummary) UnsignedSigners() []string {
	var out []string
	for _, slot := range s.Signers {
		if !slot.Signed {
			out = append(out, slot.Address)
		}
	}
	return out
}
