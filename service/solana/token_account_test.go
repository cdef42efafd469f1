package solana

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreate_ExistingAccount(t *testing.T) {
	ata, _, err := solana.FindAssociatedTokenAddress(testPlayer, testMint)
	require.NoError(t, err)

	mock := &mockRPCClient{accounts: map[solana.PublicKey]bool{ata: true}}
	p := NewTokenAccountProvisioner(newTestClient(mock), testPayer(t), nil, testLogger())

	got, err := p.ResolveOrCreate(context.Background(), testPlayer, testMint)
	require.NoError(t, err)
	assert.Equal(t, ata, got)
	assert.Empty(t, mock.sent, "no create transaction for an existing account")
	assert.Zero(t, mock.blockhashCalls)
}

func TestResolveOrCreate_CreatesMissingAccount(t *testing.T) {
	payer := testPayer(t)
	mock := &mockRPCClient{}
	p := NewTokenAccountProvisioner(newTestClient(mock), payer, nil, testLogger())

	got, err := p.ResolveOrCreate(context.Background(), testPlayer, testMint)
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(testPlayer, testMint)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.Len(t, mock.sent, 1)
	tx := mock.sent[0]

	signers := tx.Message.Signers()
	require.Len(t, signers, 1, "only the payer signs the create transaction")
	assert.Equal(t, payer.PublicKey(), signers[0])
	require.NoError(t, VerifyPresentSignatures(tx))
	assert.False(t, tx.Signatures[0].IsZero())

	require.Len(t, tx.Message.Instructions, 1)
	inst := tx.Message.Instructions[0]
	prog, err := tx.Message.Program(inst.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, associatedtokenaccount.ProgramID, prog)
	assert.Equal(t, []byte{1}, []byte(inst.Data))

	metas, err := inst.ResolveInstructionAccounts(&tx.Message)
	require.NoError(t, err)
	require.Len(t, metas, 6)
	assert.Equal(t, payer.PublicKey(), metas[0].PublicKey)
	assert.Equal(t, want, metas[1].PublicKey)
	assert.Equal(t, testPlayer, metas[2].PublicKey)
	assert.Equal(t, testMint, metas[3].PublicKey)
}

func TestResolveOrCreate_LookupError(t *testing.T) {
	mock := &mockRPCClient{accountErr: errors.New("node unhealthy")}
	p := NewTokenAccountProvisioner(newTestClient(mock), testPayer(t), nil, testLogger())

	_, err := p.ResolveOrCreate(context.Background(), testPlayer, testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "look up token account")
	assert.Contains(t, err.Error(), "node unhealthy")
	assert.Empty(t, mock.sent)
}

func TestResolveOrCreate_SendError(t *testing.T) {
	mock := &mockRPCClient{sendErr: errors.New("blockhash not found")}
	p := NewTokenAccountProvisioner(newTestClient(mock), testPayer(t), nil, testLogger())

	_, err := p.ResolveOrCreate(context.Background(), testPlayer, testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create token account")
	assert.Contains(t, err.Error(), "blockhash not found")
}

func TestResolveOrCreate_BlockhashError(t *testing.T) {
	mock := &mockRPCClient{blockhashErr: errors.New("rate limited")}
	p := NewTokenAccountProvisioner(newTestClient(mock), testPayer(t), nil, testLogger())

	_, err := p.ResolveOrCreate(context.Background(), testPlayer, testMint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, mock.sent)
}

func TestNewCreateIdempotentInstruction(t *testing.T) {
	payer := testPayer(t).PublicKey()
	ix := NewCreateIdempotentInstruction(payer, testPlayer, testMint)

	assert.Equal(t, associatedtokenaccount.ProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)

	metas := ix.Accounts()
	require.Len(t, metas, 6)
	assert.True(t, metas[0].IsSigner)
	assert.True(t, metas[0].IsWritable)
	assert.Equal(t, solana.SystemProgramID, metas[4].PublicKey)
	assert.Equal(t, solana.TokenProgramID, metas[5].PublicKey)
}
