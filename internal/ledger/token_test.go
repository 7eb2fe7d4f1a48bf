package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-atomic-swap/internal/solana"
)

type tokenFixture struct {
	l         *Ledger
	mint      solana.PublicKey
	authority solana.PublicKey
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	f := &tokenFixture{
		l:         New(),
		mint:      solana.NewRandomKey(),
		authority: solana.NewRandomKey(),
	}
	fund(t, f.l, f.authority, 1_000_000_000)

	_, err := f.l.Execute(context.Background(), TxOptions{
		Instruction: "createMint",
		Program:     solana.TokenProgramID,
		Signers:     []solana.PublicKey{f.authority, f.mint},
	}, func(tx *Tx) error {
		return CreateMint(tx, f.mint, f.authority, f.authority, 6)
	})
	require.NoError(t, err)
	return f
}

func (f *tokenFixture) ata(t *testing.T, owner solana.PublicKey, amount uint64) solana.PublicKey {
	t.Helper()
	var addr solana.PublicKey
	_, err := f.l.Execute(context.Background(), TxOptions{
		Instruction: "ata",
		Program:     solana.SystemProgramID,
		Signers:     []solana.PublicKey{f.authority},
	}, func(tx *Tx) error {
		var err error
		addr, err = CreateAssociatedTokenAccount(tx, owner, f.mint, f.authority)
		if err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		return MintTo(tx, f.mint, addr, f.authority, amount)
	})
	require.NoError(t, err)
	return addr
}

func (f *tokenFixture) balance(t *testing.T, addr solana.PublicKey) uint64 {
	t.Helper()
	var amount uint64
	require.NoError(t, f.l.View(func(tx *Tx) error {
		var err error
		amount, err = TokenBalance(tx, addr)
		return err
	}))
	return amount
}

func TestMintLayout(t *testing.T) {
	m := &Mint{Authority: solana.NewRandomKey(), Supply: 42, Decimals: 9, Initialized: true}
	data := m.Encode()
	require.Len(t, data, MintSize)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, byte(42), data[36])
	assert.Equal(t, byte(9), data[44])

	decoded, err := DecodeMint(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)

	_, err = DecodeMint(make([]byte, MintSize))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestTokenAccountLayout(t *testing.T) {
	a := &TokenAccount{Mint: solana.NewRandomKey(), Owner: solana.NewRandomKey(), Amount: 1000}
	data := a.Encode()
	require.Len(t, data, TokenAccountSize)
	assert.Equal(t, a.Mint[:], data[0:32])
	assert.Equal(t, a.Owner[:], data[32:64])
	assert.Equal(t, byte(1), data[108])

	decoded, err := DecodeTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, a, decoded)

	_, err = DecodeTokenAccount(data[:100])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestCreateAssociatedTokenAccount_Idempotent(t *testing.T) {
	f := newTokenFixture(t)
	owner := solana.NewRandomKey()

	first := f.ata(t, owner, 500)
	second := f.ata(t, owner, 0)
	assert.Equal(t, first, second)

	expected, _, err := solana.FindAssociatedTokenAddress(owner, f.mint)
	require.NoError(t, err)
	assert.Equal(t, expected, first)
	assert.Equal(t, uint64(500), f.balance(t, first))

	acc, err := f.l.Account(first)
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, acc.Owner)
	assert.Equal(t, MinimumBalance(TokenAccountSize), acc.Lamports)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	alice := solana.NewRandomKey()
	bob := solana.NewRandomKey()
	aliceATA := f.ata(t, alice, 1000)
	bobATA := f.ata(t, bob, 0)

	transfer := func(signer, authority solana.PublicKey, amount uint64) error {
		_, err := f.l.Execute(ctx, TxOptions{
			Instruction: "transfer",
			Program:     solana.SystemProgramID,
			Signers:     []solana.PublicKey{signer},
		}, func(tx *Tx) error {
			return Transfer(tx, aliceATA, bobATA, authority, amount)
		})
		return err
	}

	require.NoError(t, transfer(alice, alice, 400))
	assert.Equal(t, uint64(600), f.balance(t, aliceATA))
	assert.Equal(t, uint64(400), f.balance(t, bobATA))

	assert.ErrorIs(t, transfer(alice, alice, 601), ErrInsufficientFunds)
	assert.ErrorIs(t, transfer(bob, bob, 1), ErrOwnerMismatch)
	assert.ErrorIs(t, transfer(bob, alice, 1), ErrMissingSigner)

	assert.Equal(t, uint64(600), f.balance(t, aliceATA))
	assert.Equal(t, uint64(400), f.balance(t, bobATA))
}

func TestTransfer_MintMismatch(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)
	alice := solana.NewRandomKey()
	aliceATA := f.ata(t, alice, 10)

	foreignMint := solana.NewRandomKey()
	_, err := f.l.Execute(ctx, TxOptions{
		Instruction: "createMint",
		Program:     solana.TokenProgramID,
		Signers:     []solana.PublicKey{f.authority, foreignMint},
	}, func(tx *Tx) error {
		return CreateMint(tx, foreignMint, f.authority, f.authority, 0)
	})
	require.NoError(t, err)

	var foreignATA solana.PublicKey
	_, err = f.l.Execute(ctx, TxOptions{Instruction: "ata", Signers: []solana.PublicKey{f.authority}}, func(tx *Tx) error {
		var err error
		foreignATA, err = CreateAssociatedTokenAccount(tx, alice, foreignMint, f.authority)
		return err
	})
	require.NoError(t, err)

	_, err = f.l.Execute(ctx, TxOptions{Instruction: "transfer", Signers: []solana.PublicKey{alice}}, func(tx *Tx) error {
		return Transfer(tx, aliceATA, foreignATA, alice, 1)
	})
	assert.ErrorIs(t, err, ErrMintMismatch)
}

func TestMintTo_RequiresAuthority(t *testing.T) {
	f := newTokenFixture(t)
	owner := solana.NewRandomKey()
	addr := f.ata(t, owner, 0)
	impostor := solana.NewRandomKey()

	_, err := f.l.Execute(context.Background(), TxOptions{
		Instruction: "mintTo",
		Signers:     []solana.PublicKey{impostor},
	}, func(tx *Tx) error {
		return MintTo(tx, f.mint, addr, impostor, 100)
	})
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	_, err = f.l.Execute(context.Background(), TxOptions{Instruction: "mintTo"}, func(tx *Tx) error {
		return MintTo(tx, f.mint, addr, f.authority, 100)
	})
	assert.ErrorIs(t, err, ErrMissingSigner)
	assert.Zero(t, f.balance(t, addr))
}
