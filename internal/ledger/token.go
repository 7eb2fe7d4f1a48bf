package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"solana-atomic-swap/internal/solana"
)

// SPL token account sizes.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Mint is the SPL mint layout:
// mintAuthorityOption(4) | mintAuthority(32) | supply(8) | decimals(1) |
// isInitialized(1) | freezeAuthorityOption(4) | freezeAuthority(32)
type Mint struct {
	Authority   solana.PublicKey
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// Encode returns the 82-byte account data.
func (m *Mint) Encode() []byte {
	data := make([]byte, MintSize)
	binary.LittleEndian.PutUint32(data[0:4], 1)
	copy(data[4:36], m.Authority[:])
	binary.LittleEndian.PutUint64(data[36:44], m.Supply)
	data[44] = m.Decimals
	if m.Initialized {
		data[45] = 1
	}
	return data
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint data too short: %d", ErrInvalidAccountData, len(data))
	}
	m := &Mint{
		Supply:      binary.LittleEndian.Uint64(data[36:44]),
		Decimals:    data[44],
		Initialized: data[45] == 1,
	}
	copy(m.Authority[:], data[4:36])
	if !m.Initialized {
		return nil, fmt.Errorf("%w: mint not initialized", ErrInvalidAccountData)
	}
	return m, nil
}

// TokenAccount is the SPL token account layout:
// mint(32) | owner(32) | amount(8) | delegateOption(4) | delegate(32) | state(1) | ...
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

const tokenAccountInitialized = 1

// Encode returns the 165-byte account data.
func (a *TokenAccount) Encode() []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	data[108] = tokenAccountInitialized
	return data
}

// DecodeTokenAccount parses token account data.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data too short: %d", ErrInvalidAccountData, len(data))
	}
	if data[108] != tokenAccountInitialized {
		return nil, fmt.Errorf("%w: token account not initialized", ErrInvalidAccountData)
	}
	a := &TokenAccount{
		Amount: binary.LittleEndian.Uint64(data[64:72]),
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	return a, nil
}

// CreateMint creates and initializes a mint. The mint address must sign.
func CreateMint(tx *Tx, mint, authority, payer solana.PublicKey, decimals uint8) error {
	return tx.Invoke(solana.TokenProgramID, func(tx *Tx) error {
		if err := tx.CreateAccount(mint, solana.TokenProgramID, payer, MintSize); err != nil {
			return fmt.Errorf("create mint: %w", err)
		}
		m := &Mint{Authority: authority, Decimals: decimals, Initialized: true}
		return tx.SetData(mint, m.Encode())
	})
}

// CreateTokenAccount creates a token account at addr for owner. addr must sign.
func CreateTokenAccount(tx *Tx, addr, mint, owner, payer solana.PublicKey) error {
	return tx.Invoke(solana.TokenProgramID, func(tx *Tx) error {
		if _, err := LoadMint(tx, mint); err != nil {
			return err
		}
		if err := tx.CreateAccount(addr, solana.TokenProgramID, payer, TokenAccountSize); err != nil {
			return fmt.Errorf("create token account: %w", err)
		}
		acc := &TokenAccount{Mint: mint, Owner: owner}
		return tx.SetData(addr, acc.Encode())
	})
}

// CreateAssociatedTokenAccount creates the canonical token account of owner
// for mint, or returns it unchanged if it already exists.
func CreateAssociatedTokenAccount(tx *Tx, owner, mint, payer solana.PublicKey) (solana.PublicKey, error) {
	ata, bump, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if tx.Exists(ata) {
		existing, err := LoadTokenAccount(tx, ata)
		if err != nil {
			return solana.PublicKey{}, err
		}
		if existing.Owner != owner || existing.Mint != mint {
			return solana.PublicKey{}, fmt.Errorf("%w: associated account %s", ErrInvalidAccountData, ata)
		}
		return ata, nil
	}

	err = tx.Invoke(solana.AssociatedTokenProgramID, func(tx *Tx) error {
		if _, err := tx.SignWithSeeds(owner[:], solana.TokenProgramID[:], mint[:], []byte{bump}); err != nil {
			return err
		}
		return CreateTokenAccount(tx, ata, mint, owner, payer)
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return ata, nil
}

// LoadMint reads a mint account.
func LoadMint(tx *Tx, mint solana.PublicKey) (*Mint, error) {
	acc, err := tx.Get(mint)
	if err != nil {
		return nil, err
	}
	if acc.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("%w: mint %s owned by %s", ErrIllegalOwner, mint, acc.Owner)
	}
	return DecodeMint(acc.Data)
}

// LoadTokenAccount reads a token account.
func LoadTokenAccount(tx *Tx, addr solana.PublicKey) (*TokenAccount, error) {
	acc, err := tx.Get(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("%w: token account %s owned by %s", ErrIllegalOwner, addr, acc.Owner)
	}
	return DecodeTokenAccount(acc.Data)
}

// MintTo issues amount new tokens into dest. The mint authority must sign.
func MintTo(tx *Tx, mint, dest, authority solana.PublicKey, amount uint64) error {
	return tx.Invoke(solana.TokenProgramID, func(tx *Tx) error {
		m, err := LoadMint(tx, mint)
		if err != nil {
			return err
		}
		if m.Authority != authority {
			return fmt.Errorf("%w: mint authority is %s", ErrOwnerMismatch, m.Authority)
		}
		if err := tx.RequireSigner(authority); err != nil {
			return err
		}
		to, err := LoadTokenAccount(tx, dest)
		if err != nil {
			return err
		}
		if to.Mint != mint {
			return ErrMintMismatch
		}
		if m.Supply > math.MaxUint64-amount || to.Amount > math.MaxUint64-amount {
			return ErrOverflow
		}

		m.Supply += amount
		to.Amount += amount
		if err := tx.SetData(mint, m.Encode()); err != nil {
			return err
		}
		return tx.SetData(dest, to.Encode())
	})
}

// Transfer moves amount tokens between accounts of the same mint. authority
// must own from and must sign, directly or through SignWithSeeds.
func Transfer(tx *Tx, from, to, authority solana.PublicKey, amount uint64) error {
	return tx.Invoke(solana.TokenProgramID, func(tx *Tx) error {
		src, err := LoadTokenAccount(tx, from)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		dst, err := LoadTokenAccount(tx, to)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if src.Mint != dst.Mint {
			return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
		}
		if src.Owner != authority {
			return fmt.Errorf("%w: %s owned by %s, not %s", ErrOwnerMismatch, from, src.Owner, authority)
		}
		if err := tx.RequireSigner(authority); err != nil {
			return err
		}
		if src.Amount < amount {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src.Amount, amount)
		}
		if from == to || amount == 0 {
			return nil
		}
		if dst.Amount > math.MaxUint64-amount {
			return ErrOverflow
		}

		src.Amount -= amount
		dst.Amount += amount
		if err := tx.SetData(from, src.Encode()); err != nil {
			return err
		}
		return tx.SetData(to, dst.Encode())
	})
}

// TokenBalance returns the amount held by a token account.
func TokenBalance(tx *Tx, addr solana.PublicKey) (uint64, error) {
	acc, err := LoadTokenAccount(tx, addr)
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}
