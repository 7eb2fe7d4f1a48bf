package atomicswap

import (
	"solana-atomic-swap/internal/solana"
)

// Address namespaces.
var (
	poolSeed     = []byte("pool")
	swapSeed     = []byte("swap")
	feeVaultSeed = []byte("fee")
)

// ProgramID is the address the escrow program runs under.
var ProgramID = solana.AtomicSwapProgramID

// PoolAddress derives the pool of mint.
func PoolAddress(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{poolSeed, mint[:]}, ProgramID)
}

// SwapAddress derives the swap account of swapID within pool.
func SwapAddress(pool solana.PublicKey, swapID Bytes32) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{swapSeed, pool[:], swapID[:]}, ProgramID)
}

// FeeVaultAddress derives the token account that accrues redeem fees of pool.
func FeeVaultAddress(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{feeVaultSeed, pool[:]}, ProgramID)
}

// CustodyAddress returns the pool's associated token account, which holds
// every open swap's amount.
func CustodyAddress(pool, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(pool, mint)
	return addr, err
}

// Addresses bundles every account of a pool.
type Addresses struct {
	Pool         solana.PublicKey
	PoolBump     uint8
	Custody      solana.PublicKey
	FeeVault     solana.PublicKey
	FeeVaultBump uint8
}

// PoolAddresses derives all pool accounts for mint.
func PoolAddresses(mint solana.PublicKey) (*Addresses, error) {
	pool, bump, err := PoolAddress(mint)
	if err != nil {
		return nil, err
	}
	custody, err := CustodyAddress(pool, mint)
	if err != nil {
		return nil, err
	}
	vault, vaultBump, err := FeeVaultAddress(pool)
	if err != nil {
		return nil, err
	}
	return &Addresses{
		Pool:         pool,
		PoolBump:     bump,
		Custody:      custody,
		FeeVault:     vault,
		FeeVaultBump: vaultBump,
	}, nil
}
