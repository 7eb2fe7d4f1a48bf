// Package atomicswap implements a hashed-timelock escrow program over the
// ledger runtime. A Pool holds custody of one mint; each Swap locks an amount
// for a buyer behind a secret hash and an expiry. The buyer redeems by
// revealing the secret before expiry, otherwise the depositor refunds.
package atomicswap

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/solana"
)

// Bytes32 is a fixed-width value rendered as lowercase hex.
type Bytes32 [32]byte

// ParseBytes32 decodes a 64-character hex string.
func ParseBytes32(s string) (Bytes32, error) {
	var b Bytes32
	raw, err := hex.DecodeString(s)
	if err != nil {
		return b, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != len(b) {
		return b, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(b[:], raw)
	return b, nil
}

func (b Bytes32) String() string {
	return hex.EncodeToString(b[:])
}

// IsZero reports whether every byte is zero.
func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

// MarshalText implements encoding.TextMarshaler.
func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes32) UnmarshalText(text []byte) error {
	parsed, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// State is the lifecycle state of a swap.
type State uint8

const (
	StateOpen     State = 1
	StateRedeemed State = 2
	StateRefunded State = 3
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRedeemed:
		return "redeemed"
	case StateRefunded:
		return "refunded"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateRedeemed || s == StateRefunded
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StateOpen
	case "redeemed":
		*s = StateRedeemed
	case "refunded":
		*s = StateRefunded
	default:
		return fmt.Errorf("unknown swap state %q", text)
	}
	return nil
}

// MaxFee is the largest per-redeem fee a pool may charge.
const MaxFee = 1<<16 - 1

// Pool is the per-mint escrow configuration.
type Pool struct {
	Address      solana.PublicKey `json:"address"`
	Mint         solana.PublicKey `json:"mint"`
	Authority    solana.PublicKey `json:"authority"`
	Fee          uint64           `json:"fee"`
	Bump         uint8            `json:"bump"`
	FeeVaultBump uint8            `json:"fee_vault_bump"`
	Custody      solana.PublicKey `json:"custody"`
	FeeVault     solana.PublicKey `json:"fee_vault"`
}

// Swap is one escrowed amount.
type Swap struct {
	Address    solana.PublicKey `json:"address"`
	SwapID     Bytes32          `json:"swap_id"`
	Pool       solana.PublicKey `json:"pool"`
	Mint       solana.PublicKey `json:"mint"`
	Depositor  solana.PublicKey `json:"depositor"`
	Buyer      solana.PublicKey `json:"buyer"`
	Amount     uint64           `json:"amount"`
	SecretHash Bytes32          `json:"secret_hash"`
	Secret     Bytes32          `json:"secret"`
	LockExpiry int64            `json:"lock_expiry"`
	State      State            `json:"state"`
	Bump       uint8            `json:"bump"`
}

// Account layouts: 8-byte discriminator followed by little-endian fields.
//
// Pool: mint(32) | authority(32) | fee(8) | bump(1) | feeVaultBump(1)
// Swap: swapID(32) | pool(32) | mint(32) | depositor(32) | buyer(32) |
// amount(8) | secretHash(32) | secret(32) | lockExpiry(8) | state(1) | bump(1)
const (
	discriminatorSize = 8
	PoolSize          = discriminatorSize + 32 + 32 + 8 + 1 + 1
	SwapSize          = discriminatorSize + 32*5 + 8 + 32 + 32 + 8 + 1 + 1
)

var (
	poolDiscriminator = accountDiscriminator("Pool")
	swapDiscriminator = accountDiscriminator("Swap")
)

func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorSize]
}

type encoder struct {
	buf []byte
}

func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }
func (e *encoder) u8(v uint8)     { e.buf = append(e.buf, v) }
func (e *encoder) u64(v uint64)   { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) bytes(dst []byte) {
	d.off += copy(dst, d.buf[d.off:])
}

func (d *decoder) u8() uint8 {
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) u64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func checkLayout(data, disc []byte, size int, name string) error {
	if len(data) != size {
		return fmt.Errorf("%w: %s account is %d bytes, want %d", ledger.ErrInvalidAccountData, name, len(data), size)
	}
	if !bytes.Equal(data[:discriminatorSize], disc) {
		return fmt.Errorf("%w: %s discriminator mismatch", ledger.ErrInvalidAccountData, name)
	}
	return nil
}

// encode returns the account data of p.
func (p *Pool) encode() []byte {
	e := &encoder{buf: make([]byte, 0, PoolSize)}
	e.bytes(poolDiscriminator)
	e.bytes(p.Mint[:])
	e.bytes(p.Authority[:])
	e.u64(p.Fee)
	e.u8(p.Bump)
	e.u8(p.FeeVaultBump)
	return e.buf
}

func decodePool(data []byte) (*Pool, error) {
	if err := checkLayout(data, poolDiscriminator, PoolSize, "pool"); err != nil {
		return nil, err
	}
	d := &decoder{buf: data, off: discriminatorSize}
	p := &Pool{}
	d.bytes(p.Mint[:])
	d.bytes(p.Authority[:])
	p.Fee = d.u64()
	p.Bump = d.u8()
	p.FeeVaultBump = d.u8()
	return p, nil
}

// encode returns the account data of s.
func (s *Swap) encode() []byte {
	e := &encoder{buf: make([]byte, 0, SwapSize)}
	e.bytes(swapDiscriminator)
	e.bytes(s.SwapID[:])
	e.bytes(s.Pool[:])
	e.bytes(s.Mint[:])
	e.bytes(s.Depositor[:])
	e.bytes(s.Buyer[:])
	e.u64(s.Amount)
	e.bytes(s.SecretHash[:])
	e.bytes(s.Secret[:])
	e.u64(uint64(s.LockExpiry))
	e.u8(uint8(s.State))
	e.u8(s.Bump)
	return e.buf
}

func decodeSwap(data []byte) (*Swap, error) {
	if err := checkLayout(data, swapDiscriminator, SwapSize, "swap"); err != nil {
		return nil, err
	}
	d := &decoder{buf: data, off: discriminatorSize}
	s := &Swap{}
	d.bytes(s.SwapID[:])
	d.bytes(s.Pool[:])
	d.bytes(s.Mint[:])
	d.bytes(s.Depositor[:])
	d.bytes(s.Buyer[:])
	s.Amount = d.u64()
	d.bytes(s.SecretHash[:])
	d.bytes(s.Secret[:])
	s.LockExpiry = int64(d.u64())
	s.State = State(d.u8())
	s.Bump = d.u8()
	return s, nil
}
