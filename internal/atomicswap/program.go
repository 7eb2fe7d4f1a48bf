package atomicswap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/solana"
)

// DefaultMinLockMargin is how far in the future a deposit's lock expiry must be.
const DefaultMinLockMargin = time.Minute

// Program executes escrow instructions against a ledger.
type Program struct {
	ledger        *ledger.Ledger
	minLockMargin int64
	logger        *zap.Logger
}

// Option configures a Program.
type Option func(*Program)

// WithMinLockMargin sets the minimum distance between now and a deposit's
// lock expiry. Fractions of a second round up.
func WithMinLockMargin(d time.Duration) Option {
	return func(p *Program) {
		p.minLockMargin = wholeSeconds(d)
	}
}

func wholeSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Program) {
		p.logger = logger
	}
}

// NewProgram creates an escrow program over l.
func NewProgram(l *ledger.Ledger, opts ...Option) *Program {
	p := &Program{
		ledger:        l,
		minLockMargin: wholeSeconds(DefaultMinLockMargin),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ledger returns the underlying ledger.
func (p *Program) Ledger() *ledger.Ledger {
	return p.ledger
}

// InitializeParams are the inputs of Initialize.
type InitializeParams struct {
	Signer solana.PublicKey `json:"signer"`
	Mint   solana.PublicKey `json:"mint"`
	Fee    uint64           `json:"fee"`
}

// DepositParams are the inputs of Deposit.
type DepositParams struct {
	Signer     solana.PublicKey `json:"signer"`
	Mint       solana.PublicKey `json:"mint"`
	SwapID     Bytes32          `json:"swap_id"`
	LockExpiry int64            `json:"lock_expiry"`
	SecretHash Bytes32          `json:"secret_hash"`
	Buyer      solana.PublicKey `json:"buyer"`
	Amount     uint64           `json:"amount"`
}

// RedeemParams are the inputs of Redeem.
type RedeemParams struct {
	Signer solana.PublicKey `json:"signer"`
	Mint   solana.PublicKey `json:"mint"`
	SwapID Bytes32          `json:"swap_id"`
	Secret Bytes32          `json:"secret"`
}

// RefundParams are the inputs of Refund.
type RefundParams struct {
	Signer solana.PublicKey `json:"signer"`
	Mint   solana.PublicKey `json:"mint"`
	SwapID Bytes32          `json:"swap_id"`
}

// WithdrawFeesParams are the inputs of WithdrawFees.
type WithdrawFeesParams struct {
	Signer solana.PublicKey `json:"signer"`
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

// InitializeResult describes a created pool.
type InitializeResult struct {
	Pool    *Pool           `json:"pool"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// DepositResult describes a funded swap.
type DepositResult struct {
	Swap    *Swap           `json:"swap"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// SettleResult describes a redeemed or refunded swap. Swap holds the final
// state written before the account was closed.
type SettleResult struct {
	Swap    *Swap           `json:"swap"`
	Payout  uint64          `json:"payout"`
	Fee     uint64          `json:"fee"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// WithdrawFeesResult describes a fee withdrawal.
type WithdrawFeesResult struct {
	Destination solana.PublicKey `json:"destination"`
	Amount      uint64           `json:"amount"`
	Receipt     *ledger.Receipt  `json:"receipt"`
}

// Initialize creates the pool of a mint along with its custody account and
// fee vault. The signer pays rent and becomes the pool authority.
func (p *Program) Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	var pool *Pool
	receipt, err := p.execute(ctx, "initialize", params.Signer, params, func(tx *ledger.Tx) error {
		if params.Fee > MaxFee {
			return fmt.Errorf("%w: %d > %d", ErrInvalidFee, params.Fee, MaxFee)
		}

		addrs, err := PoolAddresses(params.Mint)
		if err != nil {
			return err
		}
		if tx.Exists(addrs.Pool) || tx.IsRetired(addrs.Pool) {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, addrs.Pool)
		}
		if _, err := ledger.LoadMint(tx, params.Mint); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMint, err)
		}

		if _, err := tx.SignWithSeeds(poolSeed, params.Mint[:], []byte{addrs.PoolBump}); err != nil {
			return err
		}
		if err := tx.CreateAccount(addrs.Pool, ProgramID, params.Signer, PoolSize); err != nil {
			return fromLedger(err)
		}
		pool = &Pool{
			Address:      addrs.Pool,
			Mint:         params.Mint,
			Authority:    params.Signer,
			Fee:          params.Fee,
			Bump:         addrs.PoolBump,
			FeeVaultBump: addrs.FeeVaultBump,
			Custody:      addrs.Custody,
			FeeVault:     addrs.FeeVault,
		}
		if err := tx.SetData(addrs.Pool, pool.encode()); err != nil {
			return err
		}

		if _, err := ledger.CreateAssociatedTokenAccount(tx, addrs.Pool, params.Mint, params.Signer); err != nil {
			return fmt.Errorf("create custody: %w", fromLedger(err))
		}
		if _, err := tx.SignWithSeeds(feeVaultSeed, addrs.Pool[:], []byte{addrs.FeeVaultBump}); err != nil {
			return err
		}
		if err := ledger.CreateTokenAccount(tx, addrs.FeeVault, params.Mint, addrs.Pool, params.Signer); err != nil {
			return fmt.Errorf("create fee vault: %w", fromLedger(err))
		}

		tx.Emit(&domain.SwapEvent{
			Type:  domain.EventPoolInitialized,
			Pool:  addrs.Pool.String(),
			Mint:  params.Mint.String(),
			Actor: params.Signer.String(),
			Fee:   params.Fee,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("pool initialized",
		zap.String("pool", pool.Address.String()),
		zap.String("mint", pool.Mint.String()),
		zap.Uint64("fee", pool.Fee),
	)
	return &InitializeResult{Pool: pool, Receipt: receipt}, nil
}

// Deposit creates a swap and moves amount from the signer's associated token
// account into pool custody.
func (p *Program) Deposit(ctx context.Context, params DepositParams) (*DepositResult, error) {
	var swap *Swap
	var custody uint64
	receipt, err := p.execute(ctx, "deposit", params.Signer, params, func(tx *ledger.Tx) error {
		if params.Amount == 0 {
			return ErrInvalidAmount
		}
		now := tx.Now()
		if params.LockExpiry <= now || params.LockExpiry-now < p.minLockMargin {
			return fmt.Errorf("%w: expiry %d, now %d, margin %ds", ErrLockTooSoon, params.LockExpiry, now, p.minLockMargin)
		}

		pool, err := loadPool(tx, params.Mint)
		if err != nil {
			return err
		}
		addr, bump, err := SwapAddress(pool.Address, params.SwapID)
		if err != nil {
			return err
		}
		if tx.Exists(addr) || tx.IsRetired(addr) {
			return fmt.Errorf("%w: %s", ErrDuplicateSwap, params.SwapID)
		}

		source, _, err := solana.FindAssociatedTokenAddress(params.Signer, params.Mint)
		if err != nil {
			return err
		}
		if !tx.Exists(source) {
			return fmt.Errorf("%w: no token account for %s", ErrInsufficientFunds, params.Signer)
		}

		if _, err := tx.SignWithSeeds(swapSeed, pool.Address[:], params.SwapID[:], []byte{bump}); err != nil {
			return err
		}
		if err := tx.CreateAccount(addr, ProgramID, params.Signer, SwapSize); err != nil {
			return fromLedger(err)
		}
		swap = &Swap{
			Address:    addr,
			SwapID:     params.SwapID,
			Pool:       pool.Address,
			Mint:       params.Mint,
			Depositor:  params.Signer,
			Buyer:      params.Buyer,
			Amount:     params.Amount,
			SecretHash: params.SecretHash,
			LockExpiry: params.LockExpiry,
			State:      StateOpen,
			Bump:       bump,
		}
		if err := tx.SetData(addr, swap.encode()); err != nil {
			return err
		}

		if err := ledger.Transfer(tx, source, pool.Custody, params.Signer, params.Amount); err != nil {
			return fromLedger(err)
		}
		if custody, err = ledger.TokenBalance(tx, pool.Custody); err != nil {
			return err
		}

		tx.Emit(swapEvent(domain.EventDeposited, swap, params.Signer))
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.UpdateCustody(swap.Pool.String(), custody)
	p.logger.Info("swap deposited",
		zap.String("swap_id", swap.SwapID.String()),
		zap.String("pool", swap.Pool.String()),
		zap.String("depositor", swap.Depositor.String()),
		zap.String("buyer", swap.Buyer.String()),
		zap.Uint64("amount", swap.Amount),
		zap.Int64("lock_expiry", swap.LockExpiry),
	)
	return &DepositResult{Swap: swap, Receipt: receipt}, nil
}

// Redeem releases a swap to its buyer in exchange for the secret. The pool
// fee, capped at the swap amount, goes to the fee vault.
func (p *Program) Redeem(ctx context.Context, params RedeemParams) (*SettleResult, error) {
	var res SettleResult
	var custody uint64
	receipt, err := p.execute(ctx, "redeem", params.Signer, params, func(tx *ledger.Tx) error {
		pool, swap, err := loadOpenSwap(tx, params.Mint, params.SwapID)
		if err != nil {
			return err
		}
		if params.Signer != swap.Buyer {
			return fmt.Errorf("%w: %s", ErrNotBuyer, params.Signer)
		}
		if tx.Now() >= swap.LockExpiry {
			return fmt.Errorf("%w: expired at %d", ErrExpired, swap.LockExpiry)
		}
		if !VerifySecret(params.Secret, swap.SecretHash) {
			return ErrWrongSecret
		}

		fee := min(pool.Fee, swap.Amount)
		payout := swap.Amount - fee

		dest, err := ledger.CreateAssociatedTokenAccount(tx, swap.Buyer, swap.Mint, params.Signer)
		if err != nil {
			return fromLedger(err)
		}
		if err := p.releaseFromCustody(tx, pool, dest, payout); err != nil {
			return err
		}
		if fee > 0 {
			if err := p.releaseFromCustody(tx, pool, pool.FeeVault, fee); err != nil {
				return err
			}
		}

		swap.State = StateRedeemed
		swap.Secret = params.Secret
		if err := p.settle(tx, swap); err != nil {
			return err
		}
		if custody, err = ledger.TokenBalance(tx, pool.Custody); err != nil {
			return err
		}

		e := swapEvent(domain.EventRedeemed, swap, params.Signer)
		e.Fee = fee
		e.Payout = payout
		e.Secret = params.Secret.String()
		tx.Emit(e)

		res = SettleResult{Swap: swap, Payout: payout, Fee: fee}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Receipt = receipt
	observability.UpdateCustody(res.Swap.Pool.String(), custody)
	observability.RecordFee(res.Swap.Pool.String(), res.Fee)
	p.logger.Info("swap redeemed",
		zap.String("swap_id", res.Swap.SwapID.String()),
		zap.String("buyer", res.Swap.Buyer.String()),
		zap.Uint64("payout", res.Payout),
		zap.Uint64("fee", res.Fee),
	)
	return &res, nil
}

// Refund returns an expired swap's full amount to its depositor.
func (p *Program) Refund(ctx context.Context, params RefundParams) (*SettleResult, error) {
	var res SettleResult
	var custody uint64
	receipt, err := p.execute(ctx, "refund", params.Signer, params, func(tx *ledger.Tx) error {
		pool, swap, err := loadOpenSwap(tx, params.Mint, params.SwapID)
		if err != nil {
			return err
		}
		if params.Signer != swap.Depositor {
			return fmt.Errorf("%w: %s", ErrNotDepositor, params.Signer)
		}
		if tx.Now() < swap.LockExpiry {
			return fmt.Errorf("%w: expires at %d", ErrTooEarly, swap.LockExpiry)
		}

		dest, err := ledger.CreateAssociatedTokenAccount(tx, swap.Depositor, swap.Mint, params.Signer)
		if err != nil {
			return fromLedger(err)
		}
		if err := p.releaseFromCustody(tx, pool, dest, swap.Amount); err != nil {
			return err
		}

		swap.State = StateRefunded
		if err := p.settle(tx, swap); err != nil {
			return err
		}
		if custody, err = ledger.TokenBalance(tx, pool.Custody); err != nil {
			return err
		}

		e := swapEvent(domain.EventRefunded, swap, params.Signer)
		e.Payout = swap.Amount
		tx.Emit(e)

		res = SettleResult{Swap: swap, Payout: swap.Amount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Receipt = receipt
	observability.UpdateCustody(res.Swap.Pool.String(), custody)
	p.logger.Info("swap refunded",
		zap.String("swap_id", res.Swap.SwapID.String()),
		zap.String("depositor", res.Swap.Depositor.String()),
		zap.Uint64("amount", res.Payout),
	)
	return &res, nil
}

// WithdrawFees moves accrued fees from the fee vault to the pool authority's
// associated token account.
func (p *Program) WithdrawFees(ctx context.Context, params WithdrawFeesParams) (*WithdrawFeesResult, error) {
	res := &WithdrawFeesResult{Amount: params.Amount}
	receipt, err := p.execute(ctx, "withdrawFees", params.Signer, params, func(tx *ledger.Tx) error {
		if params.Amount == 0 {
			return ErrInvalidAmount
		}
		pool, err := loadPool(tx, params.Mint)
		if err != nil {
			return err
		}
		if params.Signer != pool.Authority {
			return fmt.Errorf("%w: %s", ErrUnauthorized, params.Signer)
		}

		dest, err := ledger.CreateAssociatedTokenAccount(tx, pool.Authority, pool.Mint, params.Signer)
		if err != nil {
			return fromLedger(err)
		}
		if _, err := tx.SignWithSeeds(poolSeed, pool.Mint[:], []byte{pool.Bump}); err != nil {
			return err
		}
		if err := ledger.Transfer(tx, pool.FeeVault, dest, pool.Address, params.Amount); err != nil {
			return fromLedger(err)
		}

		tx.Emit(&domain.SwapEvent{
			Type:   domain.EventFeesWithdrawn,
			Pool:   pool.Address.String(),
			Mint:   pool.Mint.String(),
			Actor:  params.Signer.String(),
			Amount: params.Amount,
			Payout: params.Amount,
		})
		res.Destination = dest
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Receipt = receipt
	return res, nil
}

// GetPool returns the pool of mint.
func (p *Program) GetPool(mint solana.PublicKey) (*Pool, error) {
	var pool *Pool
	err := p.ledger.View(func(tx *ledger.Tx) error {
		var err error
		pool, err = loadPool(tx, mint)
		return err
	})
	return pool, err
}

// GetSwap returns an open swap. Settled swaps no longer exist and report
// ErrAlreadySettled.
func (p *Program) GetSwap(mint solana.PublicKey, swapID Bytes32) (*Swap, error) {
	var swap *Swap
	err := p.ledger.View(func(tx *ledger.Tx) error {
		var err error
		_, swap, err = loadOpenSwap(tx, mint, swapID)
		return err
	})
	return swap, err
}

// CustodyBalance returns the amount held in the pool custody of mint.
func (p *Program) CustodyBalance(mint solana.PublicKey) (uint64, error) {
	return p.poolBalance(mint, func(pool *Pool) solana.PublicKey { return pool.Custody })
}

// FeeVaultBalance returns the fees accrued by the pool of mint.
func (p *Program) FeeVaultBalance(mint solana.PublicKey) (uint64, error) {
	return p.poolBalance(mint, func(pool *Pool) solana.PublicKey { return pool.FeeVault })
}

func (p *Program) poolBalance(mint solana.PublicKey, account func(*Pool) solana.PublicKey) (uint64, error) {
	var amount uint64
	err := p.ledger.View(func(tx *ledger.Tx) error {
		pool, err := loadPool(tx, mint)
		if err != nil {
			return err
		}
		amount, err = ledger.TokenBalance(tx, account(pool))
		return err
	})
	return amount, err
}

// PoolSnapshot is the state of one pool as of a single committed slot.
type PoolSnapshot struct {
	Pool     *Pool
	Slot     uint64
	Custody  uint64
	FeeVault uint64
	Open     map[Bytes32]*Swap
}

// Snapshot reads the pool of mint, its balances and every open swap under
// one ledger view.
func (p *Program) Snapshot(mint solana.PublicKey) (*PoolSnapshot, error) {
	var snap *PoolSnapshot
	err := p.ledger.View(func(tx *ledger.Tx) error {
		pool, err := loadPool(tx, mint)
		if err != nil {
			return err
		}
		snap = &PoolSnapshot{Pool: pool, Slot: tx.Slot(), Open: make(map[Bytes32]*Swap)}
		if snap.Custody, err = ledger.TokenBalance(tx, pool.Custody); err != nil {
			return err
		}
		if snap.FeeVault, err = ledger.TokenBalance(tx, pool.FeeVault); err != nil {
			return err
		}
		for _, acc := range tx.ProgramAccounts(ProgramID) {
			if len(acc.Data) != SwapSize || !bytes.Equal(acc.Data[:discriminatorSize], swapDiscriminator) {
				continue
			}
			swap, err := decodeSwap(acc.Data)
			if err != nil {
				return err
			}
			if swap.Pool != pool.Address || swap.State != StateOpen {
				continue
			}
			swap.Address = acc.Address
			snap.Open[swap.SwapID] = swap
		}
		return nil
	})
	return snap, err
}

// execute runs one instruction as a ledger transaction signed by signer and
// records its outcome.
func (p *Program) execute(ctx context.Context, instruction string, signer solana.PublicKey, args any, fn func(*ledger.Tx) error) (*ledger.Receipt, error) {
	receipt, err := p.ledger.Execute(ctx, ledger.TxOptions{
		Instruction: instruction,
		Program:     ProgramID,
		Signers:     []solana.PublicKey{signer},
		Payload:     []byte(fmt.Sprintf("%+v", args)),
	}, fn)
	if err != nil {
		name := ErrorName(err)
		observability.RecordSwapError(instruction, name)
		p.logger.Debug("instruction rejected",
			zap.String("instruction", instruction),
			zap.String("signer", signer.String()),
			zap.String("error", name),
			zap.Error(err),
		)
		return nil, err
	}
	observability.RecordSwapOperation(instruction)
	return receipt, nil
}

// releaseFromCustody transfers amount out of pool custody, signing as the pool.
func (p *Program) releaseFromCustody(tx *ledger.Tx, pool *Pool, dest solana.PublicKey, amount uint64) error {
	if _, err := tx.SignWithSeeds(poolSeed, pool.Mint[:], []byte{pool.Bump}); err != nil {
		return err
	}
	return fromLedger(ledger.Transfer(tx, pool.Custody, dest, pool.Address, amount))
}

// settle writes the terminal state and closes the swap, returning its rent
// to the depositor.
func (p *Program) settle(tx *ledger.Tx, swap *Swap) error {
	if err := tx.SetData(swap.Address, swap.encode()); err != nil {
		return err
	}
	return tx.Close(swap.Address, swap.Depositor)
}

func loadPool(tx *ledger.Tx, mint solana.PublicKey) (*Pool, error) {
	addrs, err := PoolAddresses(mint)
	if err != nil {
		return nil, err
	}
	acc, err := tx.Get(addrs.Pool)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, mint)
	}
	if err != nil {
		return nil, err
	}
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: pool %s owned by %s", ledger.ErrIllegalOwner, addrs.Pool, acc.Owner)
	}
	pool, err := decodePool(acc.Data)
	if err != nil {
		return nil, err
	}
	pool.Address = addrs.Pool
	pool.Custody = addrs.Custody
	pool.FeeVault = addrs.FeeVault
	return pool, nil
}

// loadOpenSwap loads a swap that can still be settled. A closed swap address
// reports ErrAlreadySettled; one never used reports ErrSwapNotFound.
func loadOpenSwap(tx *ledger.Tx, mint solana.PublicKey, swapID Bytes32) (*Pool, *Swap, error) {
	pool, err := loadPool(tx, mint)
	if err != nil {
		return nil, nil, err
	}
	addr, _, err := SwapAddress(pool.Address, swapID)
	if err != nil {
		return nil, nil, err
	}
	if tx.IsRetired(addr) {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadySettled, swapID)
	}
	acc, err := tx.Get(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSwapNotFound, swapID)
	}
	if err != nil {
		return nil, nil, err
	}
	if acc.Owner != ProgramID {
		return nil, nil, fmt.Errorf("%w: swap %s owned by %s", ledger.ErrIllegalOwner, addr, acc.Owner)
	}
	swap, err := decodeSwap(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	swap.Address = addr
	if swap.State != StateOpen {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrAlreadySettled, swapID, swap.State)
	}
	return pool, swap, nil
}

func swapEvent(t domain.EventType, s *Swap, actor solana.PublicKey) *domain.SwapEvent {
	return &domain.SwapEvent{
		Type:       t,
		Pool:       s.Pool.String(),
		Mint:       s.Mint.String(),
		SwapID:     s.SwapID.String(),
		Actor:      actor.String(),
		Depositor:  s.Depositor.String(),
		Buyer:      s.Buyer.String(),
		Amount:     s.Amount,
		SecretHash: s.SecretHash.String(),
		LockExpiry: s.LockExpiry,
	}
}
