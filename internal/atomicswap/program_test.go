package atomicswap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/storage/memory"
)

const (
	genesis     = int64(1_700_000_000)
	startTokens = uint64(10_000)
	lamports    = uint64(1_000_000_000)
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *ledger.ManualClock
	ledger *ledger.Ledger
	prog   *Program
	events *memory.SwapEventStore

	mint          solana.PublicKey
	mintAuthority solana.PublicKey
	authority     solana.PublicKey
	depositor     solana.PublicKey
	buyer         solana.PublicKey
}

func newHarness(t *testing.T, fee uint64) *harness {
	t.Helper()
	h := &harness{
		t:             t,
		ctx:           context.Background(),
		clock:         ledger.NewManualClock(genesis),
		events:        memory.NewSwapEventStore(),
		mint:          solana.NewRandomKey(),
		mintAuthority: solana.NewRandomKey(),
		authority:     solana.NewRandomKey(),
		depositor:     solana.NewRandomKey(),
		buyer:         solana.NewRandomKey(),
	}
	h.ledger = ledger.New(
		ledger.WithClock(h.clock),
		ledger.WithEventSink(ledger.NewStoreSink(h.events)),
	)
	h.prog = NewProgram(h.ledger)

	for _, pk := range []solana.PublicKey{h.mintAuthority, h.authority, h.depositor, h.buyer} {
		_, err := h.ledger.Airdrop(h.ctx, pk, lamports)
		require.NoError(t, err)
	}

	_, err := h.ledger.Execute(h.ctx, ledger.TxOptions{
		Instruction: "createMint",
		Program:     solana.TokenProgramID,
		Signers:     []solana.PublicKey{h.mintAuthority, h.mint},
	}, func(tx *ledger.Tx) error {
		return ledger.CreateMint(tx, h.mint, h.mintAuthority, h.mintAuthority, 6)
	})
	require.NoError(t, err)

	h.fundTokens(h.depositor, startTokens)
	h.fundTokens(h.buyer, 0)

	_, err = h.prog.Initialize(h.ctx, InitializeParams{Signer: h.authority, Mint: h.mint, Fee: fee})
	require.NoError(t, err)
	return h
}

func (h *harness) fundTokens(owner solana.PublicKey, amount uint64) {
	h.t.Helper()
	_, err := h.ledger.Execute(h.ctx, ledger.TxOptions{
		Instruction: "fund",
		Signers:     []solana.PublicKey{h.mintAuthority},
	}, func(tx *ledger.Tx) error {
		ata, err := ledger.CreateAssociatedTokenAccount(tx, owner, h.mint, h.mintAuthority)
		if err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		return ledger.MintTo(tx, h.mint, ata, h.mintAuthority, amount)
	})
	require.NoError(h.t, err)
}

func (h *harness) tokens(owner solana.PublicKey) uint64 {
	h.t.Helper()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, h.mint)
	require.NoError(h.t, err)
	var amount uint64
	require.NoError(h.t, h.ledger.View(func(tx *ledger.Tx) error {
		amount, err = ledger.TokenBalance(tx, ata)
		return err
	}))
	return amount
}

func (h *harness) custody() uint64 {
	h.t.Helper()
	amount, err := h.prog.CustodyBalance(h.mint)
	require.NoError(h.t, err)
	return amount
}

func (h *harness) feeVault() uint64 {
	h.t.Helper()
	amount, err := h.prog.FeeVaultBalance(h.mint)
	require.NoError(h.t, err)
	return amount
}

func (h *harness) lamportsOf(pk solana.PublicKey) uint64 {
	h.t.Helper()
	acc, err := h.ledger.Account(pk)
	require.NoError(h.t, err)
	return acc.Lamports
}

type testSwap struct {
	id     Bytes32
	secret Bytes32
	expiry int64
}

func (h *harness) deposit(amount uint64) testSwap {
	h.t.Helper()
	s := h.newSwap()
	_, err := h.prog.Deposit(h.ctx, h.depositParams(s, amount))
	require.NoError(h.t, err)
	return s
}

func (h *harness) newSwap() testSwap {
	h.t.Helper()
	id, err := NewSwapID()
	require.NoError(h.t, err)
	secret, err := NewSecret()
	require.NoError(h.t, err)
	return testSwap{id: id, secret: secret, expiry: h.clock.Now() + 3600}
}

func (h *harness) depositParams(s testSwap, amount uint64) DepositParams {
	return DepositParams{
		Signer:     h.depositor,
		Mint:       h.mint,
		SwapID:     s.id,
		LockExpiry: s.expiry,
		SecretHash: HashSecret(s.secret),
		Buyer:      h.buyer,
		Amount:     amount,
	}
}

func (h *harness) redeem(s testSwap) (*SettleResult, error) {
	return h.prog.Redeem(h.ctx, RedeemParams{Signer: h.buyer, Mint: h.mint, SwapID: s.id, Secret: s.secret})
}

func (h *harness) refund(s testSwap) (*SettleResult, error) {
	return h.prog.Refund(h.ctx, RefundParams{Signer: h.depositor, Mint: h.mint, SwapID: s.id})
}

func TestInitialize(t *testing.T) {
	h := newHarness(t, 500)

	pool, err := h.prog.GetPool(h.mint)
	require.NoError(t, err)
	assert.Equal(t, h.mint, pool.Mint)
	assert.Equal(t, h.authority, pool.Authority)
	assert.Equal(t, uint64(500), pool.Fee)

	expected, bump, err := PoolAddress(h.mint)
	require.NoError(t, err)
	assert.Equal(t, expected, pool.Address)
	assert.Equal(t, bump, pool.Bump)

	custody, err := h.ledger.Account(pool.Custody)
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, custody.Owner)
	assert.Zero(t, h.custody())
	assert.Zero(t, h.feeVault())
}

func TestInitialize_Errors(t *testing.T) {
	h := newHarness(t, 500)

	_, err := h.prog.Initialize(h.ctx, InitializeParams{Signer: h.authority, Mint: h.mint, Fee: 500})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	// Retrying yields the same error and leaves the pool untouched.
	_, err = h.prog.Initialize(h.ctx, InitializeParams{Signer: h.depositor, Mint: h.mint, Fee: 0})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	pool, err := h.prog.GetPool(h.mint)
	require.NoError(t, err)
	assert.Equal(t, h.authority, pool.Authority)

	_, err = h.prog.Initialize(h.ctx, InitializeParams{Signer: h.authority, Mint: solana.NewRandomKey(), Fee: MaxFee + 1})
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = h.prog.Initialize(h.ctx, InitializeParams{Signer: h.authority, Mint: solana.NewRandomKey(), Fee: 1})
	assert.ErrorIs(t, err, ErrInvalidMint)

	_, err = h.prog.GetPool(solana.NewRandomKey())
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

// Pool fee 500, deposit 2500, redeem pays 2000 to the buyer and 500 to the fee
// vault, then the swap is settled for good.
func TestSwapLifecycle_Redeem(t *testing.T) {
	h := newHarness(t, 500)
	depositorLamports := h.lamportsOf(h.depositor)

	s := h.deposit(2500)
	assert.Equal(t, uint64(2500), h.custody())
	assert.Equal(t, startTokens-2500, h.tokens(h.depositor))
	assert.Equal(t, depositorLamports-ledger.MinimumBalance(SwapSize), h.lamportsOf(h.depositor))

	swap, err := h.prog.GetSwap(h.mint, s.id)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, swap.State)
	assert.Equal(t, h.depositor, swap.Depositor)
	assert.Equal(t, h.buyer, swap.Buyer)
	assert.Equal(t, uint64(2500), swap.Amount)
	assert.True(t, swap.Secret.IsZero())

	res, err := h.redeem(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), res.Payout)
	assert.Equal(t, uint64(500), res.Fee)
	assert.Equal(t, StateRedeemed, res.Swap.State)
	assert.Equal(t, s.secret, res.Swap.Secret)

	assert.Equal(t, uint64(2000), h.tokens(h.buyer))
	assert.Equal(t, uint64(500), h.feeVault())
	assert.Zero(t, h.custody())
	assert.Equal(t, depositorLamports, h.lamportsOf(h.depositor))

	_, err = h.ledger.Account(swap.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = h.prog.GetSwap(h.mint, s.id)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	_, err = h.redeem(s)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	_, err = h.refund(s)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	history, err := h.events.GetBySwapID(h.ctx, swap.Pool.String(), s.id.String())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.EventDeposited, history[0].Type)
	assert.Equal(t, domain.EventRedeemed, history[1].Type)
	assert.Equal(t, s.secret.String(), history[1].Secret)
	assert.Equal(t, uint64(2000), history[1].Payout)
	assert.Equal(t, uint64(500), history[1].Fee)
}

func TestSwapLifecycle_Refund(t *testing.T) {
	h := newHarness(t, 500)
	s := h.deposit(2500)

	_, err := h.refund(s)
	assert.ErrorIs(t, err, ErrTooEarly)
	assert.Equal(t, uint64(2500), h.custody())

	h.clock.Set(s.expiry)
	res, err := h.refund(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), res.Payout)
	assert.Zero(t, res.Fee)
	assert.Equal(t, StateRefunded, res.Swap.State)

	assert.Equal(t, startTokens, h.tokens(h.depositor))
	assert.Zero(t, h.custody())
	assert.Zero(t, h.feeVault())

	_, err = h.refund(s)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	_, err = h.redeem(s)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestDeposit_DuplicateSwap(t *testing.T) {
	h := newHarness(t, 500)
	s := h.deposit(2500)

	_, err := h.prog.Deposit(h.ctx, h.depositParams(s, 100))
	assert.ErrorIs(t, err, ErrDuplicateSwap)
	assert.Equal(t, uint64(2500), h.custody())
	assert.Equal(t, startTokens-2500, h.tokens(h.depositor))

	// A settled id stays used.
	_, err = h.redeem(s)
	require.NoError(t, err)
	_, err = h.prog.Deposit(h.ctx, h.depositParams(s, 100))
	assert.ErrorIs(t, err, ErrDuplicateSwap)
	assert.Zero(t, h.custody())
}

func TestDeposit_Errors(t *testing.T) {
	h := newHarness(t, 500)
	now := h.clock.Now()

	tests := []struct {
		name   string
		mutate func(*DepositParams)
		want   error
	}{
		{"zero amount", func(p *DepositParams) { p.Amount = 0 }, ErrInvalidAmount},
		{"expiry in past", func(p *DepositParams) { p.LockExpiry = now - 1 }, ErrLockTooSoon},
		{"expiry now", func(p *DepositParams) { p.LockExpiry = now }, ErrLockTooSoon},
		{"expiry inside margin", func(p *DepositParams) { p.LockExpiry = now + 59 }, ErrLockTooSoon},
		{"exceeds balance", func(p *DepositParams) { p.Amount = startTokens + 1 }, ErrInsufficientFunds},
		{"no token account", func(p *DepositParams) { p.Signer = h.authority }, ErrInsufficientFunds},
		{"unknown pool", func(p *DepositParams) { p.Mint = solana.NewRandomKey() }, ErrPoolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := h.depositParams(h.newSwap(), 100)
			tt.mutate(&params)

			_, err := h.prog.Deposit(h.ctx, params)
			assert.ErrorIs(t, err, tt.want)
			_, err = h.prog.Deposit(h.ctx, params)
			assert.ErrorIs(t, err, tt.want)

			assert.Zero(t, h.custody())
			assert.Equal(t, startTokens, h.tokens(h.depositor))
		})
	}

	params := h.depositParams(h.newSwap(), 100)
	params.LockExpiry = now + 60
	_, err := h.prog.Deposit(h.ctx, params)
	assert.NoError(t, err)
}

func TestRedeem_Errors(t *testing.T) {
	h := newHarness(t, 500)
	s := h.deposit(2500)
	wrong := SecretFromPhrase("not the secret")

	tests := []struct {
		name   string
		params RedeemParams
		want   error
	}{
		{"not buyer", RedeemParams{Signer: h.depositor, Mint: h.mint, SwapID: s.id, Secret: s.secret}, ErrNotBuyer},
		{"wrong secret", RedeemParams{Signer: h.buyer, Mint: h.mint, SwapID: s.id, Secret: wrong}, ErrWrongSecret},
		{"unknown swap", RedeemParams{Signer: h.buyer, Mint: h.mint, SwapID: Bytes32{1}, Secret: s.secret}, ErrSwapNotFound},
		{"unknown pool", RedeemParams{Signer: h.buyer, Mint: solana.NewRandomKey(), SwapID: s.id, Secret: s.secret}, ErrPoolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.prog.Redeem(h.ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
			_, err = h.prog.Redeem(h.ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)

			swap, err := h.prog.GetSwap(h.mint, s.id)
			require.NoError(t, err)
			assert.Equal(t, StateOpen, swap.State)
			assert.Equal(t, uint64(2500), h.custody())
			assert.Zero(t, h.tokens(h.buyer))
		})
	}

	// A wrong secret attempt does not affect later calls.
	h.clock.Set(s.expiry)
	_, err := h.redeem(s)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = h.redeem(s)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = h.prog.Refund(h.ctx, RefundParams{Signer: h.buyer, Mint: h.mint, SwapID: s.id})
	assert.ErrorIs(t, err, ErrNotDepositor)

	_, err = h.refund(s)
	require.NoError(t, err)
}

func TestRedeem_ExpiryBoundary(t *testing.T) {
	h := newHarness(t, 0)
	s := h.deposit(100)

	h.clock.Set(s.expiry - 1)
	_, err := h.refund(s)
	assert.ErrorIs(t, err, ErrTooEarly)

	_, err = h.redeem(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), h.tokens(h.buyer))
	assert.Zero(t, h.feeVault())
}

func TestRedeem_CreatesBuyerTokenAccount(t *testing.T) {
	h := newHarness(t, 10)
	stranger := solana.NewRandomKey()
	_, err := h.ledger.Airdrop(h.ctx, stranger, lamports)
	require.NoError(t, err)

	s := h.newSwap()
	params := h.depositParams(s, 100)
	params.Buyer = stranger
	_, err = h.prog.Deposit(h.ctx, params)
	require.NoError(t, err)

	_, err = h.prog.Redeem(h.ctx, RedeemParams{Signer: stranger, Mint: h.mint, SwapID: s.id, Secret: s.secret})
	require.NoError(t, err)
	assert.Equal(t, uint64(90), h.tokens(stranger))
}

func TestRedeem_FeeConservation(t *testing.T) {
	h := newHarness(t, 500)

	amounts := []uint64{1, 499, 500, 501, 2500}
	var fees, payouts uint64
	for _, amount := range amounts {
		s := h.deposit(amount)
		before := h.custody()

		res, err := h.redeem(s)
		require.NoError(t, err)
		assert.Equal(t, amount, res.Payout+res.Fee)
		assert.Equal(t, min(uint64(500), amount), res.Fee)
		assert.Equal(t, before-amount, h.custody())

		fees += res.Fee
		payouts += res.Payout
	}

	assert.Equal(t, payouts, h.tokens(h.buyer))
	assert.Equal(t, fees, h.feeVault())
}

func TestCustodyMatchesOpenSwaps(t *testing.T) {
	h := newHarness(t, 5)

	a := h.deposit(100)
	b := h.deposit(200)
	c := h.deposit(300)
	assert.Equal(t, uint64(600), h.custody())

	_, err := h.redeem(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), h.custody())

	h.clock.Set(c.expiry)
	_, err = h.refund(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), h.custody())
	_, err = h.refund(c)
	require.NoError(t, err)
	assert.Zero(t, h.custody())
}

func TestRedeemRefundRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, 500)
		s := h.deposit(2500)
		h.clock.Set(s.expiry - 1)

		var wg sync.WaitGroup
		var mu sync.Mutex
		var redeemed, refunded int

		wg.Add(3)
		go func() {
			defer wg.Done()
			for {
				_, err := h.redeem(s)
				if err == nil {
					mu.Lock()
					redeemed++
					mu.Unlock()
					return
				}
				if errors.Is(err, ErrExpired) || errors.Is(err, ErrAlreadySettled) {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				_, err := h.refund(s)
				if err == nil {
					mu.Lock()
					refunded++
					mu.Unlock()
					return
				}
				if errors.Is(err, ErrAlreadySettled) {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			h.clock.Set(s.expiry)
		}()
		wg.Wait()

		assert.Equal(t, 1, redeemed+refunded)
		assert.Zero(t, h.custody())
		assert.Equal(t, startTokens, h.tokens(h.depositor)+h.tokens(h.buyer)+h.feeVault())
	}
}

func TestWithdrawFees(t *testing.T) {
	h := newHarness(t, 500)
	s := h.deposit(2500)
	_, err := h.redeem(s)
	require.NoError(t, err)

	_, err = h.prog.WithdrawFees(h.ctx, WithdrawFeesParams{Signer: h.buyer, Mint: h.mint, Amount: 100})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.prog.WithdrawFees(h.ctx, WithdrawFeesParams{Signer: h.authority, Mint: h.mint, Amount: 501})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = h.prog.WithdrawFees(h.ctx, WithdrawFeesParams{Signer: h.authority, Mint: h.mint, Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	res, err := h.prog.WithdrawFees(h.ctx, WithdrawFeesParams{Signer: h.authority, Mint: h.mint, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, uint64(300), res.Amount)
	assert.Equal(t, uint64(300), h.tokens(h.authority))
	assert.Equal(t, uint64(200), h.feeVault())
}

func TestProgram_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	accounts := memory.NewAccountStore()
	clock := ledger.NewManualClock(genesis)
	l := ledger.New(ledger.WithClock(clock), ledger.WithAccountStore(accounts))

	mint := solana.NewRandomKey()
	depositor := solana.NewRandomKey()
	buyer := solana.NewRandomKey()
	for _, pk := range []solana.PublicKey{depositor, buyer} {
		_, err := l.Airdrop(ctx, pk, lamports)
		require.NoError(t, err)
	}
	_, err := l.Execute(ctx, ledger.TxOptions{
		Instruction: "setup",
		Signers:     []solana.PublicKey{depositor, mint},
	}, func(tx *ledger.Tx) error {
		if err := ledger.CreateMint(tx, mint, depositor, depositor, 0); err != nil {
			return err
		}
		ata, err := ledger.CreateAssociatedTokenAccount(tx, depositor, mint, depositor)
		if err != nil {
			return err
		}
		return ledger.MintTo(tx, mint, ata, depositor, 1000)
	})
	require.NoError(t, err)

	prog := NewProgram(l)
	_, err = prog.Initialize(ctx, InitializeParams{Signer: depositor, Mint: mint, Fee: 0})
	require.NoError(t, err)

	secret := SecretFromPhrase("restart")
	id := Bytes32{7}
	_, err = prog.Deposit(ctx, DepositParams{
		Signer: depositor, Mint: mint, SwapID: id, LockExpiry: genesis + 600,
		SecretHash: HashSecret(secret), Buyer: buyer, Amount: 1000,
	})
	require.NoError(t, err)

	restored := ledger.New(ledger.WithClock(clock), ledger.WithAccountStore(accounts))
	require.NoError(t, restored.Load(ctx))
	prog = NewProgram(restored)

	_, err = prog.Redeem(ctx, RedeemParams{Signer: buyer, Mint: mint, SwapID: id, Secret: secret})
	require.NoError(t, err)

	restored = ledger.New(ledger.WithClock(clock), ledger.WithAccountStore(accounts))
	require.NoError(t, restored.Load(ctx))
	prog = NewProgram(restored)

	_, err = prog.Redeem(ctx, RedeemParams{Signer: buyer, Mint: mint, SwapID: id, Secret: secret})
	assert.ErrorIs(t, err, ErrAlreadySettled)
	_, err = prog.Deposit(ctx, DepositParams{
		Signer: depositor, Mint: mint, SwapID: id, LockExpiry: genesis + 600,
		SecretHash: HashSecret(secret), Buyer: buyer, Amount: 1,
	})
	assert.ErrorIs(t, err, ErrDuplicateSwap)
}

func TestWithMinLockMargin(t *testing.T) {
	h := newHarness(t, 0)
	h.prog = NewProgram(h.ledger, WithMinLockMargin(time.Hour))

	s := h.newSwap()
	params := h.depositParams(s, 10)
	params.LockExpiry = h.clock.Now() + 3599
	_, err := h.prog.Deposit(h.ctx, params)
	assert.ErrorIs(t, err, ErrLockTooSoon)

	params.LockExpiry = h.clock.Now() + 3600
	_, err = h.prog.Deposit(h.ctx, params)
	assert.NoError(t, err)
}

func TestWithMinLockMargin_RoundsUp(t *testing.T) {
	h := newHarness(t, 0)
	h.prog = NewProgram(h.ledger, WithMinLockMargin(1500*time.Millisecond))

	s := h.newSwap()
	params := h.depositParams(s, 10)
	params.LockExpiry = h.clock.Now() + 1
	_, err := h.prog.Deposit(h.ctx, params)
	assert.ErrorIs(t, err, ErrLockTooSoon)

	params.LockExpiry = h.clock.Now() + 2
	_, err = h.prog.Deposit(h.ctx, params)
	assert.NoError(t, err)
}

func TestRedeem_BuyerCannotPayRent(t *testing.T) {
	h := newHarness(t, 10)
	stranger := solana.NewRandomKey()

	s := h.newSwap()
	params := h.depositParams(s, 100)
	params.Buyer = stranger
	_, err := h.prog.Deposit(h.ctx, params)
	require.NoError(t, err)

	redeem := RedeemParams{Signer: stranger, Mint: h.mint, SwapID: s.id, Secret: s.secret}
	_, err = h.prog.Redeem(h.ctx, redeem)
	assert.ErrorIs(t, err, ErrRentUnfunded)
	assert.ErrorIs(t, err, ledger.ErrInsufficientLamports)
	assert.Equal(t, "RentUnfunded", ErrorName(err))

	swap, err := h.prog.GetSwap(h.mint, s.id)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, swap.State)
	assert.Equal(t, uint64(100), h.custody())

	_, err = h.ledger.Airdrop(h.ctx, stranger, lamports)
	require.NoError(t, err)
	_, err = h.prog.Redeem(h.ctx, redeem)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), h.tokens(stranger))
}
