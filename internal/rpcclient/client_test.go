package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/rpc"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/storage/memory"
)

const genesis = int64(1_700_000_000)

// newSwapd starts an in-process swapd with a manual clock.
func newSwapd(t *testing.T) (*httptest.Server, *rpc.Hub) {
	t.Helper()
	events := memory.NewSwapEventStore()
	clock := ledger.NewManualClock(genesis)
	hub := rpc.NewHub(nil)
	l := ledger.New(
		ledger.WithClock(clock),
		ledger.WithEventSink(ledger.NewStoreSink(events)),
		ledger.WithEventSink(hub),
	)
	srv := rpc.NewServer(atomicswap.NewProgram(l),
		rpc.WithEventStore(events),
		rpc.WithManualClock(clock),
		rpc.WithHub(hub),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, hub
}

type parties struct {
	authority, depositor, buyer, mint solana.PublicKey
}

func setupPool(t *testing.T, ctx context.Context, c *Client, fee uint64) parties {
	t.Helper()
	p := parties{
		authority: solana.NewRandomKey(),
		depositor: solana.NewRandomKey(),
		buyer:     solana.NewRandomKey(),
	}
	for _, pk := range []solana.PublicKey{p.authority, p.depositor, p.buyer} {
		if _, err := c.Airdrop(ctx, pk, 1_000_000_000); err != nil {
			t.Fatalf("Airdrop: %v", err)
		}
	}

	var err error
	if p.mint, err = c.CreateMint(ctx, p.authority, 6); err != nil {
		t.Fatalf("CreateMint: %v", err)
	}
	if _, err := c.MintTo(ctx, rpc.MintToParams{Mint: p.mint, Owner: p.depositor, Authority: p.authority, Amount: 10_000}); err != nil {
		t.Fatalf("MintTo: %v", err)
	}
	if _, err := c.Initialize(ctx, atomicswap.InitializeParams{Signer: p.authority, Mint: p.mint, Fee: fee}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestClient_SwapLifecycle(t *testing.T) {
	ts, _ := newSwapd(t)
	c := New(ts.URL)
	ctx := context.Background()
	p := setupPool(t, ctx, c, 100)

	pool, err := c.GetPool(ctx, p.mint)
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.Fee != 100 || pool.Authority != p.authority {
		t.Errorf("unexpected pool: %+v", pool)
	}

	secret, err := atomicswap.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	swapID, err := atomicswap.NewSwapID()
	if err != nil {
		t.Fatalf("NewSwapID: %v", err)
	}

	dep, err := c.Deposit(ctx, atomicswap.DepositParams{
		Signer:     p.depositor,
		Mint:       p.mint,
		SwapID:     swapID,
		LockExpiry: genesis + 3600,
		SecretHash: atomicswap.HashSecret(secret),
		Buyer:      p.buyer,
		Amount:     1000,
	})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if dep.Receipt == nil || dep.Receipt.Signature == "" {
		t.Error("expected receipt signature")
	}

	_, err = c.Redeem(ctx, atomicswap.RedeemParams{Signer: p.buyer, Mint: p.mint, SwapID: swapID, Secret: atomicswap.Bytes32{1}})
	if !errors.Is(err, atomicswap.ErrWrongSecret) {
		t.Fatalf("expected ErrWrongSecret, got %v", err)
	}

	res, err := c.Redeem(ctx, atomicswap.RedeemParams{Signer: p.buyer, Mint: p.mint, SwapID: swapID, Secret: secret})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Payout != 900 || res.Fee != 100 {
		t.Errorf("expected payout 900 fee 100, got %d %d", res.Payout, res.Fee)
	}

	_, err = c.Refund(ctx, atomicswap.RefundParams{Signer: p.depositor, Mint: p.mint, SwapID: swapID})
	if !errors.Is(err, atomicswap.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}

	bal, err := c.GetTokenBalance(ctx, p.buyer, p.mint)
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if bal.Amount != 900 {
		t.Errorf("expected buyer balance 900, got %d", bal.Amount)
	}

	custody, err := c.GetCustody(ctx, p.mint)
	if err != nil {
		t.Fatalf("GetCustody: %v", err)
	}
	if custody.Amount != 0 || custody.Fees != 100 {
		t.Errorf("unexpected custody: %+v", custody)
	}

	wd, err := c.WithdrawFees(ctx, atomicswap.WithdrawFeesParams{Signer: p.authority, Mint: p.mint, Amount: 100})
	if err != nil {
		t.Fatalf("WithdrawFees: %v", err)
	}
	if wd.Amount != 100 {
		t.Errorf("expected withdrawn 100, got %d", wd.Amount)
	}

	history, err := c.GetSwapHistory(ctx, rpc.HistoryParams{Mint: p.mint, SwapID: swapID})
	if err != nil {
		t.Fatalf("GetSwapHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}

	report, err := c.VerifyPool(ctx, p.mint)
	if err != nil {
		t.Fatalf("VerifyPool: %v", err)
	}
	if !report.Match || report.LedgerFees != 0 || report.SettledSwaps != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestClient_RefundAfterExpiry(t *testing.T) {
	ts, _ := newSwapd(t)
	c := New(ts.URL)
	ctx := context.Background()
	p := setupPool(t, ctx, c, 0)

	swapID := atomicswap.Bytes32{42}
	_, err := c.Deposit(ctx, atomicswap.DepositParams{
		Signer: p.depositor, Mint: p.mint, SwapID: swapID,
		LockExpiry: genesis + 120, Buyer: p.buyer, Amount: 500,
	})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	swap, err := c.GetSwap(ctx, p.mint, swapID)
	if err != nil {
		t.Fatalf("GetSwap: %v", err)
	}
	if swap.State != atomicswap.StateOpen {
		t.Errorf("expected open swap, got %s", swap.State)
	}

	refund := atomicswap.RefundParams{Signer: p.depositor, Mint: p.mint, SwapID: swapID}
	if _, err := c.Refund(ctx, refund); !errors.Is(err, atomicswap.ErrTooEarly) {
		t.Fatalf("expected ErrTooEarly, got %v", err)
	}

	clock, err := c.AdvanceClock(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("AdvanceClock: %v", err)
	}
	if clock.UnixTimestamp != genesis+120 {
		t.Errorf("expected clock %d, got %d", genesis+120, clock.UnixTimestamp)
	}

	_, err = c.Redeem(ctx, atomicswap.RedeemParams{Signer: p.buyer, Mint: p.mint, SwapID: swapID})
	if !errors.Is(err, atomicswap.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	if _, err := c.Refund(ctx, refund); err != nil {
		t.Fatalf("Refund: %v", err)
	}
}

func TestClient_LedgerErrorMapping(t *testing.T) {
	ts, _ := newSwapd(t)
	c := New(ts.URL)

	_, err := c.CreateMint(context.Background(), solana.NewRandomKey(), 6)
	if !errors.Is(err, ledger.ErrInsufficientLamports) {
		t.Fatalf("expected ErrInsufficientLamports, got %v", err)
	}

	lamports, err := c.GetBalance(context.Background(), solana.NewRandomKey())
	if err != nil || lamports != 0 {
		t.Errorf("expected zero balance, got %d, %v", lamports, err)
	}
}

func TestClient_RetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req request
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"slot": 7, "unix_timestamp": genesis},
		})
	}))
	defer server.Close()

	c := New(server.URL, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
	clock, err := c.GetClock(context.Background())
	if err != nil {
		t.Fatalf("GetClock: %v", err)
	}
	if clock.Slot != 7 {
		t.Errorf("expected slot 7, got %d", clock.Slot)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestClient_NoRetryOnRPCError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": 6009, "message": "signer is not the swap buyer", "data": map[string]any{"name": "NotBuyer"}},
		})
	}))
	defer server.Close()

	c := New(server.URL, WithRetryDelay(time.Millisecond))
	_, err := c.Redeem(context.Background(), atomicswap.RedeemParams{})
	if !errors.Is(err, atomicswap.ErrNotBuyer) {
		t.Fatalf("expected ErrNotBuyer, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := c.GetClock(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("expected max retries error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(server.URL, WithRetryDelay(time.Second))
	if _, err := c.GetClock(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
