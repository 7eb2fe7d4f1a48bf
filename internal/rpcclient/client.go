// Package rpcclient is a Go client for the swapd JSON-RPC and websocket API.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/rpc"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/verification"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls swapd over HTTP JSON-RPC 2.0.
//
// Transport failures, 429 and 5xx responses are retried with exponential
// backoff. Program and ledger errors are returned at once, mapped to their
// sentinels so errors.Is works against atomicswap and ledger errors.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay caps the retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// New creates a client for the JSON-RPC endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpc.Error      `json:"error,omitempty"`
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(request{
		JSONRPC: rpc.Version,
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		var rpcResp response
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}

		// RPC errors are not retried
		if rpcResp.Error != nil {
			return rpc.FromError(rpcResp.Error)
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Initialize creates the pool of a mint.
func (c *Client) Initialize(ctx context.Context, params atomicswap.InitializeParams) (*atomicswap.InitializeResult, error) {
	var res atomicswap.InitializeResult
	if err := c.call(ctx, rpc.MethodInitialize, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Deposit funds a new swap.
func (c *Client) Deposit(ctx context.Context, params atomicswap.DepositParams) (*atomicswap.DepositResult, error) {
	var res atomicswap.DepositResult
	if err := c.call(ctx, rpc.MethodDeposit, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Redeem releases a swap to its buyer.
func (c *Client) Redeem(ctx context.Context, params atomicswap.RedeemParams) (*atomicswap.SettleResult, error) {
	var res atomicswap.SettleResult
	if err := c.call(ctx, rpc.MethodRedeem, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refund returns an expired swap to its depositor.
func (c *Client) Refund(ctx context.Context, params atomicswap.RefundParams) (*atomicswap.SettleResult, error) {
	var res atomicswap.SettleResult
	if err := c.call(ctx, rpc.MethodRefund, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// WithdrawFees moves accrued fees to the pool authority.
func (c *Client) WithdrawFees(ctx context.Context, params atomicswap.WithdrawFeesParams) (*atomicswap.WithdrawFeesResult, error) {
	var res atomicswap.WithdrawFeesResult
	if err := c.call(ctx, rpc.MethodWithdrawFees, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPool retrieves the pool of mint.
func (c *Client) GetPool(ctx context.Context, mint solana.PublicKey) (*atomicswap.Pool, error) {
	var res atomicswap.Pool
	if err := c.call(ctx, rpc.MethodGetPool, rpc.MintParams{Mint: mint}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSwap retrieves an open swap.
func (c *Client) GetSwap(ctx context.Context, mint solana.PublicKey, swapID atomicswap.Bytes32) (*atomicswap.Swap, error) {
	var res atomicswap.Swap
	if err := c.call(ctx, rpc.MethodGetSwap, rpc.SwapParams{Mint: mint, SwapID: swapID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBalance retrieves the lamports of an account. Missing accounts hold zero.
func (c *Client) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var res rpc.BalanceResult
	if err := c.call(ctx, rpc.MethodGetBalance, rpc.AddressParams{Address: address}, &res); err != nil {
		return 0, err
	}
	return res.Lamports, nil
}

// GetTokenBalance retrieves the associated token account balance of owner.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (*rpc.TokenBalanceResult, error) {
	var res rpc.TokenBalanceResult
	if err := c.call(ctx, rpc.MethodGetTokenBalance, rpc.TokenBalanceParams{Owner: owner, Mint: mint}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetCustody retrieves the custody and fee vault balances of a pool.
func (c *Client) GetCustody(ctx context.Context, mint solana.PublicKey) (*rpc.CustodyResult, error) {
	var res rpc.CustodyResult
	if err := c.call(ctx, rpc.MethodGetCustody, rpc.MintParams{Mint: mint}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetClock retrieves the ledger slot and time.
func (c *Client) GetClock(ctx context.Context) (*rpc.ClockResult, error) {
	var res rpc.ClockResult
	if err := c.call(ctx, rpc.MethodGetClock, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AdvanceClock moves a manual server clock forward.
func (c *Client) AdvanceClock(ctx context.Context, d time.Duration) (*rpc.ClockResult, error) {
	var res rpc.ClockResult
	if err := c.call(ctx, rpc.MethodAdvanceClock, rpc.AdvanceClockParams{Seconds: int64(d / time.Second)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Airdrop credits lamports to address.
func (c *Client) Airdrop(ctx context.Context, address solana.PublicKey, lamports uint64) (*ledger.Receipt, error) {
	var res ledger.Receipt
	if err := c.call(ctx, rpc.MethodAirdrop, rpc.AirdropParams{Address: address, Lamports: lamports}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateMint creates a token mint controlled by authority.
func (c *Client) CreateMint(ctx context.Context, authority solana.PublicKey, decimals uint8) (solana.PublicKey, error) {
	var res rpc.CreateMintResult
	if err := c.call(ctx, rpc.MethodCreateMint, rpc.CreateMintParams{Authority: authority, Decimals: decimals}, &res); err != nil {
		return solana.PublicKey{}, err
	}
	return res.Mint, nil
}

// MintTo mints amount into the associated token account of owner.
func (c *Client) MintTo(ctx context.Context, params rpc.MintToParams) (solana.PublicKey, error) {
	var res rpc.AccountResult
	if err := c.call(ctx, rpc.MethodMintTo, params, &res); err != nil {
		return solana.PublicKey{}, err
	}
	return res.Address, nil
}

// CreateAssociatedTokenAccount creates the associated token account of owner.
func (c *Client) CreateAssociatedTokenAccount(ctx context.Context, owner, mint, payer solana.PublicKey) (solana.PublicKey, error) {
	var res rpc.AccountResult
	if err := c.call(ctx, rpc.MethodCreateATA, rpc.CreateATAParams{Owner: owner, Mint: mint, Payer: payer}, &res); err != nil {
		return solana.PublicKey{}, err
	}
	return res.Address, nil
}

// GetSwapHistory retrieves recorded swap events of a pool.
func (c *Client) GetSwapHistory(ctx context.Context, params rpc.HistoryParams) ([]*domain.SwapEvent, error) {
	var res []*domain.SwapEvent
	if err := c.call(ctx, rpc.MethodGetSwapHistory, params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// VerifyPool asks the node to reconcile the history of mint's pool with its
// balances.
func (c *Client) VerifyPool(ctx context.Context, mint solana.PublicKey) (*verification.Report, error) {
	var res verification.Report
	if err := c.call(ctx, rpc.MethodVerifyPool, rpc.MintParams{Mint: mint}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
