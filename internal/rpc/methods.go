package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/verification"
)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		MethodInitialize:      s.initialize,
		MethodDeposit:         s.deposit,
		MethodRedeem:          s.redeem,
		MethodRefund:          s.refund,
		MethodWithdrawFees:    s.withdrawFees,
		MethodGetPool:         s.getPool,
		MethodGetSwap:         s.getSwap,
		MethodGetBalance:      s.getBalance,
		MethodGetTokenBalance: s.getTokenBalance,
		MethodGetCustody:      s.getCustody,
		MethodGetClock:        s.getClock,
		MethodAdvanceClock:    s.advanceClock,
		MethodAirdrop:         s.airdrop,
		MethodCreateMint:      s.createMint,
		MethodMintTo:          s.mintTo,
		MethodCreateATA:       s.createATA,
		MethodGetSwapHistory:  s.getSwapHistory,
		MethodVerifyPool:      s.verifyPool,
	}
}

func (s *Server) initialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var p atomicswap.InitializeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.Initialize(ctx, p)
}

func (s *Server) deposit(ctx context.Context, raw json.RawMessage) (any, error) {
	var p atomicswap.DepositParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.Deposit(ctx, p)
}

func (s *Server) redeem(ctx context.Context, raw json.RawMessage) (any, error) {
	var p atomicswap.RedeemParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.Redeem(ctx, p)
}

func (s *Server) refund(ctx context.Context, raw json.RawMessage) (any, error) {
	var p atomicswap.RefundParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.Refund(ctx, p)
}

func (s *Server) withdrawFees(ctx context.Context, raw json.RawMessage) (any, error) {
	var p atomicswap.WithdrawFeesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.WithdrawFees(ctx, p)
}

func (s *Server) getPool(_ context.Context, raw json.RawMessage) (any, error) {
	var p MintParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.GetPool(p.Mint)
}

func (s *Server) getSwap(_ context.Context, raw json.RawMessage) (any, error) {
	var p SwapParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.program.GetSwap(p.Mint, p.SwapID)
}

func (s *Server) getBalance(_ context.Context, raw json.RawMessage) (any, error) {
	var p AddressParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	acc, err := s.ledger.Account(p.Address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return &BalanceResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Lamports: acc.Lamports}, nil
}

func (s *Server) getTokenBalance(_ context.Context, raw json.RawMessage) (any, error) {
	var p TokenBalanceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(p.Owner, p.Mint)
	if err != nil {
		return nil, invalidParams(err)
	}
	res := &TokenBalanceResult{Address: ata}
	err = s.ledger.View(func(tx *ledger.Tx) error {
		if !tx.Exists(ata) {
			return nil
		}
		res.Amount, err = ledger.TokenBalance(tx, ata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) getCustody(_ context.Context, raw json.RawMessage) (any, error) {
	var p MintParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	pool, err := s.program.GetPool(p.Mint)
	if err != nil {
		return nil, err
	}
	res := &CustodyResult{Custody: pool.Custody, FeeVault: pool.FeeVault}
	if res.Amount, err = s.program.CustodyBalance(p.Mint); err != nil {
		return nil, err
	}
	if res.Fees, err = s.program.FeeVaultBalance(p.Mint); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) getClock(context.Context, json.RawMessage) (any, error) {
	return &ClockResult{Slot: s.ledger.Slot(), UnixTimestamp: s.ledger.Now()}, nil
}

func (s *Server) advanceClock(_ context.Context, raw json.RawMessage) (any, error) {
	if s.clock == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "clock is not manual", Data: &ErrorData{Name: "Unavailable"}}
	}
	var p AdvanceClockParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Seconds <= 0 {
		return nil, invalidParams(errors.New("seconds must be positive"))
	}
	s.clock.Advance(time.Duration(p.Seconds) * time.Second)
	return &ClockResult{Slot: s.ledger.Slot(), UnixTimestamp: s.ledger.Now()}, nil
}

func (s *Server) airdrop(ctx context.Context, raw json.RawMessage) (any, error) {
	var p AirdropParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Lamports == 0 {
		return nil, invalidParams(errors.New("lamports must be positive"))
	}
	return s.ledger.Airdrop(ctx, p.Address, p.Lamports)
}

func (s *Server) createMint(ctx context.Context, raw json.RawMessage) (any, error) {
	var p CreateMintParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	mint := solana.NewRandomKey()
	receipt, err := s.ledger.Execute(ctx, ledger.TxOptions{
		Instruction: "createMint",
		Program:     solana.TokenProgramID,
		Signers:     []solana.PublicKey{p.Authority, mint},
		Payload:     mint[:],
	}, func(tx *ledger.Tx) error {
		return ledger.CreateMint(tx, mint, p.Authority, p.Authority, p.Decimals)
	})
	if err != nil {
		return nil, err
	}
	return &CreateMintResult{Mint: mint, Signature: receipt.Signature}, nil
}

func (s *Server) mintTo(ctx context.Context, raw json.RawMessage) (any, error) {
	var p MintToParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, invalidParams(errors.New("amount must be positive"))
	}
	var ata solana.PublicKey
	receipt, err := s.ledger.Execute(ctx, ledger.TxOptions{
		Instruction: "mintTo",
		Program:     solana.TokenProgramID,
		Signers:     []solana.PublicKey{p.Authority},
		Payload:     []byte(fmt.Sprintf("%s:%s:%d", p.Mint, p.Owner, p.Amount)),
	}, func(tx *ledger.Tx) error {
		var err error
		if ata, err = ledger.CreateAssociatedTokenAccount(tx, p.Owner, p.Mint, p.Authority); err != nil {
			return err
		}
		return ledger.MintTo(tx, p.Mint, ata, p.Authority, p.Amount)
	})
	if err != nil {
		return nil, err
	}
	return &AccountResult{Address: ata, Signature: receipt.Signature}, nil
}

func (s *Server) createATA(ctx context.Context, raw json.RawMessage) (any, error) {
	var p CreateATAParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var ata solana.PublicKey
	receipt, err := s.ledger.Execute(ctx, ledger.TxOptions{
		Instruction: "createAssociatedTokenAccount",
		Program:     solana.AssociatedTokenProgramID,
		Signers:     []solana.PublicKey{p.Payer},
		Payload:     append(p.Owner.Bytes(), p.Mint[:]...),
	}, func(tx *ledger.Tx) error {
		var err error
		ata, err = ledger.CreateAssociatedTokenAccount(tx, p.Owner, p.Mint, p.Payer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &AccountResult{Address: ata, Signature: receipt.Signature}, nil
}

func (s *Server) getSwapHistory(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.events == nil {
		return nil, errHistoryDisabled
	}
	var p HistoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	pool, _, err := atomicswap.PoolAddress(p.Mint)
	if err != nil {
		return nil, invalidParams(err)
	}

	var events []*domain.SwapEvent
	switch {
	case !p.SwapID.IsZero():
		events, err = s.events.GetBySwapID(ctx, pool.String(), p.SwapID.String())
	case p.To > 0:
		events, err = s.events.GetByTimeRange(ctx, pool.String(), p.From, p.To)
	default:
		events, err = s.events.GetByPool(ctx, pool.String())
	}
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*domain.SwapEvent{}
	}
	return events, nil
}

// verifyPool reconciles the stored history of a pool with ledger balances.
func (s *Server) verifyPool(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.events == nil {
		return nil, errHistoryDisabled
	}
	var p MintParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return verification.NewVerifier(s.events, s.program).VerifyPool(ctx, p.Mint)
}

var errHistoryDisabled = &Error{Code: CodeUnavailable, Message: "swap history is not enabled", Data: &ErrorData{Name: "Unavailable"}}
