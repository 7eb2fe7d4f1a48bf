package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/idhash"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/solana"
	"solana-atomic-swap/internal/storage"
)

// EventSink receives the events of committed transactions, in commit order.
type EventSink interface {
	Publish(ctx context.Context, events []*domain.SwapEvent) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []*domain.SwapEvent) error

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, events []*domain.SwapEvent) error {
	return f(ctx, events)
}

// TxOptions describes a transaction submitted to Execute.
type TxOptions struct {
	Instruction string             // instruction name, for ids and metrics
	Program     solana.PublicKey   // program executing the callback
	Signers     []solana.PublicKey // accounts that signed the transaction
	Payload     []byte             // serialized instruction arguments
}

// Receipt describes a committed transaction.
type Receipt struct {
	Signature string              `json:"signature"`
	Slot      uint64              `json:"slot"`
	Timestamp int64               `json:"timestamp"`
	Events    []*domain.SwapEvent `json:"events,omitempty"`
}

// DefaultPublishTimeout bounds how long sinks may take to receive the events
// of one committed transaction.
const DefaultPublishTimeout = 10 * time.Second

// Ledger holds all accounts and serializes transactions over them.
type Ledger struct {
	mu       sync.Mutex
	clock    Clock
	accounts map[solana.PublicKey]*Account
	retired  map[solana.PublicKey]struct{}
	slot     uint64

	store          storage.AccountStore
	sinks          []EventSink
	publishTimeout time.Duration
	logger         *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time oracle. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithAccountStore persists every committed change set before it is applied.
func WithAccountStore(s storage.AccountStore) Option {
	return func(l *Ledger) {
		l.store = s
	}
}

// WithEventSink adds a receiver for committed events.
func WithEventSink(s EventSink) Option {
	return func(l *Ledger) {
		l.sinks = append(l.sinks, s)
	}
}

// WithPublishTimeout sets the deadline for delivering one transaction's
// events to the sinks. Defaults to DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.publishTimeout = d
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		clock:          SystemClock{},
		accounts:       make(map[solana.PublicKey]*Account),
		retired:        make(map[solana.PublicKey]struct{}),
		publishTimeout: DefaultPublishTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces in-memory state with the contents of the account store.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	slot, err := l.store.LastSlot(ctx)
	if err != nil {
		return fmt.Errorf("load last slot: %w", err)
	}

	accounts := make(map[solana.PublicKey]*Account, len(records))
	retired := make(map[solana.PublicKey]struct{})
	for _, rec := range records {
		addr, err := solana.ParsePublicKey(rec.Address)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if rec.Closed {
			retired[addr] = struct{}{}
			continue
		}
		owner, err := solana.ParsePublicKey(rec.Owner)
		if err != nil {
			return fmt.Errorf("load owner of %s: %w", rec.Address, err)
		}
		accounts[addr] = &Account{
			Address:  addr,
			Owner:    owner,
			Lamports: rec.Lamports,
			Data:     append([]byte(nil), rec.Data...),
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = accounts
	l.retired = retired
	l.slot = slot

	l.logger.Info("ledger loaded",
		zap.Int("accounts", len(accounts)),
		zap.Int("retired", len(retired)),
		zap.Uint64("slot", slot),
	)
	return nil
}

// Execute runs fn as one atomic transaction. The callback sees a private
// copy-on-write view; its writes are persisted and applied only when it
// returns nil. Transactions are totally ordered by the ledger lock.
func (l *Ledger) Execute(ctx context.Context, opts TxOptions, fn func(*Tx) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, err := l.execute(ctx, opts, fn)

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordTransaction(opts.Instruction, status, time.Since(start).Seconds())
	return receipt, err
}

func (l *Ledger) execute(ctx context.Context, opts TxOptions, fn func(*Tx) error) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.slot + 1
	tx := newTx(l, opts.Program, opts.Signers, l.clock.Now(), slot)
	if err := fn(tx); err != nil {
		return nil, err
	}

	signer := ""
	if len(opts.Signers) > 0 {
		signer = opts.Signers[0].String()
	}
	receipt := &Receipt{
		Signature: idhash.ComputeTxSignature(slot, opts.Instruction, signer, opts.Payload),
		Slot:      slot,
		Timestamp: tx.now,
		Events:    tx.events,
	}
	for i, e := range receipt.Events {
		e.TxSignature = receipt.Signature
		e.EventIndex = i
		e.EventID = idhash.ComputeEventID(receipt.Signature, i)
		e.Slot = slot
		e.Timestamp = tx.now
	}

	if l.store != nil {
		if err := l.store.Apply(ctx, tx.changeSet()); err != nil {
			return nil, fmt.Errorf("persist slot %d: %w", slot, err)
		}
	}

	for _, addr := range tx.order {
		acc := tx.writes[addr]
		if acc == nil {
			delete(l.accounts, addr)
			l.retired[addr] = struct{}{}
			continue
		}
		l.accounts[addr] = acc
	}
	l.slot = slot
	observability.UpdateSlot(slot)

	l.logger.Debug("transaction committed",
		zap.String("instruction", opts.Instruction),
		zap.String("signature", receipt.Signature),
		zap.Uint64("slot", slot),
		zap.Int("accounts_written", len(tx.order)),
		zap.Int("events", len(receipt.Events)),
	)

	if len(receipt.Events) > 0 {
		l.publish(ctx, receipt)
	}

	return receipt, nil
}

// publish hands committed events to every sink. The commit already stands,
// so delivery outlives cancellation of the request that caused it.
func (l *Ledger) publish(ctx context.Context, receipt *Receipt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()

	for _, sink := range l.sinks {
		if err := sink.Publish(ctx, receipt.Events); err != nil {
			l.logger.Warn("publish events failed",
				zap.String("signature", receipt.Signature),
				zap.Error(err),
			)
		}
	}
}

// View runs fn against the current state. Writes made by fn are discarded.
func (l *Ledger) View(fn func(*Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(newTx(l, solana.SystemProgramID, nil, l.clock.Now(), l.slot))
}

// Account returns a copy of the live account at addr.
func (l *Ledger) Account(addr solana.PublicKey) (*Account, error) {
	var acc *Account
	err := l.View(func(tx *Tx) error {
		var err error
		acc, err = tx.Get(addr)
		return err
	})
	return acc, err
}

// Slot returns the last committed slot.
func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

// Now returns the ledger clock.
func (l *Ledger) Now() int64 {
	return l.clock.Now()
}

// Airdrop credits lamports to addr, creating a system account if needed.
func (l *Ledger) Airdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (*Receipt, error) {
	return l.Execute(ctx, TxOptions{
		Instruction: "airdrop",
		Program:     solana.SystemProgramID,
		Signers:     []solana.PublicKey{addr},
		Payload:     addr[:],
	}, func(tx *Tx) error {
		return tx.creditLamports(addr, lamports)
	})
}

// changeSet converts buffered writes into storage records, ordered by address.
func (tx *Tx) changeSet() *storage.ChangeSet {
	cs := &storage.ChangeSet{Slot: tx.slot}
	for _, addr := range tx.order {
		acc := tx.writes[addr]
		rec := &domain.AccountRecord{Address: addr.String(), Slot: tx.slot}
		if acc == nil {
			rec.Closed = true
		} else {
			rec.Owner = acc.Owner.String()
			rec.Lamports = acc.Lamports
			rec.Data = append([]byte(nil), acc.Data...)
		}
		cs.Accounts = append(cs.Accounts, rec)
	}
	sort.Slice(cs.Accounts, func(i, j int) bool {
		return cs.Accounts[i].Address < cs.Accounts[j].Address
	})
	return cs
}
