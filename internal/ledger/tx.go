package ledger

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/solana"
)

// Tx is a copy-on-write view of the ledger for one transaction. Writes are
// buffered and only reach the ledger when the transaction commits.
type Tx struct {
	l       *Ledger
	program solana.PublicKey
	signers map[solana.PublicKey]struct{}
	now     int64
	slot    uint64

	writes map[solana.PublicKey]*Account // nil value marks a closed account
	order  []solana.PublicKey
	events []*domain.SwapEvent
}

func newTx(l *Ledger, program solana.PublicKey, signers []solana.PublicKey, now int64, slot uint64) *Tx {
	tx := &Tx{
		l:       l,
		program: program,
		signers: make(map[solana.PublicKey]struct{}, len(signers)),
		now:     now,
		slot:    slot,
		writes:  make(map[solana.PublicKey]*Account),
	}
	for _, s := range signers {
		tx.signers[s] = struct{}{}
	}
	return tx
}

// Now returns the clock value sampled when the transaction started.
func (tx *Tx) Now() int64 { return tx.now }

// Slot returns the slot the transaction will commit in.
func (tx *Tx) Slot() uint64 { return tx.slot }

// Program returns the currently executing program.
func (tx *Tx) Program() solana.PublicKey { return tx.program }

// IsSigner reports whether pk signed the transaction or was signed for by a
// program through SignWithSeeds.
func (tx *Tx) IsSigner(pk solana.PublicKey) bool {
	_, ok := tx.signers[pk]
	return ok
}

// RequireSigner returns ErrMissingSigner unless pk is a signer.
func (tx *Tx) RequireSigner(pk solana.PublicKey) error {
	if !tx.IsSigner(pk) {
		return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
	}
	return nil
}

// SignWithSeeds lets the executing program sign for one of its derived
// addresses. The seeds must include the bump.
func (tx *Tx) SignWithSeeds(seeds ...[]byte) (solana.PublicKey, error) {
	pda, err := solana.CreateProgramAddress(seeds, tx.program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("sign with seeds: %w", err)
	}
	tx.signers[pda] = struct{}{}
	return pda, nil
}

// Invoke runs fn as program, the way a cross-program invocation would.
// Signer privileges carry over.
func (tx *Tx) Invoke(program solana.PublicKey, fn func(*Tx) error) error {
	prev := tx.program
	tx.program = program
	defer func() { tx.program = prev }()
	return fn(tx)
}

// Get returns a copy of the live account at addr.
func (tx *Tx) Get(addr solana.PublicKey) (*Account, error) {
	acc := tx.lookup(addr)
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acc.clone(), nil
}

// Exists reports whether addr holds a live account.
func (tx *Tx) Exists(addr solana.PublicKey) bool {
	return tx.lookup(addr) != nil
}

// IsRetired reports whether addr held an account that has been closed.
func (tx *Tx) IsRetired(addr solana.PublicKey) bool {
	if acc, ok := tx.writes[addr]; ok {
		return acc == nil
	}
	_, retired := tx.l.retired[addr]
	return retired
}

// ProgramAccounts returns copies of every live account owned by owner,
// ordered by address.
func (tx *Tx) ProgramAccounts(owner solana.PublicKey) []*Account {
	var out []*Account
	for addr, acc := range tx.l.accounts {
		if _, written := tx.writes[addr]; !written && acc.Owner == owner {
			out = append(out, acc.clone())
		}
	}
	for _, acc := range tx.writes {
		if acc != nil && acc.Owner == owner {
			out = append(out, acc.clone())
		}
	}
	slices.SortFunc(out, func(a, b *Account) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return out
}

func (tx *Tx) lookup(addr solana.PublicKey) *Account {
	if acc, ok := tx.writes[addr]; ok {
		return acc
	}
	return tx.l.accounts[addr]
}

func (tx *Tx) put(acc *Account) {
	if _, seen := tx.writes[acc.Address]; !seen {
		tx.order = append(tx.order, acc.Address)
	}
	tx.writes[acc.Address] = acc
}

// CreateAccount allocates space bytes at addr, owned by owner, funded with
// rent-exempt lamports from payer. Both payer and addr must sign.
func (tx *Tx) CreateAccount(addr, owner, payer solana.PublicKey, space int) error {
	if tx.Exists(addr) || tx.IsRetired(addr) {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}
	if err := tx.RequireSigner(payer); err != nil {
		return err
	}
	if err := tx.RequireSigner(addr); err != nil {
		return err
	}

	rent := MinimumBalance(space)
	if err := tx.debitLamports(payer, rent); err != nil {
		return fmt.Errorf("pay rent for %s: %w", addr, err)
	}

	tx.put(&Account{
		Address:  addr,
		Owner:    owner,
		Lamports: rent,
		Data:     make([]byte, space),
	})
	return nil
}

// SetData overwrites the data of an account owned by the executing program.
// The length must match the allocated space.
func (tx *Tx) SetData(addr solana.PublicKey, data []byte) error {
	acc := tx.lookup(addr)
	if acc == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if acc.Owner != tx.program {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, addr, acc.Owner)
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrInvalidAccountData, addr, len(acc.Data), len(data))
	}

	next := acc.clone()
	copy(next.Data, data)
	tx.put(next)
	return nil
}

// Close deletes an account owned by the executing program and moves its
// lamports to refundTo. The address is retired for good.
func (tx *Tx) Close(addr, refundTo solana.PublicKey) error {
	acc := tx.lookup(addr)
	if acc == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if acc.Owner != tx.program {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, addr, acc.Owner)
	}
	if err := tx.creditLamports(refundTo, acc.Lamports); err != nil {
		return err
	}

	if _, seen := tx.writes[addr]; !seen {
		tx.order = append(tx.order, addr)
	}
	tx.writes[addr] = nil
	return nil
}

// Emit records an event to publish when the transaction commits.
func (tx *Tx) Emit(e *domain.SwapEvent) {
	tx.events = append(tx.events, e)
}

// creditLamports adds lamports, creating a system account if needed.
func (tx *Tx) creditLamports(addr solana.PublicKey, lamports uint64) error {
	acc := tx.lookup(addr)
	var next *Account
	if acc == nil {
		if tx.IsRetired(addr) {
			return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
		}
		next = &Account{Address: addr, Owner: solana.SystemProgramID}
	} else {
		next = acc.clone()
	}
	if next.Lamports > math.MaxUint64-lamports {
		return fmt.Errorf("%w: lamports of %s", ErrOverflow, addr)
	}
	next.Lamports += lamports
	tx.put(next)
	return nil
}

// debitLamports removes lamports from a system account.
func (tx *Tx) debitLamports(addr solana.PublicKey, lamports uint64) error {
	acc := tx.lookup(addr)
	if acc == nil {
		return fmt.Errorf("%w: %s holds no lamports", ErrInsufficientLamports, addr)
	}
	if acc.Owner != solana.SystemProgramID {
		return fmt.Errorf("%w: %s is not a system account", ErrIllegalOwner, addr)
	}
	if acc.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientLamports, addr, acc.Lamports, lamports)
	}
	next := acc.clone()
	next.Lamports -= lamports
	tx.put(next)
	return nil
}
