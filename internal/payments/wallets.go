// Package payments holds the balance book that settles ledger purchases.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/odyssey-erp/marketledger/internal/ledger"
)

var (
	// ErrInsufficientFunds indicates the payer balance cannot cover the move.
	ErrInsufficientFunds = errors.New("payments: insufficient funds")
	// ErrInvalidAmount indicates a zero amount.
	ErrInvalidAmount = errors.New("payments: amount must be greater than zero")
	// ErrBalanceOverflow indicates the credit would overflow the balance.
	ErrBalanceOverflow = errors.New("payments: balance overflow")
)

// Wallets is an in-memory balance book implementing ledger.PaymentMover.
type Wallets struct {
	mu       sync.Mutex
	balances map[ledger.Identity]uint64
	revision uint64
}

// NewWallets constructs an empty balance book.
func NewWallets() *Wallets {
	return &Wallets{balances: make(map[ledger.Identity]uint64)}
}

// RestoreWallets rebuilds a balance book from a snapshot.
func RestoreWallets(balances map[ledger.Identity]uint64) *Wallets {
	w := NewWallets()
	for who, amount := range balances {
		if amount > 0 {
			w.balances[who] = amount
		}
	}
	return w
}

// Deposit credits amount to who and returns the new balance.
func (w *Wallets) Deposit(ctx context.Context, who ledger.Identity, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.balances[who]
	if current > math.MaxUint64-amount {
		return current, ErrBalanceOverflow
	}
	w.balances[who] = current + amount
	w.revision++
	return w.balances[who], nil
}

// Balance returns the current balance of who.
func (w *Wallets) Balance(ctx context.Context, who ledger.Identity) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[who]
}

// Move transfers amount from one balance to another, all or nothing.
func (w *Wallets) Move(ctx context.Context, from, to ledger.Identity, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	available := w.balances[from]
	if available < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, available, amount)
	}
	if from == to {
		return nil
	}
	if w.balances[to] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	w.balances[from] = available - amount
	w.balances[to] += amount
	w.revision++
	return nil
}

// Snapshot copies all non-zero balances.
func (w *Wallets) Snapshot() map[ledger.Identity]uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[ledger.Identity]uint64, len(w.balances))
	for who, amount := range w.balances {
		if amount > 0 {
			out[who] = amount
		}
	}
	return out
}

// Revision counts applied balance changes.
func (w *Wallets) Revision() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.revision
}
