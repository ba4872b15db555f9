// Package store persists ledger and wallet snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/payments"
)

// StateName is the key the marketplace state document is saved under.
const StateName = "marketledger"

// ErrNoState indicates nothing has been saved under the requested name.
var ErrNoState = errors.New("store: no saved state")

// Store saves and loads opaque state documents by name.
type Store interface {
	Save(ctx context.Context, name string, payload []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// Document is the persisted form of the ledger tables and wallet balances.
// Both are captured under the ledger lock so every settled sale is reflected
// on both sides.
type Document struct {
	Ledger  ledger.Snapshot            `json:"ledger"`
	Wallets map[ledger.Identity]uint64 `json:"wallets"`
	SavedAt time.Time                  `json:"saved_at"`
}

// Capture builds a Document from live state.
func Capture(l *ledger.Ledger, w *payments.Wallets, at time.Time) Document {
	var balances map[ledger.Identity]uint64
	snap := l.SnapshotWith(func() {
		balances = w.Snapshot()
	})
	return Document{Ledger: snap, Wallets: balances, SavedAt: at}
}

// LoadState restores the ledger and wallets saved in st. When nothing has
// been saved yet it returns empty state.
func LoadState(ctx context.Context, st Store, cfg ledger.Config) (*ledger.Ledger, *payments.Wallets, error) {
	if st == nil {
		w := payments.NewWallets()
		return ledger.New(w, cfg), w, nil
	}
	raw, err := st.Load(ctx, StateName)
	if errors.Is(err, ErrNoState) {
		w := payments.NewWallets()
		return ledger.New(w, cfg), w, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: load state: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("store: decode state: %w", err)
	}
	w := payments.RestoreWallets(doc.Wallets)
	l, err := ledger.Restore(doc.Ledger, w, cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, w, nil
}
