package ledger

import (
	"fmt"
	"sort"
)

// SnapshotFormat is the current snapshot layout version.
const SnapshotFormat = 1

// Snapshot is the serialisable form of the three ledger tables and the id
// counter.
type Snapshot struct {
	Format      int                   `json:"format"`
	NextID      uint64                `json:"next_id"`
	Products    []Product             `json:"products"`
	SellerIndex map[Identity][]uint64 `json:"seller_index"`
	BuyerIndex  map[Identity][]uint64 `json:"buyer_index"`
}

// Snapshot captures the ledger state under the read lock.
func (l *Ledger) Snapshot() Snapshot {
	return l.SnapshotWith(nil)
}

// SnapshotWith captures the ledger state and runs capture while mutations
// are excluded, so state settled by Buy can be read consistently with it.
func (l *Ledger) SnapshotWith(capture func()) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if capture != nil {
		capture()
	}
	snap := Snapshot{
		Format:      SnapshotFormat,
		NextID:      l.nextID,
		Products:    make([]Product, 0, len(l.products)),
		SellerIndex: make(map[Identity][]uint64, len(l.sellerIndex)),
		BuyerIndex:  make(map[Identity][]uint64, len(l.buyerIndex)),
	}
	for _, p := range l.products {
		snap.Products = append(snap.Products, p)
	}
	sort.Slice(snap.Products, func(i, j int) bool { return snap.Products[i].ID < snap.Products[j].ID })
	for who, ids := range l.sellerIndex {
		snap.SellerIndex[who] = cloneIDs(ids)
	}
	for who, ids := range l.buyerIndex {
		snap.BuyerIndex[who] = cloneIDs(ids)
	}
	return snap
}

// Restore rebuilds a Ledger from snap after checking its invariants.
func Restore(snap Snapshot, mover PaymentMover, cfg Config) (*Ledger, error) {
	if snap.Format != SnapshotFormat {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrInvalidSnapshot, snap.Format)
	}
	// Records are never deleted, so every id the counter handed out must be
	// present exactly once.
	if uint64(len(snap.Products)) != snap.NextID {
		return nil, fmt.Errorf("%w: %d products for counter %d", ErrInvalidSnapshot, len(snap.Products), snap.NextID)
	}
	l := New(mover, cfg)
	l.nextID = snap.NextID

	for _, p := range snap.Products {
		if p.ID == 0 || p.ID > snap.NextID {
			return nil, fmt.Errorf("%w: product id %d outside 1..%d", ErrInvalidSnapshot, p.ID, snap.NextID)
		}
		if _, dup := l.products[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %d", ErrInvalidSnapshot, p.ID)
		}
		l.products[p.ID] = p
	}

	listed := make(map[uint64]bool, len(l.products))
	for seller, ids := range snap.SellerIndex {
		for i, id := range ids {
			if i > 0 && id <= ids[i-1] {
				return nil, fmt.Errorf("%w: seller %q listings out of creation order", ErrInvalidSnapshot, seller)
			}
			p, ok := l.products[id]
			if !ok {
				return nil, fmt.Errorf("%w: seller index references missing product %d", ErrInvalidSnapshot, id)
			}
			if p.Seller != seller {
				return nil, fmt.Errorf("%w: product %d indexed under %q but sold by %q", ErrInvalidSnapshot, id, seller, p.Seller)
			}
			if listed[id] {
				return nil, fmt.Errorf("%w: product %d indexed twice", ErrInvalidSnapshot, id)
			}
			listed[id] = true
		}
		l.sellerIndex[seller] = cloneIDs(ids)
	}
	if len(listed) != len(l.products) {
		return nil, fmt.Errorf("%w: %d products missing from seller index", ErrInvalidSnapshot, len(l.products)-len(listed))
	}

	bought := make(map[uint64]bool)
	for buyer, ids := range snap.BuyerIndex {
		for _, id := range ids {
			p, ok := l.products[id]
			if !ok {
				return nil, fmt.Errorf("%w: buyer index references missing product %d", ErrInvalidSnapshot, id)
			}
			if p.IsAvailable {
				return nil, fmt.Errorf("%w: purchased product %d still available", ErrInvalidSnapshot, id)
			}
			if p.Seller == buyer {
				return nil, fmt.Errorf("%w: product %d bought by its seller", ErrInvalidSnapshot, id)
			}
			if bought[id] {
				return nil, fmt.Errorf("%w: product %d purchased twice", ErrInvalidSnapshot, id)
			}
			bought[id] = true
		}
		l.buyerIndex[buyer] = cloneIDs(ids)
	}
	return l, nil
}
