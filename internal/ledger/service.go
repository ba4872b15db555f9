package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Config groups optional collaborators.
type Config struct {
	Notifier Notifier
	Now      func() time.Time
}

// Ledger owns the product registry and both history indices. A single lock
// covers the whole ledger so id assignment, settlement and notifications
// share one total order.
type Ledger struct {
	mu          sync.RWMutex
	nextID      uint64
	revision    uint64
	products    map[uint64]Product
	sellerIndex map[Identity][]uint64
	buyerIndex  map[Identity][]uint64

	mover    PaymentMover
	notifier Notifier
	now      func() time.Time
}

// New builds an empty Ledger settling through mover.
func New(mover PaymentMover, cfg Config) *Ledger {
	l := &Ledger{
		products:    make(map[uint64]Product),
		sellerIndex: make(map[Identity][]uint64),
		buyerIndex:  make(map[Identity][]uint64),
		mover:       mover,
		notifier:    cfg.Notifier,
		now:         cfg.Now,
	}
	if l.notifier == nil {
		l.notifier = nopNotifier{}
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	return l
}

// List registers a new available product owned by caller.
func (l *Ledger) List(ctx context.Context, caller Identity, input ListInput) (uint64, error) {
	if input.Price == 0 {
		return 0, fmt.Errorf("%w: price must be greater than zero", ErrInvalidArgument)
	}
	if len(input.Name) == 0 || len(input.Description) == 0 {
		return 0, fmt.Errorf("%w: name and description are required", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	p := Product{
		ID:          l.nextID,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Seller:      caller,
		IsAvailable: true,
	}
	l.products[p.ID] = p
	l.sellerIndex[caller] = append(l.sellerIndex[caller], p.ID)
	l.revision++

	evt := newEvent(EventListed, p, l.now())
	evt.Name = p.Name
	evt.Price = p.Price
	evt.Seller = p.Seller
	l.notifier.Notify(ctx, evt)
	return p.ID, nil
}

// Buy settles the full price of productID from caller to the seller.
func (l *Ledger) Buy(ctx context.Context, caller Identity, productID, amountPaid uint64) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.lookup(productID)
	if !ok {
		return Receipt{}, ErrNotFound
	}
	if !p.IsAvailable {
		return Receipt{}, ErrUnavailable
	}
	if caller == p.Seller {
		return Receipt{}, fmt.Errorf("%w: sellers cannot buy their own product", ErrForbidden)
	}
	if amountPaid < p.Price {
		return Receipt{}, ErrInsufficientPayment
	}
	if l.mover == nil {
		return Receipt{}, fmt.Errorf("%w: payment mover not configured", ErrSettlementFailed)
	}
	// Move is the last step that can fail; nothing has been mutated yet.
	if err := l.mover.Move(ctx, caller, p.Seller, p.Price); err != nil {
		return Receipt{}, errors.Join(ErrSettlementFailed, err)
	}

	p.IsAvailable = false
	l.products[p.ID] = p
	l.buyerIndex[caller] = append(l.buyerIndex[caller], p.ID)
	l.revision++

	evt := newEvent(EventSold, p, l.now())
	evt.Price = p.Price
	evt.Seller = p.Seller
	evt.Buyer = caller
	l.notifier.Notify(ctx, evt)
	return Receipt{ProductID: p.ID, Buyer: caller, Seller: p.Seller, Price: p.Price}, nil
}

// Update overwrites name, description and price of an available listing.
// Unlike List, empty name and description are accepted here.
func (l *Ledger) Update(ctx context.Context, caller Identity, productID uint64, input UpdateInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.lookup(productID)
	if !ok {
		return ErrNotFound
	}
	if caller != p.Seller {
		return ErrForbidden
	}
	if !p.IsAvailable {
		return ErrUnavailable
	}
	if input.Price == 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidArgument)
	}

	p.Name = input.Name
	p.Description = input.Description
	p.Price = input.Price
	l.products[p.ID] = p
	l.revision++

	evt := newEvent(EventUpdated, p, l.now())
	evt.Name = p.Name
	evt.Price = p.Price
	l.notifier.Notify(ctx, evt)
	return nil
}

// Remove withdraws an available listing. The record and index entries stay.
func (l *Ledger) Remove(ctx context.Context, caller Identity, productID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.lookup(productID)
	if !ok {
		return ErrNotFound
	}
	if caller != p.Seller {
		return ErrForbidden
	}
	if !p.IsAvailable {
		return ErrConflict
	}

	p.IsAvailable = false
	l.products[p.ID] = p
	l.revision++

	l.notifier.Notify(ctx, newEvent(EventRemoved, p, l.now()))
	return nil
}

// Product returns the full record for id.
func (l *Ledger) Product(ctx context.Context, id uint64) (Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.lookup(id)
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// SellerListings returns the ids caller listed, in creation order.
func (l *Ledger) SellerListings(ctx context.Context, caller Identity) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneIDs(l.sellerIndex[caller])
}

// BuyerPurchases returns the ids caller bought, in purchase order.
func (l *Ledger) BuyerPurchases(ctx context.Context, caller Identity) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneIDs(l.buyerIndex[caller])
}

// Revision counts applied mutations. It is not persisted.
func (l *Ledger) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

func (l *Ledger) lookup(id uint64) (Product, bool) {
	if id == 0 {
		return Product{}, false
	}
	p, ok := l.products[id]
	return p, ok
}

func cloneIDs(ids []uint64) []uint64 {
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}
