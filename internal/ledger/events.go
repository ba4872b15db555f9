package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates ledger notifications.
type EventKind string

const (
	// EventListed fires when a product is listed.
	EventListed EventKind = "listed"
	// EventSold fires when a product is purchased and settled.
	EventSold EventKind = "sold"
	// EventUpdated fires when a seller edits an available listing.
	EventUpdated EventKind = "updated"
	// EventRemoved fires when a seller withdraws a listing.
	EventRemoved EventKind = "removed"
)

// Event is the notification emitted in the same step as a state change.
// Fields not carried by a kind are left zero.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	ProductID uint64    `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	Price     uint64    `json:"price,omitempty"`
	Seller    Identity  `json:"seller,omitempty"`
	Buyer     Identity  `json:"buyer,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier receives ledger events. Notify is called while the ledger lock is
// held and must not block.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, evt Event) {
	f(ctx, evt)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func newEvent(kind EventKind, p Product, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProductID: p.ID,
		At:        at,
	}
}
