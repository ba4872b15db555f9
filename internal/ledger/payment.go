package ledger

import "context"

// PaymentMover moves value between caller balances. Buy calls Move exactly
// once per settlement, inside the ledger's critical section.
type PaymentMover interface {
	Move(ctx context.Context, from, to Identity, amount uint64) error
}

// PaymentMoverFunc adapts a function to PaymentMover.
type PaymentMoverFunc func(ctx context.Context, from, to Identity, amount uint64) error

// Move implements PaymentMover.
func (f PaymentMoverFunc) Move(ctx context.Context, from, to Identity, amount uint64) error {
	return f(ctx, from, to, amount)
}
