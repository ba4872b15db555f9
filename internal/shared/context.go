package shared

import (
	"context"

	"github.com/odyssey-erp/marketledger/internal/ledger"
)

type callerContextKey struct{}

// ContextWithCaller stores the verified caller identity in context.
func ContextWithCaller(ctx context.Context, caller ledger.Identity) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext extracts the caller identity from context.
func CallerFromContext(ctx context.Context) (ledger.Identity, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(ledger.Identity)
	return caller, ok && caller != ""
}
