package ledger

import "errors"

// Identity is the verified caller token supplied by the environment.
type Identity string

// Product is a listing record. Records are never deleted; a removed or sold
// product stays retrievable with IsAvailable=false.
type Product struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       uint64   `json:"price"`
	Seller      Identity `json:"seller"`
	IsAvailable bool     `json:"is_available"`
}

// Receipt summarises a completed settlement.
type Receipt struct {
	ProductID uint64   `json:"product_id"`
	Buyer     Identity `json:"buyer"`
	Seller    Identity `json:"seller"`
	Price     uint64   `json:"price"`
}

// ListInput carries the fields for a new listing.
type ListInput struct {
	Name        string
	Description string
	Price       uint64
}

// UpdateInput carries replacement fields for an available listing.
type UpdateInput struct {
	Name        string
	Description string
	Price       uint64
}

var (
	// ErrInvalidArgument indicates malformed input such as a zero price.
	ErrInvalidArgument = errors.New("ledger: invalid argument")
	// ErrNotFound indicates the product id has no record.
	ErrNotFound = errors.New("ledger: product not found")
	// ErrForbidden indicates the caller may not perform the mutation.
	ErrForbidden = errors.New("ledger: forbidden")
	// ErrUnavailable indicates the product is no longer available.
	ErrUnavailable = errors.New("ledger: product unavailable")
	// ErrInsufficientPayment indicates the tendered amount is below price.
	ErrInsufficientPayment = errors.New("ledger: insufficient payment")
	// ErrConflict indicates the product already sits in the requested terminal state.
	ErrConflict = errors.New("ledger: product already inactive")
	// ErrSettlementFailed wraps failures reported by the payment mover.
	ErrSettlementFailed = errors.New("ledger: settlement failed")
	// ErrInvalidSnapshot indicates a snapshot that violates ledger invariants.
	ErrInvalidSnapshot = errors.New("ledger: invalid snapshot")
)
