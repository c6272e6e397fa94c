package escrow

import "errors"

// Error taxonomy shared by every escrow operation. The RPC layer maps these
// sentinels onto JSON-RPC error codes.
var (
	// ErrUnauthorized signals a mutating call from an address outside the
	// role permitted for that operation.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidListing signals an operation against a property without an
	// active listing.
	ErrInvalidListing = errors.New("escrow: listing not active")
	// ErrInsufficientFunds signals a payment below the required minimum or a
	// settlement attempted before the purchase price is fully escrowed.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	// ErrPreconditionFailed signals a settlement attempted before the
	// inspection or one of the party approvals is in place.
	ErrPreconditionFailed = errors.New("escrow: settlement preconditions not met")
	// ErrExternalTransferFailed signals that the property registry refused an
	// ownership transfer. The surrounding operation rolls back entirely.
	ErrExternalTransferFailed = errors.New("escrow: property registry transfer failed")

	errNilState    = errors.New("escrow engine: state not configured")
	errNilRegistry = errors.New("escrow engine: property registry not configured")
)
