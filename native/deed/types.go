package deed

import (
	"fmt"
	"strings"
)

// Deed is a single tokenized property record held by the registry. Ownership
// and the approved operator are ledger addresses; the URI points at off-chain
// metadata describing the property itself.
type Deed struct {
	TokenID  uint64
	Owner    [20]byte
	Approved [20]byte
	URI      string
	MintedAt int64
}

// Clone returns a copy of the deed so callers can mutate the result without
// affecting the stored instance.
func (d *Deed) Clone() *Deed {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// SanitizeDeed validates the deed record and returns a cloned, normalized
// instance. The original value is not mutated.
func SanitizeDeed(d *Deed) (*Deed, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil deed", ErrInvalidDeed)
	}
	clone := d.Clone()
	if clone.TokenID == 0 {
		return nil, fmt.Errorf("%w: token id must be positive", ErrInvalidDeed)
	}
	if clone.Owner == ([20]byte{}) {
		return nil, fmt.Errorf("%w: owner must be set", ErrInvalidDeed)
	}
	clone.URI = strings.TrimSpace(clone.URI)
	if clone.URI == "" {
		return nil, fmt.Errorf("%w: metadata URI must be set", ErrInvalidDeed)
	}
	return clone, nil
}
