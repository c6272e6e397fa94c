package escrow

import (
	"fmt"
	"math/big"
)

// Listing captures the sale terms for one tokenized property while a sale
// episode is active. The identifier is the deed token id in the property
// registry; a property has at most one active listing at a time and the record
// is deactivated by settlement or cancellation.
type Listing struct {
	PropertyID    uint64
	Buyer         [20]byte
	PurchasePrice *big.Int
	EscrowAmount  *big.Int
	Listed        bool
	Settling      bool
	CreatedAt     int64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.PurchasePrice != nil {
		clone.PurchasePrice = new(big.Int).Set(l.PurchasePrice)
	} else {
		clone.PurchasePrice = big.NewInt(0)
	}
	if l.EscrowAmount != nil {
		clone.EscrowAmount = new(big.Int).Set(l.EscrowAmount)
	} else {
		clone.EscrowAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.PropertyID == 0 {
		return nil, fmt.Errorf("listing property id must be positive")
	}
	if clone.Buyer == ([20]byte{}) {
		return nil, fmt.Errorf("listing buyer must be set")
	}
	if clone.PurchasePrice.Sign() <= 0 {
		return nil, fmt.Errorf("listing purchase price must be positive")
	}
	if clone.EscrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("listing escrow amount must be non-negative")
	}
	if clone.EscrowAmount.Cmp(clone.PurchasePrice) > 0 {
		return nil, fmt.Errorf("listing escrow amount exceeds purchase price")
	}
	return clone, nil
}

// Contribution records funds one party paid into escrow for a specific
// listing. Tracking funds per listing keeps concurrent sales from consuming
// each other's liquidity and makes refunds exact on cancellation.
type Contribution struct {
	Funder [20]byte
	Amount *big.Int
}

// Clone returns a deep copy of the contribution.
func (c Contribution) Clone() Contribution {
	clone := Contribution{Funder: c.Funder, Amount: big.NewInt(0)}
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	}
	return clone
}
