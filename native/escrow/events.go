package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"deedvault/core/types"
)

const (
	EventTypeListed            = "escrow.listed"
	EventTypeEarnestDeposited  = "escrow.earnest_deposited"
	EventTypeSaleFunded        = "escrow.sale_funded"
	EventTypeInspectionUpdated = "escrow.inspection_updated"
	EventTypeSaleApproved      = "escrow.sale_approved"
	EventTypeSaleFinalized     = "escrow.sale_finalized"
	EventTypeSaleCancelled     = "escrow.sale_cancelled"
)

// NewListedEvent returns the canonical event payload for a freshly activated
// listing.
func NewListedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListed, l) }

// NewEarnestDepositedEvent returns the payload emitted when the buyer's
// earnest deposit lands in the vault.
func NewEarnestDepositedEvent(l *Listing, from [20]byte, amount *big.Int) *types.Event {
	evt := newListingEvent(EventTypeEarnestDeposited, l)
	evt.Attributes["from"] = hex.EncodeToString(from[:])
	evt.Attributes["amount"] = amount.String()
	return evt
}

// NewSaleFundedEvent returns the payload emitted for a direct funding
// transfer, typically the lender's remainder.
func NewSaleFundedEvent(l *Listing, from [20]byte, amount *big.Int) *types.Event {
	evt := newListingEvent(EventTypeSaleFunded, l)
	evt.Attributes["from"] = hex.EncodeToString(from[:])
	evt.Attributes["amount"] = amount.String()
	return evt
}

// NewInspectionUpdatedEvent returns the payload for an inspector verdict.
func NewInspectionUpdatedEvent(l *Listing, passed bool) *types.Event {
	evt := newListingEvent(EventTypeInspectionUpdated, l)
	evt.Attributes["passed"] = strconv.FormatBool(passed)
	return evt
}

// NewSaleApprovedEvent returns the payload recorded when a party consents to
// settle.
func NewSaleApprovedEvent(l *Listing, party [20]byte) *types.Event {
	evt := newListingEvent(EventTypeSaleApproved, l)
	evt.Attributes["party"] = hex.EncodeToString(party[:])
	return evt
}

// NewSaleFinalizedEvent returns the payload for a completed settlement.
func NewSaleFinalizedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeSaleFinalized, l)
}

// NewSaleCancelledEvent returns the payload for a cancelled listing.
func NewSaleCancelledEvent(l *Listing, by [20]byte) *types.Event {
	evt := newListingEvent(EventTypeSaleCancelled, l)
	evt.Attributes["cancelledBy"] = hex.EncodeToString(by[:])
	return evt
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	clone := l.Clone()
	attrs["propertyId"] = strconv.FormatUint(clone.PropertyID, 10)
	attrs["buyer"] = hex.EncodeToString(clone.Buyer[:])
	attrs["purchasePrice"] = clone.PurchasePrice.String()
	attrs["escrowAmount"] = clone.EscrowAmount.String()
	attrs["listed"] = strconv.FormatBool(clone.Listed)
	return &types.Event{Type: eventType, Attributes: attrs}
}
