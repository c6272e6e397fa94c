package deed

import (
	"encoding/hex"
	"strconv"

	"deedvault/core/types"
)

const (
	EventTypeDeedMinted      = "deed.minted"
	EventTypeDeedApproved    = "deed.approved"
	EventTypeDeedTransferred = "deed.transferred"
)

// NewMintedEvent returns the canonical event payload for a freshly minted
// deed.
func NewMintedEvent(d *Deed) *types.Event { return newDeedEvent(EventTypeDeedMinted, d) }

// NewApprovedEvent returns the canonical event payload emitted when an
// operator is approved (or cleared) for a deed.
func NewApprovedEvent(d *Deed) *types.Event { return newDeedEvent(EventTypeDeedApproved, d) }

// NewTransferredEvent returns the canonical event payload for an ownership
// transfer, including the previous owner.
func NewTransferredEvent(d *Deed, from [20]byte) *types.Event {
	evt := newDeedEvent(EventTypeDeedTransferred, d)
	evt.Attributes["from"] = hex.EncodeToString(from[:])
	return evt
}

func newDeedEvent(eventType string, d *Deed) *types.Event {
	attrs := make(map[string]string)
	if d == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["tokenId"] = strconv.FormatUint(d.TokenID, 10)
	attrs["owner"] = hex.EncodeToString(d.Owner[:])
	attrs["uri"] = d.URI
	if d.Approved != ([20]byte{}) {
		attrs["approved"] = hex.EncodeToString(d.Approved[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
