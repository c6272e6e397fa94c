package state

import "fmt"

// Key layout for the escrow ledger. Every key is hashed with keccak256 before
// it reaches the underlying store.
const (
	accountKeyFmt = "account/%x"

	escrowListingKeyFmt       = "escrow/listing/%d"
	escrowApprovalsKeyFmt     = "escrow/approvals/%d"
	escrowInspectionKeyFmt    = "escrow/inspection/%d"
	escrowContributionsKeyFmt = "escrow/contributions/%d"

	deedRecordKeyFmt = "deed/record/%d"
	deedNextIDKey    = "deed/next-id"

	genesisAppliedKey = "genesis/applied"
)

func accountKey(addr []byte) []byte {
	return []byte(fmt.Sprintf(accountKeyFmt, addr))
}

func listingKey(propertyID uint64) []byte {
	return []byte(fmt.Sprintf(escrowListingKeyFmt, propertyID))
}

func approvalsKey(propertyID uint64) []byte {
	return []byte(fmt.Sprintf(escrowApprovalsKeyFmt, propertyID))
}

func inspectionKey(propertyID uint64) []byte {
	return []byte(fmt.Sprintf(escrowInspectionKeyFmt, propertyID))
}

func contributionsKey(propertyID uint64) []byte {
	return []byte(fmt.Sprintf(escrowContributionsKeyFmt, propertyID))
}

func deedKey(tokenID uint64) []byte {
	return []byte(fmt.Sprintf(deedRecordKeyFmt, tokenID))
}
