package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deedvault/native/escrow"
	"deedvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type nodeFixture struct {
	node      *Node
	seller    [20]byte
	buyer     [20]byte
	lender    [20]byte
	inspector [20]byte
}

func newNodeFixture(t *testing.T) *nodeFixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	f := &nodeFixture{
		seller:    testAddr(0x01),
		buyer:     testAddr(0x02),
		lender:    testAddr(0x03),
		inspector: testAddr(0x04),
	}
	f.node = NewNode(db, Roles{Seller: f.seller, Lender: f.lender, Inspector: f.inspector}, nil)
	require.NoError(t, f.node.ApplyGenesis(
		[]GenesisAccount{
			{Address: f.buyer, Balance: big.NewInt(100)},
			{Address: f.lender, Balance: big.NewInt(100)},
		},
		[]GenesisDeed{
			{Owner: f.seller, URI: "ipfs://property/1.json"},
		},
	))
	return f
}

// listProperty releases deed 1 to the vault and lists it for 10 with a 5
// earnest minimum.
func (f *nodeFixture) listProperty(t *testing.T) {
	t.Helper()
	require.NoError(t, f.node.DeedApprove(f.seller, 1, escrow.VaultAddress))
	require.NoError(t, f.node.EscrowList(f.seller, 1, f.buyer, big.NewInt(10), big.NewInt(5)))
}

func TestGenesisRunsOnce(t *testing.T) {
	f := newNodeFixture(t)

	// A second application must not re-fund or re-mint.
	require.NoError(t, f.node.ApplyGenesis(
		[]GenesisAccount{{Address: f.buyer, Balance: big.NewInt(999)}},
		[]GenesisDeed{{Owner: f.seller, URI: "ipfs://property/dup.json"}},
	))
	acc, err := f.node.GetAccount(f.buyer[:])
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), acc.Balance)
	_, ok := f.node.DeedGet(2)
	require.False(t, ok)
}

func TestFullSaleLifecycle(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)

	owner, err := f.node.DeedOwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, escrow.VaultAddress, owner)

	require.NoError(t, f.node.EscrowDepositEarnest(f.buyer, 1, big.NewInt(5)))
	require.Equal(t, big.NewInt(5), f.node.EscrowVaultBalance())

	require.NoError(t, f.node.EscrowUpdateInspection(f.inspector, 1, true))
	require.NoError(t, f.node.EscrowApproveSale(f.buyer, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.seller, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.lender, 1))
	require.NoError(t, f.node.EscrowFundSale(f.lender, 1, big.NewInt(5)))
	require.Equal(t, big.NewInt(10), f.node.EscrowVaultBalance())
	require.True(t, f.node.EscrowSettleable(1))

	require.NoError(t, f.node.EscrowFinalizeSale(f.seller, 1))

	owner, err = f.node.DeedOwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, f.buyer, owner)
	require.Equal(t, big.NewInt(0), f.node.EscrowVaultBalance())
	sellerAcc, err := f.node.GetAccount(f.seller[:])
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), sellerAcc.Balance)
	listing, ok := f.node.EscrowListing(1)
	require.True(t, ok)
	require.False(t, listing.Listed)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)
	require.NoError(t, f.node.EscrowDepositEarnest(f.buyer, 1, big.NewInt(5)))

	// Premature finalize: no inspection, no approvals.
	err := f.node.EscrowFinalizeSale(f.seller, 1)
	require.ErrorIs(t, err, escrow.ErrPreconditionFailed)

	// Balance and custody untouched, and the failed attempt must not leave
	// the in-progress settlement marker behind.
	require.Equal(t, big.NewInt(5), f.node.EscrowVaultBalance())
	owner, regErr := f.node.DeedOwnerOf(1)
	require.NoError(t, regErr)
	require.Equal(t, escrow.VaultAddress, owner)
	listing, ok := f.node.EscrowListing(1)
	require.True(t, ok)
	require.True(t, listing.Listed)
	require.False(t, listing.Settling)

	// Completing the gates afterwards must allow settlement.
	require.NoError(t, f.node.EscrowUpdateInspection(f.inspector, 1, true))
	require.NoError(t, f.node.EscrowApproveSale(f.buyer, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.seller, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.lender, 1))
	require.NoError(t, f.node.EscrowFundSale(f.lender, 1, big.NewInt(5)))
	require.NoError(t, f.node.EscrowFinalizeSale(f.seller, 1))
}

// brokenRegistry forwards reads to the real deed ledger but refuses every
// ownership transfer.
type brokenRegistry struct {
	inner escrow.PropertyRegistry
}

func (r brokenRegistry) OwnerOf(tokenID uint64) ([20]byte, error) {
	return r.inner.OwnerOf(tokenID)
}

func (r brokenRegistry) ApprovedOperator(tokenID uint64) ([20]byte, error) {
	return r.inner.ApprovedOperator(tokenID)
}

func (r brokenRegistry) Transfer([20]byte, uint64, [20]byte) error {
	return errors.New("registry offline")
}

func TestRegistryFailureRollsBackSellerPayment(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)
	require.NoError(t, f.node.EscrowDepositEarnest(f.buyer, 1, big.NewInt(5)))
	require.NoError(t, f.node.EscrowUpdateInspection(f.inspector, 1, true))
	require.NoError(t, f.node.EscrowApproveSale(f.buyer, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.seller, 1))
	require.NoError(t, f.node.EscrowApproveSale(f.lender, 1))
	require.NoError(t, f.node.EscrowFundSale(f.lender, 1, big.NewInt(5)))
	require.True(t, f.node.EscrowSettleable(1))

	f.node.escrow.SetRegistry(brokenRegistry{inner: f.node.deeds})
	err := f.node.EscrowFinalizeSale(f.seller, 1)
	require.ErrorIs(t, err, escrow.ErrExternalTransferFailed)

	// The seller payment was buffered before the registry call; the failed
	// transfer must unwind it along with every other buffered write.
	sellerAcc, accErr := f.node.GetAccount(f.seller[:])
	require.NoError(t, accErr)
	require.Equal(t, big.NewInt(0), sellerAcc.Balance)
	require.Equal(t, big.NewInt(10), f.node.EscrowVaultBalance())
	require.Equal(t, big.NewInt(10), f.node.EscrowListingBalance(1))
	listing, ok := f.node.EscrowListing(1)
	require.True(t, ok)
	require.True(t, listing.Listed)
	require.False(t, listing.Settling)
	require.True(t, f.node.EscrowInspectionPassed(1))
	for _, party := range [][20]byte{f.buyer, f.seller, f.lender} {
		require.True(t, f.node.EscrowApproval(1, party))
	}
	owner, regErr := f.node.DeedOwnerOf(1)
	require.NoError(t, regErr)
	require.Equal(t, escrow.VaultAddress, owner)

	// Once the registry recovers the same listing settles cleanly.
	f.node.escrow.SetRegistry(f.node.deeds)
	require.NoError(t, f.node.EscrowFinalizeSale(f.seller, 1))
	sellerAcc, accErr = f.node.GetAccount(f.seller[:])
	require.NoError(t, accErr)
	require.Equal(t, big.NewInt(10), sellerAcc.Balance)
	owner, regErr = f.node.DeedOwnerOf(1)
	require.NoError(t, regErr)
	require.Equal(t, f.buyer, owner)
}

func TestFailedOperationEmitsNoEvents(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)
	before := len(f.node.Events("", 0))

	err := f.node.EscrowDepositEarnest(f.lender, 1, big.NewInt(5))
	require.ErrorIs(t, err, escrow.ErrUnauthorized)
	require.Len(t, f.node.Events("", 0), before)
}

func TestEventLogFiltering(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)
	require.NoError(t, f.node.EscrowDepositEarnest(f.buyer, 1, big.NewInt(5)))

	escrowEvents := f.node.Events("escrow.", 0)
	require.NotEmpty(t, escrowEvents)
	for _, evt := range escrowEvents {
		require.Contains(t, evt.Type, "escrow.")
	}
	deedEvents := f.node.Events("deed.", 0)
	require.NotEmpty(t, deedEvents) // genesis mint and approval

	limited := f.node.Events("", 1)
	require.Len(t, limited, 1)
	require.Equal(t, escrow.EventTypeEarnestDeposited, limited[0].Type)
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	seller := testAddr(0x01)
	node := NewNode(db, Roles{Seller: seller, Lender: testAddr(0x03), Inspector: testAddr(0x04)}, []string{"escrow"})
	require.NoError(t, node.ApplyGenesis(nil, []GenesisDeed{{Owner: seller, URI: "ipfs://property/1.json"}}))

	err := node.EscrowList(seller, 1, testAddr(0x02), big.NewInt(10), big.NewInt(5))
	require.Error(t, err)
}

func TestCancelRefundsThroughNode(t *testing.T) {
	f := newNodeFixture(t)
	f.listProperty(t)
	require.NoError(t, f.node.EscrowDepositEarnest(f.buyer, 1, big.NewInt(5)))
	require.NoError(t, f.node.EscrowFundSale(f.lender, 1, big.NewInt(3)))

	require.NoError(t, f.node.EscrowCancelSale(f.buyer, 1))

	buyerAcc, err := f.node.GetAccount(f.buyer[:])
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), buyerAcc.Balance)
	lenderAcc, err := f.node.GetAccount(f.lender[:])
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), lenderAcc.Balance)
	owner, err := f.node.DeedOwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, f.seller, owner)
}
