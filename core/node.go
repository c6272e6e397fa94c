package core

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"deedvault/core/events"
	"deedvault/core/state"
	"deedvault/core/types"
	"deedvault/native/deed"
	"deedvault/native/escrow"
	"deedvault/storage"
)

// maxEventLog bounds the in-memory event history served over RPC.
const maxEventLog = 1024

// pauseSet is the operational pause switch fed from configuration.
type pauseSet map[string]struct{}

func (p pauseSet) IsPaused(module string) bool {
	_, ok := p[module]
	return ok
}

// Roles carries the fixed party addresses of the escrow instance.
type Roles struct {
	Seller    [20]byte
	Lender    [20]byte
	Inspector [20]byte
}

// GenesisAccount funds one address at first boot.
type GenesisAccount struct {
	Address [20]byte
	Balance *big.Int
}

// GenesisDeed mints one property deed at first boot.
type GenesisDeed struct {
	Owner [20]byte
	URI   string
}

// Node is the deterministic execution environment of the escrow ledger. Every
// operation runs to completion under the node mutex against a buffered state
// overlay: success commits, any error discards, so each operation is a
// discrete atomically-committed transaction and no caller ever observes a
// partial write. Events emitted during an operation are published only when it
// commits.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	state  *state.Manager
	escrow *escrow.Engine
	deeds  *deed.Ledger

	eventLog []types.Event
	pending  []types.Event
}

// NewNode wires the state manager, the escrow engine and the deed ledger over
// the provided database. pausedModules names native modules whose mutating
// operations should be rejected until operations staff re-enable them.
func NewNode(db storage.Database, roles Roles, pausedModules []string) *Node {
	n := &Node{
		db:    db,
		state: state.NewManager(db),
	}
	pauses := make(pauseSet)
	for _, module := range pausedModules {
		if trimmed := strings.TrimSpace(module); trimmed != "" {
			pauses[trimmed] = struct{}{}
		}
	}

	n.deeds = deed.NewLedger()
	n.deeds.SetState(n.state)
	n.deeds.SetEmitter(n)
	n.deeds.SetPauses(pauses)

	n.escrow = escrow.NewEngine(roles.Seller, roles.Lender, roles.Inspector)
	n.escrow.SetState(n.state)
	n.escrow.SetRegistry(n.deeds)
	n.escrow.SetEmitter(n)
	n.escrow.SetPauses(pauses)

	return n
}

// Emit implements events.Emitter. Events are staged and only become visible
// when the surrounding operation commits.
func (n *Node) Emit(evt events.Event) {
	type payloadCarrier interface {
		Event() *types.Event
	}
	carrier, ok := evt.(payloadCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	n.pending = append(n.pending, *carrier.Event())
}

// execute runs one mutating operation as an atomically-committed transaction.
func (n *Node) execute(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = n.pending[:0]
	if err := fn(); err != nil {
		n.state.Discard()
		n.pending = n.pending[:0]
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.pending = n.pending[:0]
		return fmt.Errorf("state commit: %w", err)
	}
	n.eventLog = append(n.eventLog, n.pending...)
	if overflow := len(n.eventLog) - maxEventLog; overflow > 0 {
		n.eventLog = append([]types.Event(nil), n.eventLog[overflow:]...)
	}
	n.pending = n.pending[:0]
	return nil
}

// --- Escrow operations ---

func (n *Node) EscrowList(caller [20]byte, propertyID uint64, buyer [20]byte, purchasePrice, escrowAmount *big.Int) error {
	return n.execute(func() error {
		return n.escrow.List(caller, propertyID, buyer, purchasePrice, escrowAmount)
	})
}

func (n *Node) EscrowDepositEarnest(caller [20]byte, propertyID uint64, amount *big.Int) error {
	return n.execute(func() error {
		return n.escrow.DepositEarnest(caller, propertyID, amount)
	})
}

func (n *Node) EscrowFundSale(caller [20]byte, propertyID uint64, amount *big.Int) error {
	return n.execute(func() error {
		return n.escrow.FundSale(caller, propertyID, amount)
	})
}

func (n *Node) EscrowUpdateInspection(caller [20]byte, propertyID uint64, passed bool) error {
	return n.execute(func() error {
		return n.escrow.UpdateInspection(caller, propertyID, passed)
	})
}

func (n *Node) EscrowApproveSale(caller [20]byte, propertyID uint64) error {
	return n.execute(func() error {
		return n.escrow.ApproveSale(caller, propertyID)
	})
}

func (n *Node) EscrowFinalizeSale(caller [20]byte, propertyID uint64) error {
	return n.execute(func() error {
		return n.escrow.FinalizeSale(caller, propertyID)
	})
}

func (n *Node) EscrowCancelSale(caller [20]byte, propertyID uint64) error {
	return n.execute(func() error {
		return n.escrow.CancelSale(caller, propertyID)
	})
}

// --- Escrow queries ---

func (n *Node) EscrowListing(propertyID uint64) (*escrow.Listing, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Listing(propertyID)
}

func (n *Node) EscrowApproval(propertyID uint64, party [20]byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Approval(propertyID, party)
}

func (n *Node) EscrowInspectionPassed(propertyID uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.InspectionPassed(propertyID)
}

func (n *Node) EscrowSettleable(propertyID uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Settleable(propertyID)
}

func (n *Node) EscrowVaultBalance() *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.VaultBalance()
}

func (n *Node) EscrowListingBalance(propertyID uint64) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.ListingBalance(propertyID)
}

func (n *Node) EscrowRoles() Roles {
	seller, lender, inspector := n.escrow.Roles()
	return Roles{Seller: seller, Lender: lender, Inspector: inspector}
}

// --- Deed operations ---

// DeedMint creates a deed owned by the caller, mirroring a registry where any
// seller can tokenize a property they hold title to.
func (n *Node) DeedMint(caller [20]byte, uri string) (uint64, error) {
	var tokenID uint64
	err := n.execute(func() error {
		var mintErr error
		tokenID, mintErr = n.deeds.Mint(caller, uri)
		return mintErr
	})
	return tokenID, err
}

func (n *Node) DeedApprove(caller [20]byte, tokenID uint64, operator [20]byte) error {
	return n.execute(func() error {
		return n.deeds.Approve(caller, tokenID, operator)
	})
}

func (n *Node) DeedOwnerOf(tokenID uint64) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deeds.OwnerOf(tokenID)
}

func (n *Node) DeedGet(tokenID uint64) (*deed.Deed, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deeds.Get(tokenID)
}

// --- Accounts ---

func (n *Node) GetAccount(addr []byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr)
}

// --- Events ---

// Events returns up to limit of the most recent committed events whose type
// carries the given prefix. An empty prefix matches everything; a zero or
// negative limit returns all retained matches.
func (n *Node) Events(prefix string, limit int) []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	matched := make([]types.Event, 0, len(n.eventLog))
	for _, evt := range n.eventLog {
		if prefix == "" || strings.HasPrefix(evt.Type, prefix) {
			matched = append(matched, evt)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// --- Genesis ---

// ApplyGenesis funds the configured accounts and mints the configured deeds
// exactly once per database. Subsequent boots are no-ops.
func (n *Node) ApplyGenesis(accounts []GenesisAccount, deeds []GenesisDeed) error {
	return n.execute(func() error {
		applied, err := n.state.GenesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		for _, alloc := range accounts {
			acc, err := n.state.GetAccount(alloc.Address[:])
			if err != nil {
				return err
			}
			if alloc.Balance == nil || alloc.Balance.Sign() < 0 {
				return fmt.Errorf("genesis: invalid balance for %x", alloc.Address)
			}
			acc.Balance = new(big.Int).Set(alloc.Balance)
			if err := n.state.PutAccount(alloc.Address[:], acc); err != nil {
				return err
			}
		}
		for _, record := range deeds {
			if _, err := n.deeds.Mint(record.Owner, record.URI); err != nil {
				return err
			}
		}
		return n.state.MarkGenesisApplied()
	})
}
