package escrow

import (
	"fmt"
	"math/big"
	"time"

	"deedvault/core/events"
	"deedvault/core/types"
	nativecommon "deedvault/native/common"
)

const moduleName = "escrow"

// VaultAddress is the module account that holds every escrowed payment until
// settlement or refund.
var VaultAddress = nativecommon.ModuleAddress(moduleName)

// PropertyRegistry is the slice of the external deed registry the engine
// depends on. Settlement instructs the registry to move ownership; the engine
// never inspects registry internals beyond this surface.
type PropertyRegistry interface {
	OwnerOf(tokenID uint64) ([20]byte, error)
	ApprovedOperator(tokenID uint64) ([20]byte, error)
	Transfer(operator [20]byte, tokenID uint64, to [20]byte) error
}

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(propertyID uint64) (*Listing, bool)
	ApprovalSet(propertyID uint64, party [20]byte) error
	Approval(propertyID uint64, party [20]byte) bool
	ApprovalsClear(propertyID uint64) error
	InspectionSet(propertyID uint64, passed bool) error
	InspectionPassed(propertyID uint64) bool
	InspectionClear(propertyID uint64) error
	ContributionAdd(propertyID uint64, funder [20]byte, amount *big.Int) error
	Contributions(propertyID uint64) ([]Contribution, error)
	ContributionsClear(propertyID uint64) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow state machine with the ledger state, the property
// registry and an event emitter. The seller, lender and inspector roles are
// fixed when the engine is constructed and never change for its lifetime;
// buyers are scoped per listing.
type Engine struct {
	state     engineState
	registry  PropertyRegistry
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	nowFn     func() int64
	seller    [20]byte
	lender    [20]byte
	inspector [20]byte
}

// NewEngine creates an escrow engine for the fixed role set with a no-op
// emitter. Callers can override the emitter via SetEmitter.
func NewEngine(seller, lender, inspector [20]byte) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		seller:    seller,
		lender:    lender,
		inspector: inspector,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the property registry consulted during listing and
// settlement.
func (e *Engine) SetRegistry(registry PropertyRegistry) { e.registry = registry }

// SetPauses wires the operational pause switch for the escrow module.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Roles reports the fixed seller, lender and inspector addresses.
func (e *Engine) Roles() (seller, lender, inspector [20]byte) {
	return e.seller, e.lender, e.inspector
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	return nil
}

func (e *Engine) loadActive(propertyID uint64) (*Listing, error) {
	listing, ok := e.state.ListingGet(propertyID)
	if !ok || !listing.Listed {
		return nil, fmt.Errorf("property %d: %w", propertyID, ErrInvalidListing)
	}
	return listing, nil
}

// transferFunds moves native currency between two ledger accounts. Debits
// exceeding the payer's balance fail without touching either account.
func (e *Engine) transferFunds(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance == nil || fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("account %x: %w", from, ErrInsufficientFunds)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	if toAcc.Balance == nil {
		toAcc.Balance = big.NewInt(0)
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// clearDerivedState drops the approvals, inspection verdict and contribution
// records attached to a listing episode. Each sale episode starts and ends
// with a clean slate so stale consent can never leak into a future listing of
// the same property.
func (e *Engine) clearDerivedState(propertyID uint64) error {
	if err := e.state.ApprovalsClear(propertyID); err != nil {
		return err
	}
	if err := e.state.InspectionClear(propertyID); err != nil {
		return err
	}
	return e.state.ContributionsClear(propertyID)
}

// List activates a sale for the property. Only the seller may list, and the
// escrow vault must already hold the deed or be approved to pull it from the
// seller; in the latter case the deed moves into vault custody as part of the
// call.
func (e *Engine) List(caller [20]byte, propertyID uint64, buyer [20]byte, purchasePrice, escrowAmount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.seller {
		return fmt.Errorf("list requires the seller: %w", ErrUnauthorized)
	}
	if existing, ok := e.state.ListingGet(propertyID); ok && existing.Listed {
		return fmt.Errorf("escrow: property %d already listed", propertyID)
	}
	listing := &Listing{
		PropertyID:    propertyID,
		Buyer:         buyer,
		PurchasePrice: cloneBigInt(purchasePrice),
		EscrowAmount:  cloneBigInt(escrowAmount),
		Listed:        true,
		CreatedAt:     e.now(),
	}
	sanitized, err := SanitizeListing(listing)
	if err != nil {
		return err
	}
	owner, err := e.registry.OwnerOf(propertyID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	switch owner {
	case VaultAddress:
		// Custody retained from an earlier episode.
	case e.seller:
		operator, err := e.registry.ApprovedOperator(propertyID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
		}
		if operator != VaultAddress {
			return fmt.Errorf("deed %d not released to escrow: %w", propertyID, ErrPreconditionFailed)
		}
		if err := e.registry.Transfer(VaultAddress, propertyID, VaultAddress); err != nil {
			return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
		}
	default:
		return fmt.Errorf("deed %d not held by the seller: %w", propertyID, ErrPreconditionFailed)
	}
	if err := e.clearDerivedState(propertyID); err != nil {
		return err
	}
	if err := e.state.ListingPut(sanitized); err != nil {
		return err
	}
	e.emit(NewListedEvent(sanitized))
	return nil
}

// DepositEarnest collects the buyer's earnest payment into the vault. The
// amount must cover the listing's minimum deposit; any excess stays escrowed
// toward the purchase price.
func (e *Engine) DepositEarnest(caller [20]byte, propertyID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer {
		return fmt.Errorf("earnest deposit requires the listed buyer: %w", ErrUnauthorized)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("escrow: deposit amount must be positive")
	}
	if amt.Cmp(listing.EscrowAmount) < 0 {
		return fmt.Errorf("deposit below escrow amount %s: %w", listing.EscrowAmount, ErrInsufficientFunds)
	}
	if err := e.transferFunds(caller, VaultAddress, amt); err != nil {
		return err
	}
	if err := e.state.ContributionAdd(propertyID, caller, amt); err != nil {
		return err
	}
	e.emit(NewEarnestDepositedEvent(listing, caller, amt))
	return nil
}

// FundSale accepts a direct payment toward the purchase price from any party,
// typically the lender covering the remainder above the earnest deposit.
func (e *Engine) FundSale(caller [20]byte, propertyID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("escrow: funding amount must be positive")
	}
	if err := e.transferFunds(caller, VaultAddress, amt); err != nil {
		return err
	}
	if err := e.state.ContributionAdd(propertyID, caller, amt); err != nil {
		return err
	}
	e.emit(NewSaleFundedEvent(listing, caller, amt))
	return nil
}

// UpdateInspection records the inspector's verdict for the listing. The
// verdict is re-settable until the listing finalizes; the last write wins.
func (e *Engine) UpdateInspection(caller [20]byte, propertyID uint64, passed bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.inspector {
		return fmt.Errorf("inspection update requires the inspector: %w", ErrUnauthorized)
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	if err := e.state.InspectionSet(propertyID, passed); err != nil {
		return err
	}
	e.emit(NewInspectionUpdatedEvent(listing, passed))
	return nil
}

// ApproveSale records the caller's consent to settle. Only the listed buyer,
// the seller or the lender may approve; re-approving is a no-op and there is
// no revocation short of cancelling the listing.
func (e *Engine) ApproveSale(caller [20]byte, propertyID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer && caller != e.seller && caller != e.lender {
		return fmt.Errorf("approval requires buyer, seller or lender: %w", ErrUnauthorized)
	}
	if err := e.state.ApprovalSet(propertyID, caller); err != nil {
		return err
	}
	e.emit(NewSaleApprovedEvent(listing, caller))
	return nil
}

// Settleable reports whether every settlement gate holds for the listing: a
// passed inspection, consent from buyer, seller and lender, and escrowed
// funds covering the purchase price.
func (e *Engine) Settleable(propertyID uint64) bool {
	if e == nil || e.state == nil {
		return false
	}
	listing, ok := e.state.ListingGet(propertyID)
	if !ok || !listing.Listed {
		return false
	}
	if !e.state.InspectionPassed(propertyID) {
		return false
	}
	for _, party := range [][20]byte{listing.Buyer, e.seller, e.lender} {
		if !e.state.Approval(propertyID, party) {
			return false
		}
	}
	balance, err := e.listingBalance(propertyID)
	if err != nil {
		return false
	}
	return balance.Cmp(listing.PurchasePrice) >= 0
}

// FinalizeSale settles the listing as one indivisible operation: ownership
// moves to the buyer, the seller is paid exactly the purchase price, and the
// listing deactivates. The caller must be the seller and every settlement
// gate must hold.
//
// Internal ledger state is updated before the registry call, and the caller is
// expected to run the operation inside a transactional state overlay so a
// registry failure unwinds the payment as well.
func (e *Engine) FinalizeSale(caller [20]byte, propertyID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	if caller != e.seller {
		return fmt.Errorf("finalize requires the seller: %w", ErrUnauthorized)
	}
	if listing.Settling {
		return fmt.Errorf("property %d settlement already in progress: %w", propertyID, ErrPreconditionFailed)
	}
	listing.Settling = true
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if !e.state.InspectionPassed(propertyID) {
		return fmt.Errorf("inspection not passed: %w", ErrPreconditionFailed)
	}
	for _, party := range [][20]byte{listing.Buyer, e.seller, e.lender} {
		if !e.state.Approval(propertyID, party) {
			return fmt.Errorf("missing approval from %x: %w", party, ErrPreconditionFailed)
		}
	}
	total, err := e.listingBalance(propertyID)
	if err != nil {
		return err
	}
	if total.Cmp(listing.PurchasePrice) < 0 {
		return fmt.Errorf("escrowed %s of %s: %w", total, listing.PurchasePrice, ErrInsufficientFunds)
	}

	// Internal state first: deactivate the listing and pay the seller, then
	// instruct the registry. Any surplus above the purchase price stays in
	// the vault.
	listing.Listed = false
	listing.Settling = false
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.clearDerivedState(propertyID); err != nil {
		return err
	}
	if err := e.transferFunds(VaultAddress, e.seller, listing.PurchasePrice); err != nil {
		return err
	}
	if err := e.registry.Transfer(VaultAddress, propertyID, listing.Buyer); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	e.emit(NewSaleFinalizedEvent(listing))
	return nil
}

// CancelSale unwinds an active listing: every contributor is refunded exactly
// what they escrowed, deed custody returns to the seller, and the listing
// deactivates. Either the buyer or the seller may cancel.
func (e *Engine) CancelSale(caller [20]byte, propertyID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.loadActive(propertyID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer && caller != e.seller {
		return fmt.Errorf("cancel requires buyer or seller: %w", ErrUnauthorized)
	}
	if listing.Settling {
		return fmt.Errorf("property %d settlement already in progress: %w", propertyID, ErrPreconditionFailed)
	}
	contributions, err := e.state.Contributions(propertyID)
	if err != nil {
		return err
	}
	for _, c := range contributions {
		if err := e.transferFunds(VaultAddress, c.Funder, c.Amount); err != nil {
			return err
		}
	}
	listing.Listed = false
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.clearDerivedState(propertyID); err != nil {
		return err
	}
	owner, err := e.registry.OwnerOf(propertyID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	if owner == VaultAddress {
		if err := e.registry.Transfer(VaultAddress, propertyID, e.seller); err != nil {
			return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
		}
	}
	e.emit(NewSaleCancelledEvent(listing, caller))
	return nil
}

func (e *Engine) listingBalance(propertyID uint64) (*big.Int, error) {
	contributions, err := e.state.Contributions(propertyID)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, c := range contributions {
		if c.Amount != nil {
			total.Add(total, c.Amount)
		}
	}
	return total, nil
}

// Listing returns a copy of the stored listing record, active or not.
func (e *Engine) Listing(propertyID uint64) (*Listing, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	listing, ok := e.state.ListingGet(propertyID)
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// Approval reports whether the party has consented to settle the listing.
func (e *Engine) Approval(propertyID uint64, party [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.Approval(propertyID, party)
}

// InspectionPassed reports the inspector's current verdict for the listing.
func (e *Engine) InspectionPassed(propertyID uint64) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.InspectionPassed(propertyID)
}

// ListingBalance reports the funds escrowed for one listing.
func (e *Engine) ListingBalance(propertyID uint64) *big.Int {
	if e == nil || e.state == nil {
		return big.NewInt(0)
	}
	total, err := e.listingBalance(propertyID)
	if err != nil {
		return big.NewInt(0)
	}
	return total
}

// VaultBalance reports the aggregate native currency held by the escrow
// vault across all listings.
func (e *Engine) VaultBalance() *big.Int {
	if e == nil || e.state == nil {
		return big.NewInt(0)
	}
	acc, err := e.state.GetAccount(VaultAddress[:])
	if err != nil || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}
