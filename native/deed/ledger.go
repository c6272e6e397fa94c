package deed

import (
	"errors"
	"fmt"
	"time"

	"deedvault/core/events"
	"deedvault/core/types"
	nativecommon "deedvault/native/common"
)

const moduleName = "deed"

var (
	errNilState = errors.New("deed ledger: state not configured")

	// ErrNotFound is returned when a token identifier resolves to no deed.
	ErrNotFound = errors.New("deed ledger: deed not found")
	// ErrNotOwner is returned when a caller other than the current owner
	// attempts an owner-only operation.
	ErrNotOwner = errors.New("deed ledger: caller is not the owner")
	// ErrUnauthorizedOperator is returned when a transfer is attempted by an
	// address that is neither the owner nor the approved operator.
	ErrUnauthorizedOperator = errors.New("deed ledger: operator not authorized")
	// ErrInvalidDeed marks a structurally invalid deed or transfer request.
	ErrInvalidDeed = errors.New("deed ledger: invalid deed")
)

// ModuleAddress is the registry's own ledger address. It is reported over RPC
// so external parties can reference the registry the escrow settles against.
var ModuleAddress = nativecommon.ModuleAddress(moduleName)

type ledgerState interface {
	DeedPut(*Deed) error
	DeedGet(tokenID uint64) (*Deed, bool)
	DeedNextTokenID() (uint64, error)
	DeedCount() (uint64, error)
}

type deedEvent struct {
	evt *types.Event
}

func (e deedEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e deedEvent) Event() *types.Event { return e.evt }

// Ledger implements the property registry: it mints deeds, tracks per-deed
// ownership and a single approved operator, and moves deeds between owners.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewLedger creates a deed ledger with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewLedger() *Ledger {
	return &Ledger{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPauses wires the operational pause switch for the deed module.
func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

// SetNowFunc overrides the time source used when stamping mints. Primarily
// intended for tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(event *types.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(deedEvent{evt: event})
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

func (l *Ledger) load(tokenID uint64) (*Deed, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	d, ok := l.state.DeedGet(tokenID)
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// Mint creates a new deed owned by the supplied address and returns its token
// identifier. Identifiers are sequential and start at 1.
func (l *Ledger) Mint(owner [20]byte, uri string) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return 0, err
	}
	tokenID, err := l.state.DeedNextTokenID()
	if err != nil {
		return 0, err
	}
	d := &Deed{
		TokenID:  tokenID,
		Owner:    owner,
		URI:      uri,
		MintedAt: l.now(),
	}
	sanitized, err := SanitizeDeed(d)
	if err != nil {
		return 0, err
	}
	if err := l.state.DeedPut(sanitized); err != nil {
		return 0, err
	}
	l.emit(NewMintedEvent(sanitized))
	return tokenID, nil
}

// Approve designates a single operator allowed to move the deed on the owner's
// behalf. Only the current owner may grant approval; the zero address clears
// it.
func (l *Ledger) Approve(caller [20]byte, tokenID uint64, operator [20]byte) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	d, err := l.load(tokenID)
	if err != nil {
		return err
	}
	if d.Owner != caller {
		return fmt.Errorf("%w: only the owner may approve deed %d", ErrNotOwner, tokenID)
	}
	d.Approved = operator
	if err := l.state.DeedPut(d); err != nil {
		return err
	}
	l.emit(NewApprovedEvent(d))
	return nil
}

// Transfer moves the deed to a new owner. The operator must be the current
// owner or the approved operator; any prior approval is cleared on transfer.
func (l *Ledger) Transfer(operator [20]byte, tokenID uint64, to [20]byte) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	d, err := l.load(tokenID)
	if err != nil {
		return err
	}
	if operator != d.Owner && operator != d.Approved {
		return fmt.Errorf("%w: operator %x may not move deed %d", ErrUnauthorizedOperator, operator, tokenID)
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("%w: transfer to the zero address", ErrInvalidDeed)
	}
	from := d.Owner
	d.Owner = to
	d.Approved = [20]byte{}
	if err := l.state.DeedPut(d); err != nil {
		return err
	}
	l.emit(NewTransferredEvent(d, from))
	return nil
}

// OwnerOf reports the current owner of the deed.
func (l *Ledger) OwnerOf(tokenID uint64) ([20]byte, error) {
	d, err := l.load(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	return d.Owner, nil
}

// ApprovedOperator reports the operator currently approved for the deed, if
// any.
func (l *Ledger) ApprovedOperator(tokenID uint64) ([20]byte, error) {
	d, err := l.load(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	return d.Approved, nil
}

// TokenURI reports the metadata URI recorded at mint time.
func (l *Ledger) TokenURI(tokenID uint64) (string, error) {
	d, err := l.load(tokenID)
	if err != nil {
		return "", err
	}
	return d.URI, nil
}

// TotalSupply reports how many deeds have been minted. Identifiers are never
// reused, so this equals the highest issued token id.
func (l *Ledger) TotalSupply() (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.DeedCount()
}

// Get returns a copy of the full deed record.
func (l *Ledger) Get(tokenID uint64) (*Deed, bool) {
	if l == nil || l.state == nil {
		return nil, false
	}
	d, ok := l.state.DeedGet(tokenID)
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}
