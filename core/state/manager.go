package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"deedvault/core/types"
	"deedvault/native/deed"
	"deedvault/native/escrow"
	"deedvault/storage"
)

// Manager reads and writes ledger state through a write buffer. Mutating
// operations accumulate in the buffer and only reach the backing store on
// Commit; Discard drops them. This is the transactional primitive that makes
// each escrow operation all-or-nothing: the node commits on success and
// discards on any error, so a failed settlement can never leave a partial
// write behind.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
	deletes map[string]struct{}
}

// NewManager creates a state manager over the provided database with an empty
// write buffer.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		pending: make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// kvKey hashes logical keys so the layout of the backing store does not leak
// key contents or lengths.
func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) rawGet(key []byte) ([]byte, error) {
	hashed := string(kvKey(key))
	if _, gone := m.deletes[hashed]; gone {
		return nil, nil
	}
	if data, ok := m.pending[hashed]; ok {
		return data, nil
	}
	data, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) rawPut(key, value []byte) {
	hashed := string(kvKey(key))
	delete(m.deletes, hashed)
	m.pending[hashed] = append([]byte(nil), value...)
}

func (m *Manager) rawDelete(key []byte) {
	hashed := string(kvKey(key))
	delete(m.pending, hashed)
	m.deletes[hashed] = struct{}{}
}

// Commit flushes the write buffer to the backing store. The buffer is empty
// afterwards regardless of outcome; a flush error leaves the store partially
// written only at the KV level, which is why callers commit at most once per
// logical operation.
func (m *Manager) Commit() error {
	for key, value := range m.pending {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	for key := range m.deletes {
		if err := m.db.Delete([]byte(key)); err != nil {
			return err
		}
	}
	m.Discard()
	return nil
}

// Discard drops every buffered write.
func (m *Manager) Discard() {
	m.pending = make(map[string][]byte)
	m.deletes = make(map[string]struct{})
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.rawPut(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.rawDelete(key)
	return nil
}

// --- Accounts ---

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account stored for the address, returning a zeroed
// account when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	stored := new(storedAccount)
	ok, err := m.KVGet(accountKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	acc := &types.Account{Nonce: stored.Nonce, Balance: stored.Balance}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// PutAccount persists the account for the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance for account %x", addr)
	}
	return m.KVPut(accountKey(addr), &storedAccount{Nonce: account.Nonce, Balance: balance})
}

// --- Escrow listings ---

// RLP has no signed integer support, so stored records carry timestamps as
// uint64.
type storedListing struct {
	PropertyID    uint64
	Buyer         [20]byte
	PurchasePrice *big.Int
	EscrowAmount  *big.Int
	Listed        bool
	Settling      bool
	CreatedAt     uint64
}

// ListingPut validates and persists the listing record.
func (m *Manager) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	stored := &storedListing{
		PropertyID:    sanitized.PropertyID,
		Buyer:         sanitized.Buyer,
		PurchasePrice: sanitized.PurchasePrice,
		EscrowAmount:  sanitized.EscrowAmount,
		Listed:        sanitized.Listed,
		Settling:      sanitized.Settling,
		CreatedAt:     uint64(sanitized.CreatedAt),
	}
	return m.KVPut(listingKey(sanitized.PropertyID), stored)
}

// ListingGet loads the listing for the property, if one was ever recorded.
func (m *Manager) ListingGet(propertyID uint64) (*escrow.Listing, bool) {
	stored := new(storedListing)
	ok, err := m.KVGet(listingKey(propertyID), stored)
	if err != nil || !ok {
		return nil, false
	}
	return &escrow.Listing{
		PropertyID:    stored.PropertyID,
		Buyer:         stored.Buyer,
		PurchasePrice: stored.PurchasePrice,
		EscrowAmount:  stored.EscrowAmount,
		Listed:        stored.Listed,
		Settling:      stored.Settling,
		CreatedAt:     int64(stored.CreatedAt),
	}, true
}

// --- Approvals ---

// ApprovalSet records the party's consent for the listing. Re-approving is a
// no-op.
func (m *Manager) ApprovalSet(propertyID uint64, party [20]byte) error {
	parties, err := m.approvalList(propertyID)
	if err != nil {
		return err
	}
	for _, existing := range parties {
		if existing == party {
			return nil
		}
	}
	parties = append(parties, party)
	return m.KVPut(approvalsKey(propertyID), parties)
}

// Approval reports whether the party has consented to settling the listing.
func (m *Manager) Approval(propertyID uint64, party [20]byte) bool {
	parties, err := m.approvalList(propertyID)
	if err != nil {
		return false
	}
	for _, existing := range parties {
		if existing == party {
			return true
		}
	}
	return false
}

// ApprovalsClear drops every recorded consent for the listing.
func (m *Manager) ApprovalsClear(propertyID uint64) error {
	return m.KVDelete(approvalsKey(propertyID))
}

func (m *Manager) approvalList(propertyID uint64) ([][20]byte, error) {
	var parties [][20]byte
	if _, err := m.KVGet(approvalsKey(propertyID), &parties); err != nil {
		return nil, err
	}
	return parties, nil
}

// --- Inspection ---

// InspectionSet records the inspector's verdict; the last write wins.
func (m *Manager) InspectionSet(propertyID uint64, passed bool) error {
	return m.KVPut(inspectionKey(propertyID), passed)
}

// InspectionPassed reports the current verdict, defaulting to false.
func (m *Manager) InspectionPassed(propertyID uint64) bool {
	var passed bool
	ok, err := m.KVGet(inspectionKey(propertyID), &passed)
	if err != nil || !ok {
		return false
	}
	return passed
}

// InspectionClear drops the verdict for the listing.
func (m *Manager) InspectionClear(propertyID uint64) error {
	return m.KVDelete(inspectionKey(propertyID))
}

// --- Contributions ---

type storedContribution struct {
	Funder [20]byte
	Amount *big.Int
}

// ContributionAdd appends a funding record for the listing.
func (m *Manager) ContributionAdd(propertyID uint64, funder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: contribution amount must be positive")
	}
	list, err := m.contributionList(propertyID)
	if err != nil {
		return err
	}
	list = append(list, storedContribution{Funder: funder, Amount: new(big.Int).Set(amount)})
	return m.KVPut(contributionsKey(propertyID), list)
}

// Contributions returns every funding record for the listing in insertion
// order.
func (m *Manager) Contributions(propertyID uint64) ([]escrow.Contribution, error) {
	list, err := m.contributionList(propertyID)
	if err != nil {
		return nil, err
	}
	out := make([]escrow.Contribution, 0, len(list))
	for _, c := range list {
		amount := c.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		out = append(out, escrow.Contribution{Funder: c.Funder, Amount: new(big.Int).Set(amount)})
	}
	return out, nil
}

// ContributionsClear drops every funding record for the listing.
func (m *Manager) ContributionsClear(propertyID uint64) error {
	return m.KVDelete(contributionsKey(propertyID))
}

func (m *Manager) contributionList(propertyID uint64) ([]storedContribution, error) {
	var list []storedContribution
	if _, err := m.KVGet(contributionsKey(propertyID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// --- Deeds ---

type storedDeed struct {
	TokenID  uint64
	Owner    [20]byte
	Approved [20]byte
	URI      string
	MintedAt uint64
}

// DeedPut validates and persists the deed record.
func (m *Manager) DeedPut(d *deed.Deed) error {
	sanitized, err := deed.SanitizeDeed(d)
	if err != nil {
		return err
	}
	stored := &storedDeed{
		TokenID:  sanitized.TokenID,
		Owner:    sanitized.Owner,
		Approved: sanitized.Approved,
		URI:      sanitized.URI,
		MintedAt: uint64(sanitized.MintedAt),
	}
	return m.KVPut(deedKey(sanitized.TokenID), stored)
}

// DeedGet loads the deed record for the token id.
func (m *Manager) DeedGet(tokenID uint64) (*deed.Deed, bool) {
	stored := new(storedDeed)
	ok, err := m.KVGet(deedKey(tokenID), stored)
	if err != nil || !ok {
		return nil, false
	}
	return &deed.Deed{
		TokenID:  stored.TokenID,
		Owner:    stored.Owner,
		Approved: stored.Approved,
		URI:      stored.URI,
		MintedAt: int64(stored.MintedAt),
	}, true
}

// DeedNextTokenID increments and returns the mint counter. Token ids are
// sequential and start at 1.
func (m *Manager) DeedNextTokenID() (uint64, error) {
	var counter uint64
	if _, err := m.KVGet([]byte(deedNextIDKey), &counter); err != nil {
		return 0, err
	}
	counter++
	if err := m.KVPut([]byte(deedNextIDKey), counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// DeedCount reports the number of deeds minted so far without advancing the
// counter.
func (m *Manager) DeedCount() (uint64, error) {
	var counter uint64
	if _, err := m.KVGet([]byte(deedNextIDKey), &counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// --- Genesis ---

// GenesisApplied reports whether the one-time genesis allocation already ran
// against this store.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVGet([]byte(genesisAppliedKey), nil)
}

// MarkGenesisApplied records that genesis ran so restarts do not re-fund
// accounts or re-mint deeds.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut([]byte(genesisAppliedKey), true)
}
