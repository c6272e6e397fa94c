package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"deedvault/crypto"
	nativecommon "deedvault/native/common"
	"deedvault/native/deed"
	"deedvault/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowListParams struct {
	Caller        string `json:"caller"`
	PropertyID    uint64 `json:"propertyId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type escrowAmountParams struct {
	Caller     string `json:"caller"`
	PropertyID uint64 `json:"propertyId"`
	Amount     string `json:"amount"`
}

type escrowActorParams struct {
	Caller     string `json:"caller"`
	PropertyID uint64 `json:"propertyId"`
}

type escrowInspectionParams struct {
	Caller     string `json:"caller"`
	PropertyID uint64 `json:"propertyId"`
	Passed     bool   `json:"passed"`
}

type escrowIDParams struct {
	PropertyID uint64 `json:"propertyId"`
}

type escrowApprovalParams struct {
	PropertyID uint64 `json:"propertyId"`
	Party      string `json:"party"`
}

type escrowEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type approvalsJSON struct {
	Buyer  bool `json:"buyer"`
	Seller bool `json:"seller"`
	Lender bool `json:"lender"`
}

type listingJSON struct {
	PropertyID       uint64        `json:"propertyId"`
	Buyer            string        `json:"buyer"`
	PurchasePrice    string        `json:"purchasePrice"`
	EscrowAmount     string        `json:"escrowAmount"`
	Listed           bool          `json:"listed"`
	InspectionPassed bool          `json:"inspectionPassed"`
	Approvals        approvalsJSON `json:"approvals"`
	Balance          string        `json:"balance"`
	Settleable       bool          `json:"settleable"`
	CreatedAt        int64         `json:"createdAt"`
}

type rolesJSON struct {
	Seller    string `json:"seller"`
	Lender    string `json:"lender"`
	Inspector string `json:"inspector"`
	Vault     string `json:"vault"`
	Registry  string `json:"registry"`
}

func (s *Server) handleEscrowList(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowListParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	buyer, err := parseBech32Address(params.Buyer)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	price, err := parsePositiveBigInt(params.PurchasePrice)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	earnest, err := parseNonNegativeBigInt(params.EscrowAmount)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	if err := s.node.EscrowList(caller, params.PropertyID, buyer, price, earnest); err != nil {
		return writeEscrowError(w, req.ID, err)
	}
	s.writeListing(w, req.ID, params.PropertyID)
	return 0
}

func (s *Server) handleEscrowDepositEarnest(w http.ResponseWriter, req *RPCRequest) int {
	return s.handleEscrowTransfer(w, req, s.node.EscrowDepositEarnest)
}

func (s *Server) handleEscrowFundSale(w http.ResponseWriter, req *RPCRequest) int {
	return s.handleEscrowTransfer(w, req, s.node.EscrowFundSale)
}

func (s *Server) handleEscrowTransfer(w http.ResponseWriter, req *RPCRequest, op func([20]byte, uint64, *big.Int) error) int {
	var params escrowAmountParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	if err := op(caller, params.PropertyID, amount); err != nil {
		return writeEscrowError(w, req.ID, err)
	}
	s.writeListing(w, req.ID, params.PropertyID)
	return 0
}

func (s *Server) handleEscrowUpdateInspection(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowInspectionParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	if err := s.node.EscrowUpdateInspection(caller, params.PropertyID, params.Passed); err != nil {
		return writeEscrowError(w, req.ID, err)
	}
	s.writeListing(w, req.ID, params.PropertyID)
	return 0
}

func (s *Server) handleEscrowApproveSale(w http.ResponseWriter, req *RPCRequest) int {
	return s.handleEscrowAction(w, req, s.node.EscrowApproveSale)
}

func (s *Server) handleEscrowFinalizeSale(w http.ResponseWriter, req *RPCRequest) int {
	return s.handleEscrowAction(w, req, s.node.EscrowFinalizeSale)
}

func (s *Server) handleEscrowCancelSale(w http.ResponseWriter, req *RPCRequest) int {
	return s.handleEscrowAction(w, req, s.node.EscrowCancelSale)
}

func (s *Server) handleEscrowAction(w http.ResponseWriter, req *RPCRequest, op func([20]byte, uint64) error) int {
	var params escrowActorParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	if err := op(caller, params.PropertyID); err != nil {
		return writeEscrowError(w, req.ID, err)
	}
	s.writeListing(w, req.ID, params.PropertyID)
	return 0
}

func (s *Server) handleEscrowGetListing(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowIDParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	listing, ok := s.node.EscrowListing(params.PropertyID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", fmt.Sprintf("listing %d not found", params.PropertyID))
		return codeEscrowNotFound
	}
	writeResult(w, req.ID, s.renderListing(listing))
	return 0
}

func (s *Server) handleEscrowGetApproval(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowApprovalParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	party, err := parseBech32Address(params.Party)
	if err != nil {
		return invalidEscrowParams(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"approved": s.node.EscrowApproval(params.PropertyID, party)})
	return 0
}

func (s *Server) handleEscrowInspectionPassed(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowIDParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	writeResult(w, req.ID, map[string]bool{"passed": s.node.EscrowInspectionPassed(params.PropertyID)})
	return 0
}

// handleEscrowGetBalance reports the vault's aggregate balance together with
// the funds attributed to one listing when propertyId is supplied.
func (s *Server) handleEscrowGetBalance(w http.ResponseWriter, req *RPCRequest) int {
	var params struct {
		PropertyID *uint64 `json:"propertyId,omitempty"`
	}
	if len(req.Params) > 0 {
		if code := decodeParams(w, req, &params); code != 0 {
			return code
		}
	}
	result := map[string]string{"vaultBalance": s.node.EscrowVaultBalance().String()}
	if params.PropertyID != nil {
		result["listingBalance"] = s.node.EscrowListingBalance(*params.PropertyID).String()
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleEscrowRoles(w http.ResponseWriter, req *RPCRequest) int {
	roles := s.node.EscrowRoles()
	writeResult(w, req.ID, rolesJSON{
		Seller:    encodeBech32(roles.Seller),
		Lender:    encodeBech32(roles.Lender),
		Inspector: encodeBech32(roles.Inspector),
		Vault:     encodeBech32(escrow.VaultAddress),
		Registry:  encodeBech32(deed.ModuleAddress),
	})
	return 0
}

func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) int {
	var params escrowEventsParams
	if len(req.Params) > 0 {
		if code := decodeParams(w, req, &params); code != 0 {
			return code
		}
	}
	events := s.node.Events(strings.TrimSpace(params.Prefix), params.Limit)
	type eventJSON struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	out := make([]eventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, eventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeResult(w, req.ID, out)
	return 0
}

func (s *Server) writeListing(w http.ResponseWriter, id interface{}, propertyID uint64) {
	listing, ok := s.node.EscrowListing(propertyID)
	if !ok {
		writeResult(w, id, map[string]bool{"ok": true})
		return
	}
	writeResult(w, id, s.renderListing(listing))
}

func (s *Server) renderListing(listing *escrow.Listing) listingJSON {
	roles := s.node.EscrowRoles()
	return listingJSON{
		PropertyID:       listing.PropertyID,
		Buyer:            encodeBech32(listing.Buyer),
		PurchasePrice:    listing.PurchasePrice.String(),
		EscrowAmount:     listing.EscrowAmount.String(),
		Listed:           listing.Listed,
		InspectionPassed: s.node.EscrowInspectionPassed(listing.PropertyID),
		Approvals: approvalsJSON{
			Buyer:  s.node.EscrowApproval(listing.PropertyID, listing.Buyer),
			Seller: s.node.EscrowApproval(listing.PropertyID, roles.Seller),
			Lender: s.node.EscrowApproval(listing.PropertyID, roles.Lender),
		},
		Balance:    s.node.EscrowListingBalance(listing.PropertyID).String(),
		Settleable: s.node.EscrowSettleable(listing.PropertyID),
		CreatedAt:  listing.CreatedAt,
	}
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return codeEscrowInvalidParams
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return codeEscrowInvalidParams
	}
	return 0
}

func invalidEscrowParams(w http.ResponseWriter, id interface{}, err error) int {
	writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid_params", err.Error())
	return codeEscrowInvalidParams
}

func parseBech32Address(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}

func encodeBech32(addr [20]byte) string {
	return crypto.NewAddress(crypto.DeedPrefix, addr[:]).String()
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	amount, err := parseNonNegativeBigInt(value)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func writeEscrowError(w http.ResponseWriter, id interface{}, err error) int {
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrInvalidListing):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrPreconditionFailed),
		errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	case errors.Is(err, escrow.ErrExternalTransferFailed):
		status = http.StatusInternalServerError
		code = codeEscrowInternal
		message = "internal_error"
	}
	writeError(w, status, id, code, message, err.Error())
	return code
}
