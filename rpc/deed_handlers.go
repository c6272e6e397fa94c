package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"deedvault/native/deed"
)

const (
	codeDeedInvalidParams = -32031
	codeDeedNotFound      = -32032
	codeDeedForbidden     = -32033
)

type deedMintParams struct {
	Caller string `json:"caller"`
	URI    string `json:"uri"`
}

type deedApproveParams struct {
	Caller   string `json:"caller"`
	TokenID  uint64 `json:"tokenId"`
	Operator string `json:"operator,omitempty"`
}

type deedIDParams struct {
	TokenID uint64 `json:"tokenId"`
}

type deedJSON struct {
	TokenID  uint64 `json:"tokenId"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
	MintedAt int64  `json:"mintedAt"`
}

type accountParams struct {
	Address string `json:"address"`
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (s *Server) handleDeedMint(w http.ResponseWriter, req *RPCRequest) int {
	var params deedMintParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidDeedParams(w, req.ID, err)
	}
	tokenID, err := s.node.DeedMint(caller, strings.TrimSpace(params.URI))
	if err != nil {
		return writeDeedError(w, req.ID, err)
	}
	s.writeDeed(w, req.ID, tokenID)
	return 0
}

// handleDeedApprove grants (or with an empty operator, clears) transfer
// authority over a deed.
func (s *Server) handleDeedApprove(w http.ResponseWriter, req *RPCRequest) int {
	var params deedApproveParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return invalidDeedParams(w, req.ID, err)
	}
	var operator [20]byte
	if strings.TrimSpace(params.Operator) != "" {
		operator, err = parseBech32Address(params.Operator)
		if err != nil {
			return invalidDeedParams(w, req.ID, err)
		}
	}
	if err := s.node.DeedApprove(caller, params.TokenID, operator); err != nil {
		return writeDeedError(w, req.ID, err)
	}
	s.writeDeed(w, req.ID, params.TokenID)
	return 0
}

func (s *Server) handleDeedOwnerOf(w http.ResponseWriter, req *RPCRequest) int {
	var params deedIDParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	owner, err := s.node.DeedOwnerOf(params.TokenID)
	if err != nil {
		return writeDeedError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]string{"owner": encodeBech32(owner)})
	return 0
}

func (s *Server) handleDeedTokenURI(w http.ResponseWriter, req *RPCRequest) int {
	var params deedIDParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	record, ok := s.node.DeedGet(params.TokenID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeDeedNotFound, "not_found", fmt.Sprintf("deed %d not found", params.TokenID))
		return codeDeedNotFound
	}
	writeResult(w, req.ID, map[string]string{"uri": record.URI})
	return 0
}

func (s *Server) handleGetAccount(w http.ResponseWriter, req *RPCRequest) int {
	var params accountParams
	if code := decodeParams(w, req, &params); code != 0 {
		return code
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return invalidDeedParams(w, req.ID, err)
	}
	account, err := s.node.GetAccount(addr[:])
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return codeServerError
	}
	writeResult(w, req.ID, accountJSON{
		Address: encodeBech32(addr),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
	return 0
}

func (s *Server) writeDeed(w http.ResponseWriter, id interface{}, tokenID uint64) {
	record, ok := s.node.DeedGet(tokenID)
	if !ok {
		writeResult(w, id, map[string]bool{"ok": true})
		return
	}
	out := deedJSON{
		TokenID:  record.TokenID,
		Owner:    encodeBech32(record.Owner),
		URI:      record.URI,
		MintedAt: record.MintedAt,
	}
	if record.Approved != ([20]byte{}) {
		out.Approved = encodeBech32(record.Approved)
	}
	writeResult(w, id, out)
}

func invalidDeedParams(w http.ResponseWriter, id interface{}, err error) int {
	writeError(w, http.StatusBadRequest, id, codeDeedInvalidParams, "invalid_params", err.Error())
	return codeDeedInvalidParams
}

func writeDeedError(w http.ResponseWriter, id interface{}, err error) int {
	status := http.StatusInternalServerError
	code := codeServerError
	message := "internal_error"
	switch {
	case errors.Is(err, deed.ErrNotFound):
		status = http.StatusNotFound
		code = codeDeedNotFound
		message = "not_found"
	case errors.Is(err, deed.ErrNotOwner), errors.Is(err, deed.ErrUnauthorizedOperator):
		status = http.StatusForbidden
		code = codeDeedForbidden
		message = "forbidden"
	case errors.Is(err, deed.ErrInvalidDeed):
		status = http.StatusBadRequest
		code = codeDeedInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, err.Error())
	return code
}
