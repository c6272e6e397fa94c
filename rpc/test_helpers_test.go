package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"deedvault/core"
	"deedvault/crypto"
	"deedvault/storage"

	"github.com/stretchr/testify/require"
)

const testAuthToken = "test-rpc-token"

type testEnv struct {
	server *Server
	node   *core.Node

	seller    [20]byte
	buyer     [20]byte
	lender    [20]byte
	inspector [20]byte
}

func newTestAddress(t *testing.T) [20]byte {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	var out [20]byte
	copy(out[:], key.PubKey().Address().Bytes())
	return out
}

// newTestEnv boots a node over an in-memory database with funded buyer and
// lender accounts and deed 1 minted to the seller.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		seller:    newTestAddress(t),
		buyer:     newTestAddress(t),
		lender:    newTestAddress(t),
		inspector: newTestAddress(t),
	}
	env.node = core.NewNode(storage.NewMemDB(), core.Roles{
		Seller:    env.seller,
		Lender:    env.lender,
		Inspector: env.inspector,
	}, nil)
	require.NoError(t, env.node.ApplyGenesis(
		[]core.GenesisAccount{
			{Address: env.buyer, Balance: big.NewInt(1000)},
			{Address: env.lender, Balance: big.NewInt(1000)},
		},
		[]core.GenesisDeed{{Owner: env.seller, URI: "ipfs://deed/1"}},
	))
	env.server = NewServer(env.node)
	env.server.authToken = testAuthToken
	return env
}

func bech32Of(addr [20]byte) string {
	return crypto.NewAddress(crypto.DeedPrefix, addr[:]).String()
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// call posts one JSON-RPC request through the full router with the test
// bearer token attached.
func (env *testEnv) call(t *testing.T, method string, params interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func decodeRPCResponse(t *testing.T, recorder *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp.Result, resp.Error
}

func requireResult(t *testing.T, recorder *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	result, rpcErr := decodeRPCResponse(t, recorder)
	require.Nil(t, rpcErr, "unexpected rpc error: %+v", rpcErr)
	require.NoError(t, json.Unmarshal(result, out))
}

func requireErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, code int) *RPCError {
	t.Helper()
	_, rpcErr := decodeRPCResponse(t, recorder)
	require.NotNil(t, rpcErr, "expected rpc error")
	require.Equal(t, code, rpcErr.Code)
	return rpcErr
}

// listProperty creates the default listing for deed 1 after approving the
// vault as operator.
func (env *testEnv) listProperty(t *testing.T, price, earnest int64) {
	t.Helper()
	var vaultResp rolesJSON
	requireResult(t, env.call(t, "escrow_roles", nil), &vaultResp)
	requireResult(t, env.call(t, "deed_approve", deedApproveParams{
		Caller:   bech32Of(env.seller),
		TokenID:  1,
		Operator: vaultResp.Vault,
	}), &deedJSON{})
	var listing listingJSON
	requireResult(t, env.call(t, "escrow_list", escrowListParams{
		Caller:        bech32Of(env.seller),
		PropertyID:    1,
		Buyer:         bech32Of(env.buyer),
		PurchasePrice: big.NewInt(price).String(),
		EscrowAmount:  big.NewInt(earnest).String(),
	}), &listing)
	require.True(t, listing.Listed)
}
