package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deedvault/native/deed"
	"deedvault/native/escrow"

	"github.com/stretchr/testify/require"
)

func postRaw(t *testing.T, env *testEnv, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	recorder := postRaw(t, env, "   ", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	requireErrorCode(t, recorder, codeInvalidRequest)
}

func TestHandleRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	recorder := postRaw(t, env, "{not json", nil)
	requireErrorCode(t, recorder, codeParseError)
}

func TestHandleRejectsWrongVersion(t *testing.T) {
	env := newTestEnv(t)
	recorder := postRaw(t, env, `{"jsonrpc":"1.0","id":1,"method":"escrow_roles"}`, nil)
	requireErrorCode(t, recorder, codeInvalidRequest)
}

func TestHandleUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	recorder := postRaw(t, env, `{"jsonrpc":"2.0","id":1,"method":"escrow_doesNotExist"}`, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	requireErrorCode(t, recorder, codeMethodNotFound)
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"escrow_approveSale","params":[{"caller":"` + bech32Of(env.buyer) + `","propertyId":1}]}`

	recorder := postRaw(t, env, body, nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	requireErrorCode(t, recorder, codeUnauthorized)

	recorder = postRaw(t, env, body, map[string]string{"Authorization": "Bearer wrong-token"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	requireErrorCode(t, recorder, codeUnauthorized)
}

func TestReadMethodsOpenWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	recorder := postRaw(t, env, `{"jsonrpc":"2.0","id":1,"method":"escrow_roles"}`, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var roles rolesJSON
	result, rpcErr := decodeRPCResponse(t, recorder)
	require.Nil(t, rpcErr)
	require.NoError(t, json.Unmarshal(result, &roles))
	require.Equal(t, bech32Of(env.seller), roles.Seller)
	require.Equal(t, bech32Of(escrow.VaultAddress), roles.Vault)
	require.Equal(t, bech32Of(deed.ModuleAddress), roles.Registry)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"ok"`)
}

func TestRateLimiterWindow(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	for i := 0; i < maxTxPerWindow; i++ {
		require.True(t, env.server.allowSource("10.0.0.1", now))
	}
	require.False(t, env.server.allowSource("10.0.0.1", now))
	// A different source has its own window.
	require.True(t, env.server.allowSource("10.0.0.2", now))
	// The window resets after it elapses.
	require.True(t, env.server.allowSource("10.0.0.1", now.Add(rateLimitWindow)))
}
