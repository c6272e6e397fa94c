package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeedMintAndQuery(t *testing.T) {
	env := newTestEnv(t)

	var minted deedJSON
	requireResult(t, env.call(t, "deed_mint", deedMintParams{
		Caller: bech32Of(env.seller),
		URI:    "ipfs://deed/2",
	}), &minted)
	require.Equal(t, uint64(2), minted.TokenID)
	require.Equal(t, bech32Of(env.seller), minted.Owner)

	var uri map[string]string
	requireResult(t, env.call(t, "deed_tokenURI", deedIDParams{TokenID: 2}), &uri)
	require.Equal(t, "ipfs://deed/2", uri["uri"])
}

func TestDeedMintRejectsEmptyURI(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "deed_mint", deedMintParams{
		Caller: bech32Of(env.seller),
		URI:    "   ",
	})
	requireErrorCode(t, recorder, codeDeedInvalidParams)
}

func TestDeedApproveRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "deed_approve", deedApproveParams{
		Caller:   bech32Of(env.buyer),
		TokenID:  1,
		Operator: bech32Of(env.buyer),
	})
	rpcErr := requireErrorCode(t, recorder, codeDeedForbidden)
	require.Equal(t, "forbidden", rpcErr.Message)
}

func TestDeedOwnerOfUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "deed_ownerOf", deedIDParams{TokenID: 99})
	requireErrorCode(t, recorder, codeDeedNotFound)
}

func TestBankGetAccountDefaults(t *testing.T) {
	env := newTestEnv(t)
	fresh := newTestAddress(t)
	var account accountJSON
	requireResult(t, env.call(t, "bank_getAccount", accountParams{Address: bech32Of(fresh)}), &account)
	require.Equal(t, "0", account.Balance)
	require.Equal(t, uint64(0), account.Nonce)
}
