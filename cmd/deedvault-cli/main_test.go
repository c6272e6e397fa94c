package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyGlobalFlags(t *testing.T) {
	original := rpcEndpoint
	defer func() { rpcEndpoint = original }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://10.0.0.5:8545", "balance", "deed1xyz"})
	require.NoError(t, err)
	require.Equal(t, []string{"balance", "deed1xyz"}, args)
	require.Equal(t, "http://10.0.0.5:8545", rpcEndpoint)

	args, err = applyGlobalFlags([]string{"--rpc=http://localhost:9999", "escrow", "roles"})
	require.NoError(t, err)
	require.Equal(t, []string{"escrow", "roles"}, args)
	require.Equal(t, "http://localhost:9999", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}

func TestParsePropertyID(t *testing.T) {
	id, ok := parsePropertyID("7")
	require.True(t, ok)
	require.Equal(t, uint64(7), id)

	_, ok = parsePropertyID("0")
	require.False(t, ok)

	_, ok = parsePropertyID("not-a-number")
	require.False(t, ok)
}
