package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "operator.keystore.json")

	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), loaded.PubKey().Address().String())
}

func TestKeystoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.keystore.json")
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, SaveToKeystore(path, key, "right"))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestKeystoreRejectsBadInput(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	require.Error(t, SaveToKeystore("", key, "pass"))
	require.Error(t, SaveToKeystore(filepath.Join(t.TempDir(), "k.json"), nil, "pass"))
	_, err = LoadFromKeystore("   ", "pass")
	require.Error(t, err)
}

func TestKeystoreOverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.keystore.json")
	first, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, SaveToKeystore(path, first, "pass"))

	second, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, SaveToKeystore(path, second, "pass"))

	loaded, err := LoadFromKeystore(path, "pass")
	require.NoError(t, err)
	require.Equal(t, second.PubKey().Address().String(), loaded.PubKey().Address().String())
}
