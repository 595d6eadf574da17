package vault

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RoundTrip(t *testing.T) {
	cfg := domain.VaultConfig{KeyPath: filepath.Join(t.TempDir(), "vault.key")}

	v, err := New(logger.Mock(), cfg)
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("webdav-password")
	require.NoError(t, err)
	assert.NotEqual(t, "webdav-password", ciphertext)

	plain, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "webdav-password", plain)

	// two encryptions of the same plaintext differ (fresh nonce)
	other, err := v.Encrypt("webdav-password")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, other)
}

func TestVault_KeyPersistsAcrossInstances(t *testing.T) {
	cfg := domain.VaultConfig{KeyPath: filepath.Join(t.TempDir(), "vault.key")}

	v1, err := New(logger.Mock(), cfg)
	require.NoError(t, err)
	ciphertext, err := v1.Encrypt("secret")
	require.NoError(t, err)

	v2, err := New(logger.Mock(), cfg)
	require.NoError(t, err)
	plain, err := v2.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

func TestVault_DecryptFailureIsClassified(t *testing.T) {
	cfg := domain.VaultConfig{KeyPath: filepath.Join(t.TempDir(), "vault.key")}
	v, err := New(logger.Mock(), cfg)
	require.NoError(t, err)

	t.Run("not base64", func(t *testing.T) {
		_, err := v.Decrypt("%%%not-base64%%%")
		require.Error(t, err)
		class, _ := domain.ClassifyError(err)
		assert.Equal(t, domain.ErrorClassFormat, class)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		ciphertext, err := v.Encrypt("secret")
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(ciphertext)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff
		_, err = v.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		ciphertext, err := v.Encrypt("secret")
		require.NoError(t, err)

		otherCfg := domain.VaultConfig{KeyPath: filepath.Join(t.TempDir(), "vault.key")}
		other, err := New(logger.Mock(), otherCfg)
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext)
		require.Error(t, err)
		_, code := domain.ClassifyError(err)
		assert.Equal(t, "decrypt-failed", code)
	})
}

func TestVault_MasterPassphraseDerivation(t *testing.T) {
	dir := t.TempDir()
	cfg := domain.VaultConfig{
		KeyPath:          filepath.Join(dir, "vault.key"),
		MasterPassphrase: "correct horse battery staple",
	}

	v1, err := New(logger.Mock(), cfg)
	require.NoError(t, err)
	ciphertext, err := v1.Encrypt("secret")
	require.NoError(t, err)

	// same passphrase and salt derive the same key
	v2, err := New(logger.Mock(), cfg)
	require.NoError(t, err)
	plain, err := v2.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	// different passphrase fails to decrypt
	cfg.MasterPassphrase = "wrong"
	v3, err := New(logger.Mock(), cfg)
	require.NoError(t, err)
	_, err = v3.Decrypt(ciphertext)
	assert.Error(t, err)
}
