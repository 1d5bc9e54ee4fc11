// ABOUTME: Tests for the AES-256-GCM vault cipher
// ABOUTME: Covers round-trips, fail-closed decryption, and key file handling

package vault

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	c, err := New(key)
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	values := [][]byte{
		[]byte("hunter2"),
		[]byte(""),
		[]byte("multi\nline\nvalue with spaces"),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}

	for _, v := range values {
		blob, err := c.Encrypt(v)
		require.NoError(t, err)
		assert.Equal(t, NonceSize+len(v)+16, len(blob))

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	// Same plaintext must never produce the same blob twice.
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
}

func TestDecryptTampered(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt([]byte("integrity matters"))
	require.NoError(t, err)

	// Flip one bit in every position: nonce, ciphertext, tag.
	for _, i := range []int{0, NonceSize, len(blob) - 1} {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01

		got, err := c.Decrypt(tampered)
		assert.ErrorIs(t, err, ErrDecrypt)
		assert.Nil(t, got)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	blob, err := newTestCipher(t).Encrypt([]byte("sealed under key A"))
	require.NoError(t, err)

	got, err := newTestCipher(t).Decrypt(blob)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.Nil(t, got)
}

func TestDecryptTruncated(t *testing.T) {
	c := newTestCipher(t)

	for _, blob := range [][]byte{nil, {}, make([]byte, NonceSize), make([]byte, NonceSize+15)} {
		_, err := c.Decrypt(blob)
		assert.ErrorIs(t, err, ErrDecrypt)
	}
}

func TestNewRejectsBadKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := New(make([]byte, n))
		assert.Error(t, err, "key size %d", n)
	}
}

func TestLoadKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.key")

	require.NoError(t, GenerateKeyFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, int64(KeySize), info.Size())

	c, err := LoadKey(path)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("loaded from disk"))
	require.NoError(t, err)

	// A second load of the same file decrypts what the first sealed.
	c2, err := LoadKey(path)
	require.NoError(t, err)
	got, err := c2.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("loaded from disk"), got)
}

func TestGenerateKeyFileRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.key")
	require.NoError(t, GenerateKeyFile(path))
	assert.Error(t, GenerateKeyFile(path))
}

func TestLoadKeyMissingFile(t *testing.T) {
	_, err := LoadKey(filepath.Join(t.TempDir(), "nope.key"))
	assert.Error(t, err)
}

func TestLoadKeyWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0600))
	_, err := LoadKey(path)
	assert.Error(t, err)
}
