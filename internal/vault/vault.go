// ABOUTME: AES-256-GCM authenticated encryption for the secret vault
// ABOUTME: Stores nonce || ciphertext || tag as one opaque blob, fails closed on decrypt

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// NonceSize is the GCM nonce length prepended to every blob.
const NonceSize = 12

// tagSize is the GCM authentication tag appended to the ciphertext.
const tagSize = 16

// ErrDecrypt is returned for every decryption failure: truncated blob,
// tampered ciphertext, or wrong key. Callers must not be able to tell
// these apart, and no partial plaintext is ever returned.
var ErrDecrypt = errors.New("vault: decryption failed")

// Cipher encrypts and decrypts secret values under a single process-wide
// key. Key rotation is not supported; the key is loaded once at startup.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadKey reads the key file and returns a ready Cipher.
// The file must contain exactly 32 raw bytes.
func LoadKey(path string) (*Cipher, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vault key file: %w", err)
	}
	c, err := New(key)
	if err != nil {
		return nil, fmt.Errorf("vault key file %s: %w", path, err)
	}
	return c, nil
}

// GenerateKeyFile writes a fresh random 32-byte key to path with 0600
// permissions. Fails if the file already exists, so an in-use key can
// never be silently replaced.
func GenerateKeyFile(path string) error {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return fmt.Errorf("generating vault key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating vault key file: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return fmt.Errorf("writing vault key file: %w", err)
	}
	return f.Close()
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce || ciphertext || tag as a single blob.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt and verifies its tag.
// Any failure returns ErrDecrypt.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+tagSize {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
