// Package blobcodec encrypts and decrypts opaque strings with an optional
// 32-byte key. Without a key both directions are the identity transform.
package blobcodec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of an EncryptionKey in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrInvalidKeyLength = errors.New("encryption key must be 32 bytes")
	ErrInvalidBase64    = errors.New("invalid base64")
	ErrTooShort         = errors.New("decoded data too short")
	ErrDecryptFailed    = errors.New("decryption failed")
)

// EncryptionKey is a raw 32-byte symmetric key.
type EncryptionKey [KeySize]byte

// KeyFromHex parses a hex-encoded 32-byte key.
func KeyFromHex(s string) (*EncryptionKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex key: %w", err)
	}

	return KeyFromBytes(raw)
}

// KeyFromBytes copies raw into a new key.
func KeyFromBytes(raw []byte) (*EncryptionKey, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(raw))
	}

	var k EncryptionKey
	copy(k[:], raw)

	return &k, nil
}

// GenerateKey returns a random key.
func GenerateKey() (*EncryptionKey, error) {
	var k EncryptionKey
	if _, err := rand.Read(k[:]); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	return &k, nil
}

// Hex returns the key as lowercase hex.
func (k *EncryptionKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Codec seals strings as base64(nonce || ciphertext) with
// ChaCha20-Poly1305. A nil key disables encryption.
type Codec struct {
	key *EncryptionKey
}

// New returns a codec for key. key may be nil.
func New(key *EncryptionKey) *Codec {
	return &Codec{key: key}
}

// Enabled reports whether the codec has a key.
func (c *Codec) Enabled() bool {
	return c != nil && c.key != nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A payload sealed under a different key
// fails with ErrDecryptFailed.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if !c.Enabled() {
		return ciphertext, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBase64, err)
	}

	if len(raw) < chacha20poly1305.NonceSize {
		return "", ErrTooShort
	}

	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce, sealed := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptFailed)
	}

	return string(plain), nil
}
