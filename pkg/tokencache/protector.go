package tokencache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrProtectionFailure indicates a ciphertext could not be authenticated
// or decrypted. It is surfaced as-is, never treated as "no data": a blob
// that fails to decrypt is either corrupt or was written by a different
// protector, and silently returning garbage would be worse than failing.
var ErrProtectionFailure = errors.New("token blob protection failure")

// Protector performs authenticated encryption bound to a purpose string.
// Two protectors with the same secret but different purposes derive
// different keys, so ciphertexts cannot cross component boundaries.
type Protector struct {
	aead    cipher.AEAD
	purpose string
}

// NewProtector derives an AES-256-GCM key from the secret and purpose via
// HKDF. The purpose is additionally bound as associated data on every
// seal, so even a key collision cannot make a foreign blob decrypt here.
func NewProtector(secret []byte, purpose string) (*Protector, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("protection secret is required")
	}
	if purpose == "" {
		return nil, fmt.Errorf("protector purpose is required")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive protection key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Protector{aead: aead, purpose: purpose}, nil
}

// Protect encrypts and authenticates plaintext. The output is
// nonce || ciphertext and is only readable by a protector constructed
// with the same secret and purpose.
func (p *Protector) Protect(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, plaintext, []byte(p.purpose)), nil
}

// Unprotect authenticates and decrypts a blob produced by Protect.
func (p *Protector) Unprotect(protected []byte) ([]byte, error) {
	if len(protected) < p.aead.NonceSize() {
		return nil, fmt.Errorf("%w: blob too short", ErrProtectionFailure)
	}
	nonce := protected[:p.aead.NonceSize()]
	ciphertext := protected[p.aead.NonceSize():]

	plaintext, err := p.aead.Open(nil, nonce, ciphertext, []byte(p.purpose))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtectionFailure, err)
	}
	return plaintext, nil
}
