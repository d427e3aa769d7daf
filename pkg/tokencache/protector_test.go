package tokencache

import (
	"bytes"
	"errors"
	"testing"
)

func TestProtector_RoundTrip(t *testing.T) {
	p, err := NewProtector([]byte("test-secret"), "canvass.tokencache")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}

	plaintext := []byte(`[{"resource":"api","token":{"access_token":"x"}}]`)
	protected, err := p.Protect(plaintext)
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	if bytes.Contains(protected, []byte("access_token")) {
		t.Error("Expected ciphertext to not contain plaintext")
	}

	got, err := p.Unprotect(protected)
	if err != nil {
		t.Fatalf("Unprotect failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Expected round trip to yield original bytes, got %q", got)
	}
}

func TestProtector_NonDeterministicCiphertext(t *testing.T) {
	p, err := NewProtector([]byte("test-secret"), "canvass.tokencache")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}

	a, _ := p.Protect([]byte("same input"))
	b, _ := p.Protect([]byte("same input"))
	if bytes.Equal(a, b) {
		t.Error("Expected fresh nonce per Protect call")
	}
}

func TestProtector_DifferentPurposeFails(t *testing.T) {
	secret := []byte("shared-secret")
	tokens, err := NewProtector(secret, "canvass.tokencache")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}
	sessions, err := NewProtector(secret, "canvass.session")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}

	protected, err := tokens.Protect([]byte("token material"))
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}

	_, err = sessions.Unprotect(protected)
	if !errors.Is(err, ErrProtectionFailure) {
		t.Errorf("Expected ErrProtectionFailure for foreign purpose, got %v", err)
	}
}

func TestProtector_TamperedCiphertextFails(t *testing.T) {
	p, err := NewProtector([]byte("test-secret"), "canvass.tokencache")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}

	protected, err := p.Protect([]byte("payload"))
	if err != nil {
		t.Fatalf("Protect failed: %v", err)
	}
	protected[len(protected)-1] ^= 0x01

	_, err = p.Unprotect(protected)
	if !errors.Is(err, ErrProtectionFailure) {
		t.Errorf("Expected ErrProtectionFailure for tampered blob, got %v", err)
	}
}

func TestProtector_TruncatedBlobFails(t *testing.T) {
	p, err := NewProtector([]byte("test-secret"), "canvass.tokencache")
	if err != nil {
		t.Fatalf("NewProtector failed: %v", err)
	}

	_, err = p.Unprotect([]byte{0x01, 0x02})
	if !errors.Is(err, ErrProtectionFailure) {
		t.Errorf("Expected ErrProtectionFailure for truncated blob, got %v", err)
	}
}

func TestNewProtector_Validation(t *testing.T) {
	if _, err := NewProtector(nil, "purpose"); err == nil {
		t.Error("Expected error for empty secret")
	}
	if _, err := NewProtector([]byte("secret"), ""); err == nil {
		t.Error("Expected error for empty purpose")
	}
}
