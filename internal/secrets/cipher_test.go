package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESGCM_RoundTrip(t *testing.T) {
	c, err := NewAESGCM(testKey())
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}

	ciphertext, err := c.Encrypt("sk-secret-12345")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if ciphertext == "sk-secret-12345" {
		t.Fatal("Ciphertext equals plaintext")
	}

	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if plaintext != "sk-secret-12345" {
		t.Errorf("Decrypted text doesn't match. Got %s", plaintext)
	}
}

func TestAESGCM_InvalidKeySizes(t *testing.T) {
	for _, size := range []int{0, 8, 15, 33} {
		if _, err := NewAESGCM(make([]byte, size)); err == nil {
			t.Errorf("Expected error for key size %d", size)
		}
	}
}

func TestNewAESGCMFromBase64(t *testing.T) {
	if _, err := NewAESGCMFromBase64(""); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := NewAESGCMFromBase64("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := NewAESGCMFromBase64(base64.StdEncoding.EncodeToString(testKey())); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestAESGCM_DecryptFailures(t *testing.T) {
	c, err := NewAESGCM(testKey())
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}

	other, err := NewAESGCM(make([]byte, 32))
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}
	foreign, err := other.Encrypt("value")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	tests := []struct {
		name       string
		ciphertext string
	}{
		{"invalid base64", "%%%"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"wrong key", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.ciphertext)
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("Expected ErrDecryption, got %v", err)
			}
		})
	}
}

func TestResolve_EncryptedLiteralWithDecrypter(t *testing.T) {
	c, err := NewAESGCM(testKey())
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}
	ciphertext, err := c.Encrypt("sk-plain")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	r := NewResolver(WithDecrypter(c))

	value, err := r.Resolve(context.Background(), EncryptedLiteral(ciphertext))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if value != "sk-plain" {
		t.Errorf("Expected sk-plain, got %s", value)
	}

	// Unencrypted literals bypass the decrypter
	value, err = r.Resolve(context.Background(), Literal("as-is"))
	if err != nil || value != "as-is" {
		t.Errorf("Expected as-is, got %q (%v)", value, err)
	}

	if _, err := r.Resolve(context.Background(), EncryptedLiteral("garbage")); !errors.Is(err, ErrDecryption) {
		t.Errorf("Expected ErrDecryption, got %v", err)
	}
}
