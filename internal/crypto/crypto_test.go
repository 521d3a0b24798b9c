package crypto

import (
	"strings"
	"testing"

	"github.com/mudgate/mudgate/internal/database"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cleanup := database.SetupTestDB(t)
	defer cleanup()

	tok, err := Encrypt("pw_0123456789abcdef")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if tok == "pw_0123456789abcdef" {
		t.Fatal("ciphertext equals plaintext")
	}
	if strings.Contains(tok, "0123456789abcdef") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := Decrypt(tok)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "pw_0123456789abcdef" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestKeyPersistsAcrossCalls(t *testing.T) {
	cleanup := database.SetupTestDB(t)
	defer cleanup()

	tok, err := Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	// Second call must reuse the stored key, not generate a new one.
	if _, err := Encrypt("other"); err != nil {
		t.Fatalf("second encrypt: %v", err)
	}
	got, err := Decrypt(tok)
	if err != nil || got != "secret" {
		t.Fatalf("decrypt with stored key: %q, %v", got, err)
	}
}

func TestDecryptInvalidToken(t *testing.T) {
	cleanup := database.SetupTestDB(t)
	defer cleanup()

	if _, err := Decrypt("not-a-token"); err == nil {
		t.Fatal("expected error for garbage token")
	}
	if got, err := Decrypt(""); err != nil || got != "" {
		t.Fatalf("empty ciphertext should decrypt to empty: %q, %v", got, err)
	}
}

func TestMask(t *testing.T) {
	if got := Mask(""); got != "" {
		t.Fatalf("Mask(\"\") = %q", got)
	}
	if got := Mask("ab"); got != "****" {
		t.Fatalf("Mask short = %q", got)
	}
	if got := Mask("pw_deadbeef"); got != "****beef" {
		t.Fatalf("Mask long = %q", got)
	}
}
