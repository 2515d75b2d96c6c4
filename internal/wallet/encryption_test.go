package wallet

import (
	"bytes"
	"testing"
)

// testParams keeps argon2 cheap so the suite stays fast.
var testParams = EncryptionParams{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	password := []byte("correct horse battery staple")

	blob, err := Encrypt(plaintext, password, testParams)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := Decrypt(blob, password)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), []byte("password"), testParams)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(blob, []byte("not the password")); err == nil {
		t.Error("Decrypt succeeded with wrong password")
	}
}

func TestDecrypt_Corrupted(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), []byte("password"), testParams)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := Decrypt(blob, []byte("password")); err == nil {
		t.Error("Decrypt succeeded on corrupted data")
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	for _, n := range []int{0, 1, SaltSize, headerSize} {
		if _, err := Decrypt(make([]byte, n), []byte("password")); err == nil {
			t.Errorf("Decrypt succeeded on %d-byte input", n)
		}
	}
}

func TestEncrypt_UniqueCiphertexts(t *testing.T) {
	plaintext := []byte("same plaintext")
	password := []byte("same password")
	a, err := Encrypt(plaintext, password, testParams)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt(plaintext, password, testParams)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
}
