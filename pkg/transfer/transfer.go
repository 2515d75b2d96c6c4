// Package transfer implements the out-of-band payment notification: the
// minimal, encrypted information a sender hands a recipient so they can
// locate, verify and claim a payment. A Transfer is safe to move over
// any untrusted channel — chat, email, a public post — because
// confidentiality and integrity come from the codec, not the channel.
package transfer

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec errors.
var (
	// ErrAuthenticationFailed means the wrong key was used or the blob
	// was tampered with. Decoding fails closed: no partial result.
	ErrAuthenticationFailed = errors.New("transfer authentication failed")

	// ErrMalformedTransfer means the blob is structurally broken.
	ErrMalformedTransfer = errors.New("malformed transfer")
)

// kdfContext domain-separates the transfer KDF from key derivation.
const kdfContext = "meshcash 2026-02 transfer encryption"

// CashNoteRedemption tells a recipient where to claim one payment: the
// derivation index of the key paid to, and the addresses of the parent
// spends that fund it. Everything else is recomputed from the ledger.
type CashNoteRedemption struct {
	DerivationIndex      crypto.DerivationIndex `json:"derivation_index"`
	ParentSpendAddresses []types.SpendAddress   `json:"parent_spend_addresses"`
}

// Transfer is one or more CashNoteRedemptions authenticated-encrypted to
// the recipient's MainPubkey.
type Transfer struct {
	payload []byte
}

// Blob layout: ephemeral pubkey(33) | nonce(24) | AEAD ciphertext.
const (
	nonceSize   = chacha20poly1305.NonceSizeX
	minBlobSize = crypto.PubkeySize + nonceSize + chacha20poly1305.Overhead
)

// Encode encrypts the redemptions so only the holder of the matching
// MainSecretKey can read them: an ephemeral ECDH exchange against the
// recipient's key feeds a BLAKE3 KDF, and the result keys
// XChaCha20-Poly1305 over the serialized list.
func Encode(redemptions []CashNoteRedemption, recipient crypto.MainPubkey) (*Transfer, error) {
	if len(redemptions) == 0 {
		return nil, fmt.Errorf("%w: no redemptions", ErrMalformedTransfer)
	}
	plaintext, err := json.Marshal(redemptions)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	eph, err := crypto.NewEphemeralKey()
	if err != nil {
		return nil, err
	}
	defer eph.Zero()

	shared, err := eph.SharedSecret(recipient)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(kdfContext, shared, key)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	// The ephemeral pubkey is bound as associated data so it cannot be
	// swapped without failing authentication.
	ephPub := eph.PublicBytes()
	sealed := aead.Seal(nil, nonce, plaintext, ephPub)

	payload := make([]byte, 0, len(ephPub)+len(nonce)+len(sealed))
	payload = append(payload, ephPub...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)
	return &Transfer{payload: payload}, nil
}

// Decode decrypts a transfer with the recipient's main secret key. Any
// mismatch — wrong key, truncation, bit flip — yields
// ErrAuthenticationFailed and nothing else.
func Decode(t *Transfer, sk *crypto.MainSecretKey) ([]CashNoteRedemption, error) {
	if t == nil || len(t.payload) < minBlobSize {
		return nil, ErrMalformedTransfer
	}

	ephPub := t.payload[:crypto.PubkeySize]
	nonce := t.payload[crypto.PubkeySize : crypto.PubkeySize+nonceSize]
	sealed := t.payload[crypto.PubkeySize+nonceSize:]

	shared, err := sk.SharedSecret(ephPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransfer, err)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(kdfContext, shared, key)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, ephPub)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	var redemptions []CashNoteRedemption
	if err := json.Unmarshal(plaintext, &redemptions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransfer, err)
	}
	if len(redemptions) == 0 {
		return nil, ErrMalformedTransfer
	}
	return redemptions, nil
}

// ToHex serializes the transfer to a hex string a human can copy-paste.
func (t *Transfer) ToHex() string {
	return hex.EncodeToString(t.payload)
}

// FromHex deserializes a transfer from its hex form.
func FromHex(s string) (*Transfer, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransfer, err)
	}
	if len(b) < minBlobSize {
		return nil, ErrMalformedTransfer
	}
	return &Transfer{payload: b}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
