package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// EphemeralKey is a throwaway key pair used on the sending side of an
// ECIES exchange. It lives for one encryption and is then discarded.
type EphemeralKey struct {
	key *secp256k1.PrivateKey
}

// NewEphemeralKey generates a fresh ephemeral key pair.
func NewEphemeralKey() (*EphemeralKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &EphemeralKey{key: key}, nil
}

// PublicBytes returns the compressed public half, transmitted alongside
// the ciphertext.
func (ek *EphemeralKey) PublicBytes() []byte {
	return ek.key.PubKey().SerializeCompressed()
}

// SharedSecret computes the ECDH shared secret with a recipient's
// MainPubkey. The result feeds a KDF, never a cipher directly.
func (ek *EphemeralKey) SharedSecret(peer MainPubkey) ([]byte, error) {
	pub, err := secp256k1.ParsePubKey(peer[:])
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	return secp256k1.GenerateSharedSecret(ek.key, pub), nil
}

// Zero securely zeroes the ephemeral secret.
func (ek *EphemeralKey) Zero() {
	ek.key.Zero()
}

// SharedSecret computes the ECDH shared secret with a sender's ephemeral
// public key, recovering the same value the sender derived.
func (sk *MainSecretKey) SharedSecret(ephemeralPub []byte) ([]byte, error) {
	pub, err := secp256k1.ParsePubKey(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	return secp256k1.GenerateSharedSecret(sk.key, pub), nil
}
