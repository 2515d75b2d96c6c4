package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
)

// derivationContext domain-separates the derivation KDF from every other
// use of BLAKE3 in the protocol.
const derivationContext = "meshcash 2026-02 single-use key derivation"

// derivationTweak maps (main pubkey, index) to a non-zero scalar t, so
// that derived_pub = main_pub + t*G and derived_secret = main_secret + t
// always form a matching pair. The KDF is one-way: observing a derived
// key and a main key reveals nothing about the index.
//
// In the astronomically unlikely case the candidate falls outside the
// group order or is zero, the material is re-hashed with a counter so the
// function stays total and deterministic.
func derivationTweak(mp MainPubkey, index DerivationIndex) *secp256k1.ModNScalar {
	material := make([]byte, 0, PubkeySize+DerivationIndexSize+1)
	material = append(material, mp[:]...)
	material = append(material, index[:]...)

	var candidate [32]byte
	var t secp256k1.ModNScalar
	for counter := byte(0); ; counter++ {
		attempt := material
		if counter > 0 {
			attempt = append(append([]byte{}, material...), counter)
		}
		blake3.DeriveKey(derivationContext, attempt, candidate[:])
		overflow := t.SetBytes(&candidate)
		if overflow == 0 && !t.IsZero() {
			return &t
		}
	}
}
