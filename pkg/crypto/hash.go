// Package crypto provides the key material and signature scheme of the
// meshcash ledger: long-term main key pairs, single-use derived key pairs,
// Schnorr signatures over secp256k1 and BLAKE3 hashing.
package crypto

import (
	"github.com/meshcash/meshcash/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}
