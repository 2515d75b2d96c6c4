package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/meshcash/meshcash/pkg/types"
)

// PubkeySize is the size of a compressed secp256k1 public key.
const PubkeySize = 33

// SignatureSize is the size of a serialized Schnorr signature.
const SignatureSize = 64

// DerivationIndexSize is the size of a derivation index in bytes.
const DerivationIndexSize = 32

// DerivationIndex is the secret value that links a single-use key pair to
// a main key pair. It must never be reused across recipients: whoever
// learns it can tie the derived UniquePubkey back to the MainPubkey.
type DerivationIndex [DerivationIndexSize]byte

// RandomDerivationIndex returns a fresh unguessable derivation index.
func RandomDerivationIndex() (DerivationIndex, error) {
	var idx DerivationIndex
	if _, err := rand.Read(idx[:]); err != nil {
		return idx, fmt.Errorf("generate derivation index: %w", err)
	}
	return idx, nil
}

// String prints an abbreviated form. The full index is a secret and is
// deliberately never formatted.
func (idx DerivationIndex) String() string {
	return fmt.Sprintf("%02x%02x%02x..", idx[0], idx[1], idx[2])
}

// MainPubkey is the long-term public identity of a wallet, shared with
// anyone who wants to pay it. It never owns funds directly: payments go
// to single-use UniquePubkeys derived from it.
type MainPubkey [PubkeySize]byte

// ParseMainPubkey decodes a hex-encoded compressed public key.
func ParseMainPubkey(s string) (MainPubkey, error) {
	var mp MainPubkey
	b, err := hex.DecodeString(s)
	if err != nil {
		return mp, fmt.Errorf("parse main pubkey: %w", err)
	}
	if len(b) != PubkeySize {
		return mp, fmt.Errorf("parse main pubkey: want %d bytes, got %d", PubkeySize, len(b))
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return mp, fmt.Errorf("parse main pubkey: %w", err)
	}
	copy(mp[:], b)
	return mp, nil
}

// String returns the hex encoding of the compressed key.
func (mp MainPubkey) String() string {
	return hex.EncodeToString(mp[:])
}

// DeriveUniquePubkey derives the single-use public key for the given
// index. It is deterministic, and without the index the result cannot be
// linked back to this MainPubkey.
func (mp MainPubkey) DeriveUniquePubkey(index DerivationIndex) (UniquePubkey, error) {
	var up UniquePubkey

	parent, err := secp256k1.ParsePubKey(mp[:])
	if err != nil {
		return up, fmt.Errorf("derive unique pubkey: %w", err)
	}
	tweak := derivationTweak(mp, index)

	// Q = P + t*G
	var tG, p, q secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(tweak, &tG)
	parent.AsJacobian(&p)
	secp256k1.AddNonConst(&p, &tG, &q)
	if (q.X.IsZero() && q.Y.IsZero()) || q.Z.IsZero() {
		return up, fmt.Errorf("derive unique pubkey: derived point at infinity")
	}
	q.ToAffine()

	derived := secp256k1.NewPublicKey(&q.X, &q.Y)
	copy(up[:], derived.SerializeCompressed())
	return up, nil
}

// UniquePubkey is a single-use public key, spendable exactly once. Its
// hash is the SpendAddress where the key's spend record is stored.
type UniquePubkey [PubkeySize]byte

// ParseUniquePubkey decodes a hex-encoded compressed public key.
func ParseUniquePubkey(s string) (UniquePubkey, error) {
	var up UniquePubkey
	b, err := hex.DecodeString(s)
	if err != nil {
		return up, fmt.Errorf("parse unique pubkey: %w", err)
	}
	if len(b) != PubkeySize {
		return up, fmt.Errorf("parse unique pubkey: want %d bytes, got %d", PubkeySize, len(b))
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return up, fmt.Errorf("parse unique pubkey: %w", err)
	}
	copy(up[:], b)
	return up, nil
}

// String returns the hex encoding of the compressed key.
func (up UniquePubkey) String() string {
	return hex.EncodeToString(up[:])
}

// SpendAddress returns the content address for this key's spend record:
// BLAKE3-256 of the compressed key bytes.
func (up UniquePubkey) SpendAddress() types.SpendAddress {
	return types.SpendAddress(Hash(up[:]))
}

// Verify checks a Schnorr signature over the BLAKE3 hash of msg.
// Returns false on any parse or verification failure.
func (up UniquePubkey) Verify(sig, msg []byte) bool {
	pub, err := secp256k1.ParsePubKey(up[:])
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	digest := Hash(msg)
	return parsed.Verify(digest[:], pub)
}

// MainSecretKey is the long-term secret of a wallet. It signs nothing on
// the ledger itself; its role is deriving the DerivedSecretKeys that
// unlock individual UniquePubkeys, and decrypting incoming transfers.
type MainSecretKey struct {
	key *secp256k1.PrivateKey
}

// GenerateMainSecretKey creates a new random main key.
func GenerateMainSecretKey() (*MainSecretKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate main key: %w", err)
	}
	return &MainSecretKey{key: key}, nil
}

// MainSecretKeyFromBytes creates a MainSecretKey from a 32-byte secret.
func MainSecretKeyFromBytes(b []byte) (*MainSecretKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("main secret key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("main secret key is zero")
	}
	return &MainSecretKey{key: key}, nil
}

// MainSecretKeyFromHex creates a MainSecretKey from a hex-encoded secret.
func MainSecretKeyFromHex(s string) (*MainSecretKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse main secret key: %w", err)
	}
	return MainSecretKeyFromBytes(b)
}

// MainPubkey returns the public identity for this secret key.
func (sk *MainSecretKey) MainPubkey() MainPubkey {
	var mp MainPubkey
	copy(mp[:], sk.key.PubKey().SerializeCompressed())
	return mp
}

// DeriveKey derives the secret key matching MainPubkey.DeriveUniquePubkey
// for the same index.
func (sk *MainSecretKey) DeriveKey(index DerivationIndex) (*DerivedSecretKey, error) {
	tweak := derivationTweak(sk.MainPubkey(), index)

	// d' = d + t mod n
	var d secp256k1.ModNScalar
	d.Set(&sk.key.Key)
	d.Add(tweak)
	if d.IsZero() {
		return nil, fmt.Errorf("derive secret key: derived scalar is zero")
	}
	return &DerivedSecretKey{key: secp256k1.NewPrivateKey(&d)}, nil
}

// Serialize returns the 32-byte secret scalar.
func (sk *MainSecretKey) Serialize() []byte {
	return sk.key.Serialize()
}

// Zero securely zeroes the secret key memory.
func (sk *MainSecretKey) Zero() {
	sk.key.Zero()
}

// DerivedSecretKey is the single-use secret key that unlocks the value
// held by its UniquePubkey.
type DerivedSecretKey struct {
	key *secp256k1.PrivateKey
}

// UniquePubkey returns the public key this secret unlocks.
func (dk *DerivedSecretKey) UniquePubkey() UniquePubkey {
	var up UniquePubkey
	copy(up[:], dk.key.PubKey().SerializeCompressed())
	return up
}

// Sign produces a Schnorr signature over the BLAKE3 hash of msg.
func (dk *DerivedSecretKey) Sign(msg []byte) ([]byte, error) {
	digest := Hash(msg)
	sig, err := schnorr.Sign(dk.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// Zero securely zeroes the secret key memory.
func (dk *DerivedSecretKey) Zero() {
	dk.key.Zero()
}
