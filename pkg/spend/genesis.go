package spend

import (
	"sync"

	"github.com/meshcash/meshcash/config"
	"github.com/meshcash/meshcash/pkg/crypto"
	"github.com/meshcash/meshcash/pkg/types"
)

// The genesis spend is the sole trusted root of the ledger. Every
// implementation embeds the identical record; divergence here splits the
// network. It is reconstructed deterministically from the well-known key
// below rather than stored as opaque bytes, so its contents stay
// auditable in source form.

// GenesisSecretKeyHex is the well-known secret behind the genesis spend.
// The key is public by design: ownership of genesis value is bootstrapped
// out of band, not protected by this key.
const GenesisSecretKeyHex = "36f3258512e4b5571dbbc7422ada52961091ebf0e9f4fcb4a9691f86f74d2c09"

// GenesisDerivationIndex derives the genesis spend's own UniquePubkey.
var GenesisDerivationIndex = crypto.DerivationIndex{}

// GenesisOutputDerivationIndex derives the key the full supply is
// allocated to.
var GenesisOutputDerivationIndex = crypto.DerivationIndex{0: 1}

var (
	genesisOnce sync.Once
	genesisRec  *SignedSpend
	genesisNote *CashNote
)

func buildGenesis() {
	key, err := crypto.MainSecretKeyFromHex(GenesisSecretKeyHex)
	if err != nil {
		panic("spend: hardcoded genesis key is malformed: " + err.Error())
	}
	mainPub := key.MainPubkey()

	dk, err := key.DeriveKey(GenesisDerivationIndex)
	if err != nil {
		panic("spend: genesis key derivation failed: " + err.Error())
	}
	outputKey, err := mainPub.DeriveUniquePubkey(GenesisOutputDerivationIndex)
	if err != nil {
		panic("spend: genesis output derivation failed: " + err.Error())
	}

	s := &Spend{
		UniquePubkey: dk.UniquePubkey(),
		Ancestors:    nil,
		Descendants: map[crypto.UniquePubkey]types.Amount{
			outputKey: types.Amount(config.TotalSupply),
		},
	}
	signed, err := Sign(s, dk)
	if err != nil {
		panic("spend: signing genesis failed: " + err.Error())
	}
	genesisRec = signed
	genesisNote = &CashNote{
		MainPubkey:      mainPub,
		DerivationIndex: GenesisOutputDerivationIndex,
		ParentSpends:    []SignedSpend{*signed},
	}
}

// Genesis returns the embedded genesis SignedSpend.
func Genesis() *SignedSpend {
	genesisOnce.Do(buildGenesis)
	return genesisRec
}

// GenesisAddress returns the address the genesis spend is stored at.
func GenesisAddress() types.SpendAddress {
	return Genesis().Address()
}

// GenesisCashNote returns the cash note holding the full initial supply,
// spendable with the well-known genesis key. Used to bootstrap networks
// and test fixtures.
func GenesisCashNote() *CashNote {
	genesisOnce.Do(buildGenesis)
	note := *genesisNote
	return &note
}

// GenesisKey returns the well-known genesis main secret key.
func GenesisKey() *crypto.MainSecretKey {
	key, err := crypto.MainSecretKeyFromHex(GenesisSecretKeyHex)
	if err != nil {
		panic("spend: hardcoded genesis key is malformed: " + err.Error())
	}
	return key
}

// IsGenesis reports whether a record claims to be the genesis spend.
// Claiming is not being: Validate additionally requires byte equality
// with the embedded record.
func IsGenesis(ss *SignedSpend) bool {
	return ss.Spend.UniquePubkey == Genesis().Spend.UniquePubkey
}
