// Package config holds protocol constants shared by every meshcash
// participant. These are consensus-critical: a node or wallet built with
// different values belongs to a different network.
package config

// Denomination constants.
// 1 coin = 10^9 base units (nanos). All ledger values are in nanos.
const (
	Decimals = 9
	Coin     = 1_000_000_000 // 10^9 nanos per coin
)

// TotalSupply is the fixed amount of nanos minted by the genesis spend.
// No other issuance path exists: every valid spend chain conserves value
// back to this single allocation.
const TotalSupply uint64 = 4_294_967_295 * Coin

// Protocol limits.
const (
	// MaxSpendInputs bounds how many owned keys one send may consume.
	MaxSpendInputs = 100

	// MaxSpendOutputs bounds the descendants map of a single spend.
	MaxSpendOutputs = 100
)

// NetworkID isolates the DHT and gossip namespaces per network.
const NetworkID = "meshcash-main-1"
