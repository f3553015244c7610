// SPDX-License-Identifier: Apache-2.0

package test

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/wallet"
	wtest "perun.network/perun-forcemove-backend/wallet/test"
)

const (
	// MaxAmount is the largest random allocation amount.
	MaxAmount = int64(1) << 30
	// DefaultChallengeDuration in seconds.
	DefaultChallengeDuration = 60
)

// NewRandomFixedPart returns a fixed part of the given participants with a
// random nonce and chain id.
func NewRandomFixedPart(rng *rand.Rand, parts []wallet.Address, appDef wallet.Address) channel.FixedPart {
	return channel.FixedPart{
		ChainID:           big.NewInt(rng.Int63n(1 << 20)),
		Participants:      parts,
		ChannelNonce:      rng.Uint64(),
		AppDefinition:     appDef,
		ChallengeDuration: DefaultChallengeDuration,
	}
}

// NewRandomAmount returns a random amount in [1, MaxAmount].
func NewRandomAmount(rng *rand.Rand) *big.Int {
	return big.NewInt(rng.Int63n(MaxAmount) + 1)
}

// NewRandomHash returns random 32 bytes.
func NewRandomHash(rng *rand.Rand) common.Hash {
	var h common.Hash
	rng.Read(h[:])
	return h
}

// NewRandomAsset returns a random token address.
func NewRandomAsset(rng *rand.Rand) channel.Asset {
	return channel.Asset(wtest.NewRandomAddress(rng))
}

// NewRandomExit returns an outcome with one random simple allocation per
// destination for each asset.
func NewRandomExit(rng *rand.Rand, assets []channel.Asset, dests ...channel.Destination) channel.Exit {
	exit := make(channel.Exit, len(assets))
	for i, asset := range assets {
		allocs := make([]channel.Allocation, len(dests))
		for j, d := range dests {
			allocs[j] = channel.NewSimpleAllocation(d, NewRandomAmount(rng))
		}
		exit[i] = channel.SingleAssetExit{
			Asset:         asset,
			AssetMetadata: channel.AssetMetadata{Metadata: []byte{}},
			Allocations:   allocs,
		}
	}
	return exit
}

// NewRandomVariablePart returns a non-final variable part with random app data.
func NewRandomVariablePart(rng *rand.Rand, turnNum uint64, outcome channel.Exit) channel.VariablePart {
	appData := make([]byte, rng.Intn(64))
	rng.Read(appData)
	return channel.VariablePart{
		Outcome: outcome,
		AppData: appData,
		TurnNum: turnNum,
	}
}

// Sum returns the total amount of allocations.
func Sum(allocs []channel.Allocation) *big.Int {
	sum := new(big.Int)
	for _, a := range allocs {
		sum.Add(sum, a.Amount)
	}
	return sum
}
