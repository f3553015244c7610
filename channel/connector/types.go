// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// IDLen is the length of a ChannelID in byte.
	IDLen = common.HashLength
	// StatusLen is the length of a packed Status in byte.
	StatusLen = 32
	// FingerprintLen is the length of the status fingerprint in byte.
	FingerprintLen = 20

	// MaxUint48 is the largest turn number or timestamp that fits a Status.
	MaxUint48 = uint64(1)<<48 - 1
)

type (
	// ChannelID uniquely identifies a channel.
	ChannelID = common.Hash
	// Destination is a 32 byte payout target. It is either a ChannelID or an
	// external address padded with 12 zero bytes.
	Destination = common.Hash
	// Asset identifies a token. The zero address is the native asset.
	Asset = common.Address
	// TurnNum of a state.
	TurnNum = uint64
	// Timestamp in seconds since the Unix epoch.
	Timestamp = uint64
	// Amount of an asset.
	Amount = *big.Int

	// ChannelData is the unpacked form of a channel's Status.
	ChannelData struct {
		// TurnNumRecord is the largest turn number that was registered.
		TurnNumRecord TurnNum
		// FinalizesAt is zero while the channel is open. Otherwise the time
		// at which the registered outcome becomes final.
		FinalizesAt Timestamp
		// StateHash of the registered state. Zero after a conclude.
		StateHash common.Hash
		// OutcomeHash of the registered outcome.
		OutcomeHash common.Hash
	}
)

// NativeAsset is the asset of the chain's currency.
var NativeAsset = Asset{}
