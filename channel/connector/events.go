// Copyright 2023 - See NOTICE file for copyright holders.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connector

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// EventPredicate can be used to filter events.
	EventPredicate func(Event) bool

	// Event is emitted by a committed store transaction.
	Event interface {
		ID() ChannelID
		Time() Timestamp
	}

	// EventBase is embedded by all events.
	EventBase struct {
		IDV   ChannelID
		TimeV Timestamp
	}

	// ChallengeRegisteredEvent a challenge was registered.
	ChallengeRegisteredEvent struct {
		EventBase
		TurnNumRecord TurnNum
		FinalizesAt   Timestamp
		StateHash     common.Hash
		OutcomeHash   common.Hash
		Challenger    common.Address
	}

	// ChallengeClearedEvent a running challenge was cleared or a newer state
	// was checkpointed.
	ChallengeClearedEvent struct {
		EventBase
		TurnNumRecord TurnNum
	}

	// CheckpointedEvent a newer state was recorded on an open channel.
	CheckpointedEvent struct {
		EventBase
		TurnNumRecord TurnNum
	}

	// ConcludedEvent the channel was finalized with a unanimous final state.
	ConcludedEvent struct {
		EventBase
		TurnNumRecord TurnNum
		OutcomeHash   common.Hash
	}

	// DepositedEvent holdings of a channel increased.
	DepositedEvent struct {
		EventBase
		Asset    Asset
		Credited *big.Int
		Holdings *big.Int
	}

	// AllocationUpdatedEvent assets were paid out of a channel.
	AllocationUpdatedEvent struct {
		EventBase
		AssetIndex      int
		Asset           Asset
		InitialHoldings *big.Int
		FinalHoldings   *big.Int
	}

	// ReclaimedEvent a guarantee was removed from a channel's outcome.
	ReclaimedEvent struct {
		EventBase
		AssetIndex int
		Index      int
	}

	// WithdrawnEvent assets left the ledger to an external receiver.
	WithdrawnEvent struct {
		EventBase
		Asset    Asset
		Receiver common.Address
		Amount   *big.Int
	}
)

// ID returns the channel the event belongs to.
func (e EventBase) ID() ChannelID {
	return e.IDV
}

// Time returns the time at which the event was recorded.
func (e EventBase) Time() Timestamp {
	return e.TimeV
}

// ForChannel returns a predicate that matches all events of a channel.
func ForChannel(id ChannelID) EventPredicate {
	return func(e Event) bool {
		return e.ID() == id
	}
}
