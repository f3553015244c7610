// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"math/big"

	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/wallet"
)

// AllocationType distinguishes direct payouts from guarantees.
type AllocationType uint8

const (
	// SimpleAllocation pays its amount to the destination.
	SimpleAllocation AllocationType = iota
	// GuaranteeAllocation backs the payouts of the target channel named as
	// destination. Its metadata holds an encoded Guarantee.
	GuaranteeAllocation
)

type (
	// ID uniquely identifies a channel.
	ID = connector.ChannelID
	// Destination is a channel ID or a zero-padded external address.
	Destination = connector.Destination
	// Asset is a token address. The zero address is the native asset.
	Asset = connector.Asset

	// Allocation is a single payout entry of an outcome.
	Allocation struct {
		Destination    Destination
		Amount         *big.Int
		AllocationType AllocationType
		Metadata       []byte
	}

	// AssetMetadata describes the token standard of an asset.
	AssetMetadata struct {
		AssetType uint8
		Metadata  []byte
	}

	// SingleAssetExit lists the allocations of one asset.
	SingleAssetExit struct {
		Asset         Asset
		AssetMetadata AssetMetadata
		Allocations   []Allocation
	}

	// Exit is the outcome of a channel, one entry per asset.
	Exit []SingleAssetExit

	// Guarantee names the two destinations a guarantee allocation covers.
	Guarantee struct {
		Left  Destination
		Right Destination
	}

	// FixedPart holds the parameters that never change for a channel.
	FixedPart struct {
		ChainID           *big.Int
		Participants      []wallet.Address
		ChannelNonce      uint64
		AppDefinition     wallet.Address
		ChallengeDuration uint64
	}

	// VariablePart holds the parameters that change with every state.
	VariablePart struct {
		Outcome Exit
		AppData []byte
		TurnNum uint64
		IsFinal bool
	}

	// State is a full channel state.
	State struct {
		FixedPart
		VariablePart
	}

	// SignedVariablePart is a variable part together with the signatures
	// that were made on its state.
	SignedVariablePart struct {
		VariablePart
		Sigs []wallet.Sig
	}

	// RecoveredVariablePart is a variable part together with the bitfield of
	// participants that signed it.
	RecoveredVariablePart struct {
		VariablePart
		SignedBy *big.Int
	}

	// SupportProof is the input of a TransitionValidator.
	SupportProof struct {
		Proof     []RecoveredVariablePart
		Candidate RecoveredVariablePart
	}
)

// NativeAsset is the asset of the chain's currency.
var NativeAsset = connector.NativeAsset

// NewSimpleAllocation returns an allocation that pays amount to dest.
func NewSimpleAllocation(dest Destination, amount *big.Int) Allocation {
	return Allocation{
		Destination:    dest,
		Amount:         new(big.Int).Set(amount),
		AllocationType: SimpleAllocation,
	}
}

// NewGuaranteeAllocation returns a guarantee for target covering g.
func NewGuaranteeAllocation(target ID, amount *big.Int, g Guarantee) Allocation {
	return Allocation{
		Destination:    target,
		Amount:         new(big.Int).Set(amount),
		AllocationType: GuaranteeAllocation,
		Metadata:       EncodeGuarantee(g),
	}
}

// NewNativeExit returns a single asset exit of the native asset.
func NewNativeExit(allocs ...Allocation) Exit {
	return Exit{{Asset: NativeAsset, Allocations: allocs}}
}

// Clone returns a deep copy.
func (a Allocation) Clone() Allocation {
	c := a
	if a.Amount != nil {
		c.Amount = new(big.Int).Set(a.Amount)
	}
	if a.Metadata != nil {
		c.Metadata = append([]byte(nil), a.Metadata...)
	}
	return c
}

// Equal returns whether both allocations are identical.
func (a Allocation) Equal(b Allocation) bool {
	return a.Destination == b.Destination &&
		amountOf(a).Cmp(amountOf(b)) == 0 &&
		a.AllocationType == b.AllocationType &&
		string(a.Metadata) == string(b.Metadata)
}

// Clone returns a deep copy.
func (e SingleAssetExit) Clone() SingleAssetExit {
	c := e
	if e.AssetMetadata.Metadata != nil {
		c.AssetMetadata.Metadata = append([]byte(nil), e.AssetMetadata.Metadata...)
	}
	c.Allocations = cloneAllocations(e.Allocations)
	return c
}

// Equal returns whether both exits are identical.
func (e SingleAssetExit) Equal(f SingleAssetExit) bool {
	if e.Asset != f.Asset ||
		e.AssetMetadata.AssetType != f.AssetMetadata.AssetType ||
		string(e.AssetMetadata.Metadata) != string(f.AssetMetadata.Metadata) ||
		len(e.Allocations) != len(f.Allocations) {
		return false
	}
	for i := range e.Allocations {
		if !e.Allocations[i].Equal(f.Allocations[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (e Exit) Clone() Exit {
	if e == nil {
		return nil
	}
	c := make(Exit, len(e))
	for i := range e {
		c[i] = e[i].Clone()
	}
	return c
}

// Equal returns whether both exits are identical.
func (e Exit) Equal(f Exit) bool {
	if len(e) != len(f) {
		return false
	}
	for i := range e {
		if !e[i].Equal(f[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (v VariablePart) Clone() VariablePart {
	c := v
	c.Outcome = v.Outcome.Clone()
	if v.AppData != nil {
		c.AppData = append([]byte(nil), v.AppData...)
	}
	return c
}

// NumParticipants returns the number of participants.
func (f FixedPart) NumParticipants() int {
	return len(f.Participants)
}

// ParticipantIndex returns the index of addr in the participants or false.
func (f FixedPart) ParticipantIndex(addr wallet.Address) (uint, bool) {
	for i, p := range f.Participants {
		if p.Equal(addr) {
			return uint(i), true
		}
	}
	return 0, false
}

// ID returns the channel ID of the state.
func (s State) ID() (ID, error) {
	return CalcID(s.FixedPart)
}

// Hash returns the state hash.
func (s State) Hash() (Hash, error) {
	return HashState(s.FixedPart, s.VariablePart)
}

func cloneAllocations(allocs []Allocation) []Allocation {
	if allocs == nil {
		return nil
	}
	c := make([]Allocation, len(allocs))
	for i := range allocs {
		c[i] = allocs[i].Clone()
	}
	return c
}

func amountOf(a Allocation) *big.Int {
	if a.Amount == nil {
		return new(big.Int)
	}
	return a.Amount
}
