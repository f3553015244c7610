// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"perun.network/perun-forcemove-backend/channel/connector"
)

// Hash is a keccak256 digest.
type Hash = common.Hash

type (
	abiAllocation struct {
		Destination    [32]byte
		Amount         *big.Int
		AllocationType uint8
		Metadata       []byte
	}

	abiAssetMetadata struct {
		AssetType uint8
		Metadata  []byte
	}

	abiSingleAssetExit struct {
		Asset         common.Address
		AssetMetadata abiAssetMetadata
		Allocations   []abiAllocation
	}
)

var (
	abiUint256, abiUint64, abiUint48 abi.Type
	abiAddress, abiAddresses         abi.Type
	abiBytes32, abiBytes, abiBool    abi.Type
	abiString, abiExit               abi.Type

	fixedPartArgs abi.Arguments
	stateArgs     abi.Arguments
	exitArgs      abi.Arguments
	guaranteeArgs abi.Arguments
	challengeArgs abi.Arguments
)

func init() {
	abiUint256 = mustType("uint256", nil)
	abiUint64 = mustType("uint64", nil)
	abiUint48 = mustType("uint48", nil)
	abiAddress = mustType("address", nil)
	abiAddresses = mustType("address[]", nil)
	abiBytes32 = mustType("bytes32", nil)
	abiBytes = mustType("bytes", nil)
	abiBool = mustType("bool", nil)
	abiString = mustType("string", nil)
	abiExit = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "asset", Type: "address"},
		{Name: "assetMetadata", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "assetType", Type: "uint8"},
			{Name: "metadata", Type: "bytes"},
		}},
		{Name: "allocations", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "destination", Type: "bytes32"},
			{Name: "amount", Type: "uint256"},
			{Name: "allocationType", Type: "uint8"},
			{Name: "metadata", Type: "bytes"},
		}},
	})

	fixedPartArgs = abi.Arguments{
		{Type: abiUint256}, {Type: abiAddresses}, {Type: abiUint64}, {Type: abiAddress}, {Type: abiUint48},
	}
	stateArgs = abi.Arguments{
		{Type: abiBytes32}, {Type: abiBytes}, {Type: abiExit}, {Type: abiUint48}, {Type: abiBool},
	}
	exitArgs = abi.Arguments{{Type: abiExit}}
	guaranteeArgs = abi.Arguments{{Type: abiBytes32}, {Type: abiBytes32}}
	challengeArgs = abi.Arguments{{Type: abiBytes32}, {Type: abiString}}
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// encodeFixedPart returns abi.encode(chainId, participants, channelNonce,
// appDefinition, challengeDuration).
func encodeFixedPart(f FixedPart) ([]byte, error) {
	if f.ChallengeDuration > connector.MaxUint48 {
		return nil, errors.WithMessagef(connector.ErrOverflow, "challengeDuration %d", f.ChallengeDuration)
	}
	chainID := f.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	parts := make([]common.Address, len(f.Participants))
	for i, p := range f.Participants {
		parts[i] = p.AsEthAddress()
	}
	return fixedPartArgs.Pack(
		chainID,
		parts,
		f.ChannelNonce,
		f.AppDefinition.AsEthAddress(),
		new(big.Int).SetUint64(f.ChallengeDuration),
	)
}

// encodeState returns abi.encode(channelId, appData, outcome, turnNum, isFinal).
func encodeState(id ID, v VariablePart) ([]byte, error) {
	if v.TurnNum > connector.MaxUint48 {
		return nil, errors.WithMessagef(connector.ErrOverflow, "turnNum %d", v.TurnNum)
	}
	appData := v.AppData
	if appData == nil {
		appData = []byte{}
	}
	return stateArgs.Pack(
		[32]byte(id),
		appData,
		toABIExit(v.Outcome),
		new(big.Int).SetUint64(v.TurnNum),
		v.IsFinal,
	)
}

// EncodeOutcome returns the canonical encoding of an outcome.
func EncodeOutcome(e Exit) ([]byte, error) {
	return exitArgs.Pack(toABIExit(e))
}

// DecodeOutcome decodes an outcome that was encoded by EncodeOutcome.
func DecodeOutcome(data []byte) (e Exit, err error) {
	values, err := exitArgs.Unpack(data)
	if err != nil {
		return nil, errors.WithMessage(ErrInvalidOutcome, err.Error())
	}
	defer func() {
		// abi.ConvertType panics on a shape mismatch.
		if r := recover(); r != nil {
			e, err = nil, errors.WithMessagef(ErrInvalidOutcome, "%v", r)
		}
	}()
	decoded := *abi.ConvertType(values[0], new([]abiSingleAssetExit)).(*[]abiSingleAssetExit)
	return fromABIExit(decoded), nil
}

// EncodeGuarantee returns abi.encode(left, right).
func EncodeGuarantee(g Guarantee) []byte {
	data, err := guaranteeArgs.Pack([32]byte(g.Left), [32]byte(g.Right))
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeGuarantee decodes the metadata of a guarantee allocation.
func DecodeGuarantee(data []byte) (Guarantee, error) {
	values, err := guaranteeArgs.Unpack(data)
	if err != nil {
		return Guarantee{}, errors.WithMessage(ErrInvalidOutcome, err.Error())
	}
	return Guarantee{
		Left:  values[0].([32]byte),
		Right: values[1].([32]byte),
	}, nil
}

func toABIExit(e Exit) []abiSingleAssetExit {
	out := make([]abiSingleAssetExit, len(e))
	for i, sae := range e {
		allocs := make([]abiAllocation, len(sae.Allocations))
		for j, a := range sae.Allocations {
			meta := a.Metadata
			if meta == nil {
				meta = []byte{}
			}
			allocs[j] = abiAllocation{
				Destination:    a.Destination,
				Amount:         amountOf(a),
				AllocationType: uint8(a.AllocationType),
				Metadata:       meta,
			}
		}
		meta := sae.AssetMetadata.Metadata
		if meta == nil {
			meta = []byte{}
		}
		out[i] = abiSingleAssetExit{
			Asset:         sae.Asset,
			AssetMetadata: abiAssetMetadata{AssetType: sae.AssetMetadata.AssetType, Metadata: meta},
			Allocations:   allocs,
		}
	}
	return out
}

func fromABIExit(in []abiSingleAssetExit) Exit {
	e := make(Exit, len(in))
	for i, sae := range in {
		allocs := make([]Allocation, len(sae.Allocations))
		for j, a := range sae.Allocations {
			allocs[j] = Allocation{
				Destination:    a.Destination,
				Amount:         new(big.Int).Set(a.Amount),
				AllocationType: AllocationType(a.AllocationType),
				Metadata:       a.Metadata,
			}
		}
		e[i] = SingleAssetExit{
			Asset:         sae.Asset,
			AssetMetadata: AssetMetadata{AssetType: sae.AssetMetadata.AssetType, Metadata: sae.AssetMetadata.Metadata},
			Allocations:   allocs,
		}
	}
	return e
}
