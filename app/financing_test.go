// SPDX-License-Identifier: Apache-2.0

package app_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/channel"
)

func financingData(t *testing.T, divisor, principal, block int64) []byte {
	t.Helper()
	data, err := app.FinancingData{
		InterestPerBlockDivisor: big.NewInt(divisor),
		Principal: app.Funds{
			Assets:  []channel.Asset{channel.NativeAsset},
			Amounts: []*big.Int{big.NewInt(principal)},
		},
		BlockNumber: big.NewInt(block),
	}.Encode()
	require.NoError(t, err)
	return data
}

func TestLedgerFinancing(t *testing.T) {
	f := newFixture(t, 2)
	borrower, lender := f.dest(0), f.dest(1)
	v := app.LedgerFinancing{}

	outcome := func(b, l int64) channel.Exit {
		return channel.NewNativeExit(
			channel.NewSimpleAllocation(borrower, big.NewInt(b)),
			channel.NewSimpleAllocation(lender, big.NewInt(l)),
		)
	}
	// 1000 principal at 1/100 per block earns 50 over 5 blocks.
	agreed := state(4, outcome(500, 0), financingData(t, 100, 1000, 10), 0, 1)
	proof := []channel.RecoveredVariablePart{agreed}
	claim := func(interest int64, block int64, signers ...uint) channel.RecoveredVariablePart {
		return state(5, outcome(500-interest, interest), financingData(t, 100, 1000, block), signers...)
	}

	require.NoError(t, v.StateIsSupported(f.fixed, nil, agreed))
	require.NoError(t, v.StateIsSupported(f.fixed, proof, claim(50, 15, 1)))
	require.NoError(t, v.StateIsSupported(f.fixed, proof, claim(20, 15, 1)), "under-claims are supported")
	require.NoError(t, v.StateIsSupported(f.fixed, proof, claim(0, 10, 1)))

	tests := []struct {
		name      string
		proof     []channel.RecoveredVariablePart
		candidate channel.RecoveredVariablePart
		err       error
	}{
		{"not unanimous", nil, claim(0, 10, 1), channel.ErrNotUnanimous},
		{"exceeds earned", proof, claim(51, 15, 1), channel.ErrInterestExceedsEarned},
		{"signed by borrower", proof, claim(10, 15, 0), channel.ErrInvalidSignedBy},
		{"same turn", proof, state(4, outcome(490, 10), financingData(t, 100, 1000, 15), 1), channel.ErrWrongTurnNum},
		{"rate changed", proof, state(5, outcome(490, 10), financingData(t, 10, 1000, 15), 1), channel.ErrAdjustmentMismatch},
		{"principal changed", proof, state(5, outcome(490, 10), financingData(t, 100, 5000, 15), 1), channel.ErrAdjustmentMismatch},
		{"block decreased", proof, claim(10, 9, 1), channel.ErrAdjustmentMismatch},
		{"lender pays", proof, state(5, outcome(510, -10), financingData(t, 100, 1000, 15), 1), channel.ErrAdjustmentMismatch},
		{"funds created", proof, state(5, outcome(500, 10), financingData(t, 100, 1000, 15), 1), channel.ErrAdjustmentMismatch},
		{"bad app data", proof, state(5, outcome(490, 10), []byte{1, 2}, 1), channel.ErrInvalidAppData},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, v.StateIsSupported(f.fixed, tc.proof, tc.candidate), tc.err)
		})
	}

	t.Run("three participants", func(t *testing.T) {
		g := newFixture(t, 3)
		err := v.StateIsSupported(g.fixed, nil, state(0, nil, nil, 0, 1, 2))
		require.ErrorIs(t, err, channel.ErrInvalidNumberOfProofStates)
	})
}

func TestFinancingData(t *testing.T) {
	data := financingData(t, 7, 1234, 99)
	decoded, err := app.DecodeFinancingData(data)
	require.NoError(t, err)
	require.Equal(t, int64(7), decoded.InterestPerBlockDivisor.Int64())
	require.Equal(t, int64(99), decoded.BlockNumber.Int64())
	require.Equal(t, []channel.Asset{channel.NativeAsset}, decoded.Principal.Assets)
	require.Equal(t, int64(1234), decoded.Principal.Amounts[0].Int64())

	_, err = app.FinancingData{BlockNumber: big.NewInt(1)}.Encode()
	require.ErrorIs(t, err, channel.ErrInvalidAppData)
	_, err = app.FinancingData{
		InterestPerBlockDivisor: big.NewInt(1),
		Principal:               app.Funds{Assets: []channel.Asset{channel.NativeAsset}},
		BlockNumber:             big.NewInt(1),
	}.Encode()
	require.ErrorIs(t, err, channel.ErrInvalidAppData)
}
