// SPDX-License-Identifier: Apache-2.0
package connector_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-forcemove-backend/channel/connector"
)

func randomHash(t *testing.T) common.Hash {
	rng := pkgtest.Prng(t)
	var h common.Hash
	rng.Read(h[:])
	return h
}

func TestStatus_RoundTrip(t *testing.T) {
	rng := pkgtest.Prng(t)
	for i := 0; i < 32; i++ {
		var stateHash, outcomeHash common.Hash
		rng.Read(stateHash[:])
		rng.Read(outcomeHash[:])
		data := connector.ChannelData{
			TurnNumRecord: rng.Uint64() & connector.MaxUint48,
			FinalizesAt:   rng.Uint64() & connector.MaxUint48,
			StateHash:     stateHash,
			OutcomeHash:   outcomeHash,
		}
		s, err := connector.EncodeStatus(data)
		require.NoError(t, err)

		turnNum, finalizesAt, fp := s.Unpack()
		assert.Equal(t, data.TurnNumRecord, turnNum)
		assert.Equal(t, data.FinalizesAt, finalizesAt)
		assert.Equal(t, connector.MakeFingerprint(stateHash, outcomeHash), fp)
		assert.True(t, s.MatchesFingerprint(stateHash, outcomeHash))
		assert.False(t, s.MatchesFingerprint(outcomeHash, stateHash))
	}
}

func TestStatus_Layout(t *testing.T) {
	stateHash, outcomeHash := randomHash(t), common.Hash{}
	s, err := connector.EncodeStatus(connector.ChannelData{
		TurnNumRecord: 5,
		FinalizesAt:   7,
		StateHash:     stateHash,
		OutcomeHash:   outcomeHash,
	})
	require.NoError(t, err)

	fp := connector.MakeFingerprint(stateHash, outcomeHash)
	expected := new(big.Int).Lsh(big.NewInt(5), 208)
	expected.Or(expected, new(big.Int).Lsh(big.NewInt(7), 160))
	expected.Or(expected, new(big.Int).SetBytes(fp[:]))
	assert.Equal(t, common.BigToHash(expected).Bytes(), s[:])
}

func TestStatus_Overflow(t *testing.T) {
	_, err := connector.EncodeStatus(connector.ChannelData{TurnNumRecord: connector.MaxUint48 + 1})
	require.ErrorIs(t, err, connector.ErrOverflow)
	_, err = connector.EncodeStatus(connector.ChannelData{FinalizesAt: connector.MaxUint48 + 1})
	require.ErrorIs(t, err, connector.ErrOverflow)

	s, err := connector.EncodeStatus(connector.ChannelData{TurnNumRecord: connector.MaxUint48, FinalizesAt: connector.MaxUint48})
	require.NoError(t, err)
	assert.Equal(t, connector.MaxUint48, s.TurnNumRecord())
	assert.Equal(t, connector.MaxUint48, s.FinalizesAt())
}

func TestStatus_Modes(t *testing.T) {
	tests := []struct {
		name        string
		finalizesAt uint64
		now         uint64
		mode        connector.Mode
	}{
		{"open", 0, 100, connector.ModeOpen},
		{"challenge", 101, 100, connector.ModeChallenge},
		{"finalized at boundary", 100, 100, connector.ModeFinalized},
		{"finalized", 50, 100, connector.ModeFinalized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := connector.EncodeStatus(connector.ChannelData{FinalizesAt: tc.finalizesAt})
			require.NoError(t, err)
			assert.Equal(t, tc.mode, s.Mode(tc.now))

			flags := []bool{s.IsOpen(), s.IsChallenged(tc.now), s.IsFinalized(tc.now)}
			n := 0
			for _, f := range flags {
				if f {
					n++
				}
			}
			assert.Equal(t, 1, n, "modes must be exclusive and exhaustive")
		})
	}
}

func TestStatus_Zero(t *testing.T) {
	var s connector.Status
	assert.True(t, s.IsZero())
	assert.True(t, s.IsOpen())
	assert.Equal(t, uint64(0), s.TurnNumRecord())
}
