// SPDX-License-Identifier: Apache-2.0

package channel_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/channel/connector"
	ctest "perun.network/perun-forcemove-backend/channel/connector/test"
	chtest "perun.network/perun-forcemove-backend/channel/test"
	wtest "perun.network/perun-forcemove-backend/wallet/test"
)

func stateAt(s *chtest.Setup, turnNum uint64) channel.VariablePart {
	outcome := chtest.NewRandomExit(s.Rng, []channel.Asset{channel.NativeAsset}, s.Dests()...)
	return chtest.NewRandomVariablePart(s.Rng, turnNum, outcome)
}

func challenge(s *chtest.Setup, turnNum uint64) (channel.VariablePart, error) {
	v := stateAt(s, turnNum)
	err := s.Adj.Challenge(context.Background(), s.Fixed, nil, s.SignAll(v), s.ChallengerSig(v, 0))
	return v, err
}

func checkpoint(s *chtest.Setup, turnNum uint64) error {
	return s.Adj.Checkpoint(context.Background(), s.Fixed, nil, s.SignAll(stateAt(s, turnNum)))
}

func requireMode(t *testing.T, s *chtest.Setup, mode connector.Mode) {
	t.Helper()
	m, err := s.Adj.Mode(s.ID)
	require.NoError(t, err)
	require.Equal(t, mode, m)
}

func requireRecord(t *testing.T, s *chtest.Setup, turnNum uint64) {
	t.Helper()
	status, err := s.Adj.Status(s.ID)
	require.NoError(t, err)
	require.Equal(t, turnNum, status.TurnNumRecord())
}

func TestAdjudicator_Challenge(t *testing.T) {
	s := newSetup(t, 3, app.KindConsensus)
	sub := s.Adj.Subscribe(s.ID)
	defer sub.Close()
	requireMode(t, s, connector.ModeOpen)

	v, err := challenge(s, 5)
	require.NoError(t, err)
	requireMode(t, s, connector.ModeChallenge)

	status, err := s.Adj.Status(s.ID)
	require.NoError(t, err)
	now := uint64(ctest.StartTime.Unix())
	assert.Equal(t, uint64(5), status.TurnNumRecord())
	assert.Equal(t, now+s.Fixed.ChallengeDuration, status.FinalizesAt())
	stateHash, err := channel.HashState(s.Fixed, v)
	require.NoError(t, err)
	outcomeHash, err := channel.HashOutcome(v.Outcome)
	require.NoError(t, err)
	assert.True(t, status.MatchesFingerprint(stateHash, outcomeHash))

	ev, ok := sub.Next().(*connector.ChallengeRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, s.ID, ev.ID())
	assert.Equal(t, uint64(5), ev.TurnNumRecord)
	assert.Equal(t, status.FinalizesAt(), ev.FinalizesAt)
	assert.Equal(t, stateHash, ev.StateHash)
	assert.Equal(t, s.Accs[0].Address().AsEthAddress(), ev.Challenger)
}

func TestAdjudicator_ChallengeTurnNum(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)

	// An untouched channel has record 0.
	_, err := challenge(s, 0)
	require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
	requireMode(t, s, connector.ModeOpen)

	// A checkpointed turn cannot be challenged again.
	require.NoError(t, checkpoint(s, 4))
	_, err = challenge(s, 3)
	require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
	_, err = challenge(s, 4)
	require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
	requireMode(t, s, connector.ModeOpen)
	_, err = challenge(s, 5)
	require.NoError(t, err)

	_, err = challenge(s, 5)
	require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
	_, err = challenge(s, 6)
	require.NoError(t, err)
	requireRecord(t, s, 6)
	requireMode(t, s, connector.ModeChallenge)
}

func TestAdjudicator_RacingChallenges(t *testing.T) {
	for _, order := range [][2]uint64{{5, 6}, {6, 5}} {
		s := newSetup(t, 2, app.KindConsensus)
		_, err := challenge(s, order[0])
		require.NoError(t, err)
		_, err = challenge(s, order[1])
		if order[1] > order[0] {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
			assert.Equal(t, channel.ClassSequencing, channel.ErrorClass(err))
		}
		requireRecord(t, s, 6)
	}
}

func TestAdjudicator_TurnNumMonotonic(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	var record uint64
	for i := 0; i < 30; i++ {
		turnNum := uint64(s.Rng.Intn(20))
		var err error
		if s.Rng.Intn(2) == 0 {
			_, err = challenge(s, turnNum)
		} else {
			err = checkpoint(s, turnNum)
		}
		status, serr := s.Adj.Status(s.ID)
		require.NoError(t, serr)
		require.GreaterOrEqual(t, status.TurnNumRecord(), record)
		if err != nil {
			require.ErrorIs(t, err, channel.ErrTurnNumNotIncreased)
			require.Equal(t, record, status.TurnNumRecord())
		}
		record = status.TurnNumRecord()
	}
}

func TestAdjudicator_ChallengeErrors(t *testing.T) {
	s := newSetup(t, 3, app.KindConsensus)
	ctx := context.Background()
	v := stateAt(s, 2)

	t.Run("empty support", func(t *testing.T) {
		err := s.Adj.Challenge(ctx, s.Fixed, nil, channel.SignedVariablePart{VariablePart: v}, s.ChallengerSig(v, 0))
		require.ErrorIs(t, err, channel.ErrEmptySupport)
	})

	t.Run("not unanimous", func(t *testing.T) {
		err := s.Adj.Challenge(ctx, s.Fixed, nil, s.Sign(v, 0, 1), s.ChallengerSig(v, 0))
		require.ErrorIs(t, err, channel.ErrNotUnanimous)
		assert.Equal(t, channel.ClassAuthorization, channel.ErrorClass(err))
	})

	t.Run("proof supplied", func(t *testing.T) {
		err := s.Adj.Challenge(ctx, s.Fixed, []channel.SignedVariablePart{s.SignAll(stateAt(s, 1))}, s.SignAll(v), s.ChallengerSig(v, 0))
		require.ErrorIs(t, err, channel.ErrProofSupplied)
	})

	t.Run("challenger not participant", func(t *testing.T) {
		outsider := wtest.NewRandomizer(s.Rng).NewRandomAccount()
		h, err := channel.HashState(s.Fixed, v)
		require.NoError(t, err)
		sig, err := channel.SignChallenge(outsider, h)
		require.NoError(t, err)
		err = s.Adj.Challenge(ctx, s.Fixed, nil, s.SignAll(v), sig)
		require.ErrorIs(t, err, channel.ErrChallengerNotParticipant)
	})

	t.Run("challenger signed other state", func(t *testing.T) {
		err := s.Adj.Challenge(ctx, s.Fixed, nil, s.SignAll(v), s.ChallengerSig(stateAt(s, 2), 0))
		require.ErrorIs(t, err, channel.ErrChallengerNotParticipant)
	})

	t.Run("unknown app", func(t *testing.T) {
		f := s.Fixed
		f.AppDefinition = wtest.NewRandomAddress(s.Rng)
		w := stateAt(s, 2)
		err := s.Adj.Challenge(ctx, f, nil, chtest.SignWith(t, f, w, s.Accs...), s.ChallengerSig(w, 0))
		require.ErrorIs(t, err, channel.ErrUnknownApp)
	})

	t.Run("cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := s.Adj.Challenge(cancelled, s.Fixed, nil, s.SignAll(v), s.ChallengerSig(v, 0))
		require.ErrorIs(t, err, context.Canceled)
	})

	status, err := s.Adj.Status(s.ID)
	require.NoError(t, err)
	assert.True(t, status.IsZero(), "rejected challenges must not write")
}

func TestAdjudicator_ChallengeTurnTaking(t *testing.T) {
	s := newSetup(t, 3, app.KindTurnTaking)
	ctx := context.Background()

	proof := []channel.SignedVariablePart{s.Sign(stateAt(s, 3), 0), s.Sign(stateAt(s, 4), 1)}
	v := stateAt(s, 5)
	require.NoError(t, s.Adj.Challenge(ctx, s.Fixed, proof, s.Sign(v, 2), s.ChallengerSig(v, 1)))
	requireRecord(t, s, 5)

	// Turn 7 is signed by the mover of turn 8.
	proof = []channel.SignedVariablePart{s.Sign(stateAt(s, 6), 0), s.Sign(stateAt(s, 7), 2)}
	w := stateAt(s, 8)
	err := s.Adj.Challenge(ctx, s.Fixed, proof, s.Sign(w, 1), s.ChallengerSig(w, 1))
	require.ErrorIs(t, err, channel.ErrInvalidSignedBy)

	proof = []channel.SignedVariablePart{s.Sign(stateAt(s, 6), 0), s.Sign(stateAt(s, 7), 1)}
	w = stateAt(s, 9)
	err = s.Adj.Challenge(ctx, s.Fixed, proof, s.Sign(w, 0), s.ChallengerSig(w, 1))
	require.ErrorIs(t, err, channel.ErrWrongTurnNum)
}

func TestAdjudicator_Checkpoint(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	sub := s.Adj.Subscribe(s.ID)
	defer sub.Close()

	require.NoError(t, checkpoint(s, 3))
	_, ok := sub.Next().(*connector.CheckpointedEvent)
	require.True(t, ok)
	requireMode(t, s, connector.ModeOpen)

	_, err := challenge(s, 5)
	require.NoError(t, err)
	_, ok = sub.Next().(*connector.ChallengeRegisteredEvent)
	require.True(t, ok)

	require.ErrorIs(t, checkpoint(s, 5), channel.ErrTurnNumNotIncreased)
	require.NoError(t, checkpoint(s, 6))
	cleared, ok := sub.Next().(*connector.ChallengeClearedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(6), cleared.TurnNumRecord)

	requireMode(t, s, connector.ModeOpen)
	status, err := s.Adj.Status(s.ID)
	require.NoError(t, err)
	assert.True(t, status.IsOpen())
	assert.True(t, status.MatchesFingerprint(channel.Hash{}, channel.Hash{}))
	requireRecord(t, s, 6)
}

func TestAdjudicator_FinalizedByTimeout(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	ctx := context.Background()
	v, err := challenge(s, 5)
	require.NoError(t, err)

	timeout, err := s.Adj.Timeout(s.ID)
	require.NoError(t, err)
	assert.False(t, timeout.IsElapsed(ctx))

	s.Advance(s.Fixed.ChallengeDuration - 1)
	requireMode(t, s, connector.ModeChallenge)
	s.Advance(1)
	requireMode(t, s, connector.ModeFinalized)
	assert.True(t, timeout.IsElapsed(ctx))

	timeout, err = s.Adj.Timeout(s.ID)
	require.NoError(t, err)
	assert.True(t, timeout.IsElapsed(ctx))
	require.NoError(t, timeout.Wait(ctx))

	_, err = challenge(s, 6)
	require.ErrorIs(t, err, channel.ErrChannelFinalized)
	require.ErrorIs(t, checkpoint(s, 7), channel.ErrChannelFinalized)

	// The challenged state's outcome can be paid out.
	stateHash, err := channel.HashState(s.Fixed, v)
	require.NoError(t, err)
	outcome, err := channel.EncodeOutcome(v.Outcome)
	require.NoError(t, err)
	_, err = s.Holder.TransferAllAssets(ctx, s.ID, outcome, stateHash)
	require.NoError(t, err)
}

func TestAdjudicator_TimeoutWait(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	_, err := challenge(s, 1)
	require.NoError(t, err)
	timeout, err := s.Adj.Timeout(s.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- timeout.Wait(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for {
		s.Advance(1)
		select {
		case err := <-done:
			require.NoError(t, err)
			requireMode(t, s, connector.ModeFinalized)
			return
		case <-deadline:
			t.Fatal("timeout did not elapse")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestAdjudicator_NoChallengeTimeout(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	_, err := s.Adj.Timeout(s.ID)
	require.ErrorIs(t, err, channel.ErrNoChallenge)
}

func TestAdjudicator_Conclude(t *testing.T) {
	s := newSetup(t, 3, app.KindConsensus)
	ctx := context.Background()
	sub := s.Adj.Subscribe(s.ID)
	defer sub.Close()

	_, err := challenge(s, 8)
	require.NoError(t, err)
	require.NotNil(t, sub.Next())

	v := stateAt(s, 4)
	require.ErrorIs(t, s.Adj.Conclude(ctx, s.Fixed, s.SignAll(v)), channel.ErrNonFinalState)
	v.IsFinal = true
	require.ErrorIs(t, s.Adj.Conclude(ctx, s.Fixed, s.Sign(v, 0, 2)), channel.ErrNotUnanimous)
	require.ErrorIs(t, s.Adj.Conclude(ctx, s.Fixed, channel.SignedVariablePart{VariablePart: v}), channel.ErrEmptySupport)

	// A final state concludes a challenge with a higher turn number.
	require.NoError(t, s.Adj.Conclude(ctx, s.Fixed, s.SignAll(v)))
	requireMode(t, s, connector.ModeFinalized)
	requireRecord(t, s, 8)

	ev, ok := sub.Next().(*connector.ConcludedEvent)
	require.True(t, ok)
	outcomeHash, err := channel.HashOutcome(v.Outcome)
	require.NoError(t, err)
	assert.Equal(t, outcomeHash, ev.OutcomeHash)

	status, err := s.Adj.Status(s.ID)
	require.NoError(t, err)
	assert.True(t, status.MatchesFingerprint(channel.Hash{}, outcomeHash))
	assert.Equal(t, uint64(ctest.StartTime.Unix()), status.FinalizesAt())

	require.ErrorIs(t, s.Adj.Conclude(ctx, s.Fixed, s.SignAll(v)), channel.ErrChannelFinalized)
}

func TestAdjudicator_ConcludeAndTransferAllAssets(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	ctx := context.Background()
	assets := []channel.Asset{channel.NativeAsset, chtest.NewRandomAsset(s.Rng)}
	v := chtest.NewRandomVariablePart(s.Rng, 3, chtest.NewRandomExit(s.Rng, assets, s.Dests()...))
	v.IsFinal = true

	for _, e := range v.Outcome {
		_, err := s.Funder.Deposit(ctx, e.Asset, s.ID, new(big.Int), chtest.Sum(e.Allocations))
		require.NoError(t, err)
	}

	res, err := s.Adj.ConcludeAndTransferAllAssets(ctx, s.Fixed, s.SignAll(v))
	require.NoError(t, err)
	require.Len(t, res.Payouts, 2)
	for i, e := range v.Outcome {
		assert.True(t, res.Payouts[i].Effects.AllocatesOnlyZeros)
		for j, a := range e.Allocations {
			w, err := s.Holder.Withdrawn(e.Asset, s.Dest(j))
			require.NoError(t, err)
			assert.Zero(t, a.Amount.Cmp(w))
		}
		held, err := s.Holder.Holdings(e.Asset, s.ID)
		require.NoError(t, err)
		assert.Zero(t, held.Sign())
	}
	requireMode(t, s, connector.ModeFinalized)
}

func TestAdjudicator_ClockNotSet(t *testing.T) {
	s := newSetup(t, 2, app.KindConsensus)
	s.Clock.Set(time.Unix(0, 0))
	_, err := challenge(s, 1)
	require.ErrorIs(t, err, channel.ErrClockNotSet)
}
