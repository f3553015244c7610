// SPDX-License-Identifier: Apache-2.0

package channel_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/channel/connector"
	ctest "perun.network/perun-forcemove-backend/channel/connector/test"
	chtest "perun.network/perun-forcemove-backend/channel/test"
)

func TestFunder_Deposit(t *testing.T) {
	s := ctest.NewSetup(t)
	f := channel.NewFunder(s.Conn)
	ctx := context.Background()
	id := channel.ID{0xff, 1}
	asset := channel.NativeAsset

	deposit := func(expected, amount int64) (channel.DepositResult, error) {
		return f.Deposit(ctx, asset, id, big.NewInt(expected), big.NewInt(amount))
	}

	res, err := deposit(0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Credited.Int64())
	assert.Equal(t, int64(5), res.Holdings.Int64())

	// Holdings cover part of the deposit.
	res, err = deposit(3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Credited.Int64())
	assert.Equal(t, int64(7), res.Holdings.Int64())

	// Holdings cover the whole deposit.
	res, err = deposit(2, 4)
	require.NoError(t, err)
	assert.Zero(t, res.Credited.Sign())
	assert.Equal(t, int64(7), res.Holdings.Int64())

	_, err = deposit(8, 1)
	require.ErrorIs(t, err, channel.ErrHoldingsBelowExpected)

	held, err := f.Holdings(asset, id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), held.Int64())
}

func TestFunder_DepositErrors(t *testing.T) {
	s := ctest.NewSetup(t)
	f := channel.NewFunder(s.Conn)
	ctx := context.Background()

	_, err := f.Deposit(ctx, channel.NativeAsset, channel.ID{31: 1}, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, channel.ErrDepositToExternal)
	_, err = f.Deposit(ctx, channel.NativeAsset, channel.ID{0xff}, big.NewInt(0), big.NewInt(-1))
	require.ErrorIs(t, err, channel.ErrNegativeAmount)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Deposit(cancelled, channel.NativeAsset, channel.ID{0xff}, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFunder_DepositEvent(t *testing.T) {
	s := ctest.NewSetup(t)
	f := channel.NewFunder(s.Conn)
	id := channel.ID{0xff, 2}
	asset := channel.Asset{19: 1}

	sub := s.Conn.Subscribe(connector.ForChannel(id))
	defer sub.Close()

	_, err := f.Deposit(context.Background(), asset, id, big.NewInt(0), big.NewInt(3))
	require.NoError(t, err)

	ev, ok := sub.Next().(*connector.DepositedEvent)
	require.True(t, ok)
	assert.Equal(t, id, ev.ID())
	assert.Equal(t, asset, ev.Asset)
	assert.Equal(t, int64(3), ev.Credited.Int64())
	assert.Equal(t, uint64(ctest.StartTime.Unix()), ev.Time())
}

func TestFunder_RacingDeposits(t *testing.T) {
	rng := pkgtest.Prng(t)
	a1, a2 := chtest.NewRandomAmount(rng), chtest.NewRandomAmount(rng)
	total := new(big.Int).Add(a1, a2)
	ctx := context.Background()

	t.Run("in order", func(t *testing.T) {
		s := ctest.NewSetup(t)
		f := channel.NewFunder(s.Conn)
		id := channel.ID{0xff, 3}

		_, err := f.Deposit(ctx, channel.NativeAsset, id, new(big.Int), a1)
		require.NoError(t, err)
		res, err := f.Deposit(ctx, channel.NativeAsset, id, a1, a2)
		require.NoError(t, err)
		assert.Zero(t, total.Cmp(res.Holdings))
	})

	t.Run("reversed", func(t *testing.T) {
		s := ctest.NewSetup(t)
		f := channel.NewFunder(s.Conn)
		id := channel.ID{0xff, 4}

		_, err := f.Deposit(ctx, channel.NativeAsset, id, a1, a2)
		require.ErrorIs(t, err, channel.ErrHoldingsBelowExpected)
		_, err = f.Deposit(ctx, channel.NativeAsset, id, new(big.Int), a1)
		require.NoError(t, err)
		res, err := f.Deposit(ctx, channel.NativeAsset, id, a1, a2)
		require.NoError(t, err)
		assert.Zero(t, total.Cmp(res.Holdings))
	})

	t.Run("resubmitted", func(t *testing.T) {
		s := ctest.NewSetup(t)
		f := channel.NewFunder(s.Conn)
		id := channel.ID{0xff, 5}

		for i := 0; i < 2; i++ {
			_, err := f.Deposit(ctx, channel.NativeAsset, id, new(big.Int), a1)
			require.NoError(t, err)
			_, err = f.Deposit(ctx, channel.NativeAsset, id, a1, a2)
			require.NoError(t, err)
		}
		held, err := f.Holdings(channel.NativeAsset, id)
		require.NoError(t, err)
		assert.Zero(t, total.Cmp(held))
	})

	t.Run("concurrent", func(t *testing.T) {
		s := ctest.NewSetup(t)
		f := channel.NewFunder(s.Conn)
		id := channel.ID{0xff, 6}
		amounts := []*big.Int{a1, a2, chtest.NewRandomAmount(rng)}
		sum := new(big.Int).Add(total, amounts[2])

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		require.NoError(t, chtest.DepositAll(ctx, f, channel.NativeAsset, id, amounts))

		held, err := f.Holdings(channel.NativeAsset, id)
		require.NoError(t, err)
		assert.Zero(t, sum.Cmp(held))
	})
}
