// SPDX-License-Identifier: Apache-2.0
package connector_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/channel/connector/test"
)

var (
	asset    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestConnector_UpdateCommits(t *testing.T) {
	s := test.NewSetup(t)
	id := randomHash(t)
	status, err := connector.EncodeStatus(connector.ChannelData{TurnNumRecord: 3})
	require.NoError(t, err)

	require.NoError(t, s.Conn.Update("test", func(txn *connector.Txn) error {
		if err := txn.SetStatus(id, status); err != nil {
			return err
		}
		if err := txn.SetHoldings(asset, id, big.NewInt(10)); err != nil {
			return err
		}
		// Reads observe the transaction's own writes.
		h, err := txn.Holdings(asset, id)
		require.NoError(t, err)
		assert.Equal(t, int64(10), h.Int64())
		return txn.AddWithdrawn(asset, receiver, big.NewInt(4))
	}))

	got, err := s.Conn.Status(id)
	require.NoError(t, err)
	assert.Equal(t, status, got)
	h, err := s.Conn.Holdings(asset, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.Int64())
	w, err := s.Conn.Withdrawn(asset, receiver)
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.Int64())

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Conn.Metrics().Operations().WithLabelValues("test", "ok")))
}

func TestConnector_UpdateDiscards(t *testing.T) {
	s := test.NewSetup(t)
	id := randomHash(t)
	sub := s.Conn.Subscribe(nil)
	defer sub.Close()

	errAbort := errors.New("abort")
	err := s.Conn.Update("test", func(txn *connector.Txn) error {
		require.NoError(t, txn.SetHoldings(asset, id, big.NewInt(10)))
		txn.Emit(&connector.DepositedEvent{EventBase: connector.EventBase{IDV: id}})
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	h, err := s.Conn.Holdings(asset, id)
	require.NoError(t, err)
	assert.Zero(t, h.Sign(), "discarded writes must not be visible")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Conn.Metrics().Operations().WithLabelValues("test", "error")))

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnector_ZeroHoldingsRemoved(t *testing.T) {
	s := test.NewSetup(t)
	id := randomHash(t)
	require.NoError(t, s.Conn.Update("test", func(txn *connector.Txn) error {
		return txn.SetHoldings(asset, id, big.NewInt(7))
	}))
	require.NoError(t, s.Conn.Update("test", func(txn *connector.Txn) error {
		return txn.SetHoldings(asset, id, new(big.Int))
	}))
	h, err := s.Conn.Holdings(asset, id)
	require.NoError(t, err)
	assert.Zero(t, h.Sign())

	err = s.Conn.Update("test", func(txn *connector.Txn) error {
		return txn.SetHoldings(asset, id, big.NewInt(-1))
	})
	require.Error(t, err)
}

func TestConnector_EventsAfterCommit(t *testing.T) {
	s := test.NewSetup(t)
	id, other := randomHash(t), common.Hash{1}
	sub := s.Conn.Subscribe(connector.ForChannel(id))
	defer sub.Close()

	require.NoError(t, s.Conn.Update("test", func(txn *connector.Txn) error {
		txn.Emit(&connector.DepositedEvent{EventBase: connector.EventBase{IDV: other}})
		txn.Emit(&connector.ChallengeClearedEvent{EventBase: connector.EventBase{IDV: id}, TurnNumRecord: 1})
		txn.Emit(&connector.ChallengeClearedEvent{EventBase: connector.EventBase{IDV: id}, TurnNumRecord: 2})
		return nil
	}))

	for _, turnNum := range []uint64{1, 2} {
		ev := sub.Next()
		require.IsType(t, &connector.ChallengeClearedEvent{}, ev)
		assert.Equal(t, id, ev.ID())
		assert.Equal(t, turnNum, ev.(*connector.ChallengeClearedEvent).TurnNumRecord)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(s.Conn.Metrics().Events()))

	require.NoError(t, sub.Close())
	assert.Nil(t, sub.Next())
}

func TestConnector_ViewIsSnapshot(t *testing.T) {
	s := test.NewSetup(t)
	id := randomHash(t)

	err := s.Conn.View(func(r connector.Reader) error {
		require.NoError(t, s.Conn.Update("test", func(txn *connector.Txn) error {
			return txn.SetHoldings(asset, id, big.NewInt(5))
		}))
		h, err := r.Holdings(asset, id)
		require.NoError(t, err)
		assert.Zero(t, h.Sign(), "snapshot must not observe later commits")
		return nil
	})
	require.NoError(t, err)
}

func TestConnector_Now(t *testing.T) {
	s := test.NewSetup(t)
	assert.Equal(t, uint64(test.StartTime.Unix()), s.Conn.Now())
	s.Advance(10)
	assert.Equal(t, uint64(test.StartTime.Unix())+10, s.Conn.Now())
}
