// SPDX-License-Identifier: Apache-2.0
package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/channel/connector/test"
)

func TestTimeout(t *testing.T) {
	s := test.NewSetup(t)
	finalizesAt := s.Conn.Now() + 60
	timeout := connector.MakeTimeout(s.Clock, finalizesAt)
	ctx := context.Background()

	assert.False(t, timeout.IsElapsed(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, timeout.Wait(cancelled), context.Canceled)

	s.Advance(59)
	assert.False(t, timeout.IsElapsed(ctx))
	s.Advance(1)
	assert.True(t, timeout.IsElapsed(ctx))
	require.NoError(t, timeout.Wait(ctx))
}

func TestTimeout_WaitWakesUp(t *testing.T) {
	s := test.NewSetup(t)
	timeout := connector.NewTimeout(s.Clock, connector.MakeTime(s.Conn.Now()+5), time.Second)

	done := make(chan error, 1)
	go func() { done <- timeout.Wait(context.Background()) }()

	for i := 0; i < 20; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.True(t, timeout.IsElapsed(context.Background()))
			return
		case <-time.After(10 * time.Millisecond):
			s.Advance(1)
		}
	}
	t.Fatal("Wait did not return after the timeout elapsed")
}

func TestExpiredTimeout(t *testing.T) {
	timeout := connector.NewExpiredTimeout()
	assert.True(t, timeout.IsElapsed(context.Background()))
	require.NoError(t, timeout.Wait(context.Background()))
}
