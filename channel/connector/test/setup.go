// SPDX-License-Identifier: Apache-2.0

// Package test provides an in-memory Connector driven by a mock clock.
package test

import (
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/channel/connector"
)

// StartTime is the initial time of the mock clock. The Unix epoch is avoided
// since a zero timestamp marks an open channel.
var StartTime = time.Unix(1_700_000_000, 0)

// Setup holds a memory Connector and its mock clock.
type Setup struct {
	Clock *clock.Mock
	Conn  *connector.Connector
}

// NewSetup creates a Setup that is closed when the test ends.
func NewSetup(t *testing.T) *Setup {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(StartTime)

	conn, err := connector.NewMemConnector(clk)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &Setup{Clock: clk, Conn: conn}
}

// Advance moves the mock clock forward by the given number of seconds.
func (s *Setup) Advance(sec uint64) {
	s.Clock.Add(time.Duration(sec) * time.Second)
}
