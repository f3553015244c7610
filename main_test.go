// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/config"
	"perun.network/perun-forcemove-backend/setup"
)

func TestRun(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	s, err := setup.NewSetup(config.NewDefaultConfig(), clk)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	elapse := func(sec uint64) { clk.Add(time.Duration(sec) * time.Second) }
	require.NoError(t, run(ctx, s, &out, elapse))

	require.Contains(t, out.String(), "turn 4, [0] 0.900000 ETH, [1] 1.100000 ETH")
	require.Contains(t, out.String(), "client 0 paid out 0.900000 ETH")
	require.Contains(t, out.String(), "client 1 paid out 1.100000 ETH")
	require.Contains(t, out.String(), "client 0 paid out 1.800000 ETH")
	require.Contains(t, out.String(), "client 1 paid out 2.200000 ETH")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, config.NewDefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "forcemove.toml")
	cfg.Log.Level = "debug"
	require.NoError(t, cfg.WriteFile(path))
	loaded, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.Log.Level)
}
