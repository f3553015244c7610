// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/config"
)

const appAddress = "0x00000000000000000000000000000000000000a1"

func TestDefaults(t *testing.T) {
	cfg := config.NewDefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.FormatText, cfg.Log.Format)
	assert.Empty(t, cfg.Store.Path)
	assert.Empty(t, cfg.Wallet.Path)
	assert.Empty(t, cfg.Apps)
	require.NoError(t, cfg.Validate())
}

func TestConfigRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := config.NewDefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Store.Path = "/var/lib/forcemove"
	cfg.Apps = append(cfg.Apps, config.AppConfig{Address: appAddress, Kind: string(app.KindTurnTaking)})
	require.NoError(t, cfg.WriteFile(path))

	out, err := config.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, out)

	def, err := out.Apps[0].Definition()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(appAddress), def.AsEthAddress())
}

func TestReadFile(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("partial", func(t *testing.T) {
		cfg, err := config.ReadFile(write(t, `
[log]
level = "warn"

[[apps]]
address = "`+appAddress+`"
kind = "virtualpayment"
`))
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, config.FormatText, cfg.Log.Format, "missing options keep their default")
		require.Len(t, cfg.Apps, 1)
		assert.Equal(t, string(app.KindVirtualPayment), cfg.Apps[0].Kind)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := config.ReadFile(write(t, "[log]\nlevl = \"warn\"\n"))
		require.Error(t, err)
	})

	t.Run("syntax", func(t *testing.T) {
		_, err := config.ReadFile(write(t, "[log\n"))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.ReadFile(filepath.Join(t.TempDir(), "missing.toml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Apps = []config.AppConfig{
		{Address: appAddress, Kind: "consensus"},
		{Address: appAddress, Kind: "chess"},
		{Address: "0x1234", Kind: "null"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	assert.Len(t, merr.Errors, 5)
	assert.ErrorIs(t, err, app.ErrUnknownKind)

	formatter, err := (&config.LogConfig{Format: config.FormatJSON}).Formatter()
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, formatter)
}
