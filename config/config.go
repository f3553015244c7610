// SPDX-License-Identifier: Apache-2.0

// Package config holds the TOML configuration of a ForceMove backend.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/wallet"
)

// Config is an in memory representation of the configuration file.
type Config struct {
	Log    *LogConfig    `toml:"log"`
	Store  *StoreConfig  `toml:"store"`
	Wallet *WalletConfig `toml:"wallet"`
	Apps   []AppConfig   `toml:"apps"`
}

// LogConfig holds the logging options.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

func newDefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  logrus.InfoLevel.String(),
		Format: FormatText,
	}
}

// StoreConfig holds the options of the channel store. An empty path keeps
// the store in memory.
type StoreConfig struct {
	Path string `toml:"path"`
}

func newDefaultStoreConfig() *StoreConfig {
	return &StoreConfig{}
}

// WalletConfig holds the options of the key store. An empty path keeps the
// keys in memory.
type WalletConfig struct {
	Path string `toml:"path"`
}

func newDefaultWalletConfig() *WalletConfig {
	return &WalletConfig{}
}

// AppConfig binds an app definition address to a built-in rule set.
type AppConfig struct {
	Address string `toml:"address"`
	Kind    string `toml:"kind"`
}

// Definition parses the app definition address.
func (a AppConfig) Definition() (wallet.Address, error) {
	return wallet.HexToAddress(a.Address)
}

// NewDefaultConfig returns a config with all fields set to their defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Log:    newDefaultLogConfig(),
		Store:  newDefaultStoreConfig(),
		Wallet: newDefaultWalletConfig(),
		Apps:   []AppConfig{},
	}
}

// Validate reports every invalid option.
func (cfg *Config) Validate() error {
	var result *multierror.Error
	if cfg.Log == nil || cfg.Store == nil || cfg.Wallet == nil {
		return errors.New("config: missing section")
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "log.level"))
	}
	if _, err := cfg.Log.Formatter(); err != nil {
		result = multierror.Append(result, err)
	}

	seen := make(map[wallet.Address]bool, len(cfg.Apps))
	for i, a := range cfg.Apps {
		addr, err := a.Definition()
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "apps[%d].address", i))
		} else if seen[addr] {
			result = multierror.Append(result, errors.Errorf("apps[%d].address: duplicate %v", i, addr))
		}
		seen[addr] = true
		if _, err := app.NewValidator(app.Kind(a.Kind)); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "apps[%d].kind", i))
		}
	}
	return result.ErrorOrNil()
}

// Formatter returns the logrus formatter of the configured format.
func (l *LogConfig) Formatter() (logrus.Formatter, error) {
	switch l.Format {
	case FormatText, "":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case FormatJSON:
		return &logrus.JSONFormatter{}, nil
	}
	return nil, errors.Errorf("log.format: unknown format %q", l.Format)
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a config file from disk. Options missing in the file keep
// their defaults. The result is validated.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := NewDefaultConfig()
	md, err := toml.NewDecoder(f).Decode(cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "decoding config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown config keys: %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
