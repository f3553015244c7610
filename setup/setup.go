// SPDX-License-Identifier: Apache-2.0

// Package setup wires a configuration into a running ForceMove backend.
package setup

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"github.com/raulk/clock"
	"github.com/sirupsen/logrus"
	"perun.network/go-perun/log"
	plogrus "perun.network/go-perun/log/logrus"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/channel"
	"perun.network/perun-forcemove-backend/channel/connector"
	"perun.network/perun-forcemove-backend/config"
	"perun.network/perun-forcemove-backend/wallet"
)

// Setup holds the components of a backend.
type Setup struct {
	log.Embedding

	Config   *config.Config
	Conn     *connector.Connector
	Registry *app.Registry
	Adj      *channel.Adjudicator
	Funder   *channel.Funder
	Wallet   *wallet.FsWallet
}

// SetupLogging installs the logrus backend of go-perun/log.
func SetupLogging(cfg *config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return errors.WithMessage(err, "parsing log level")
	}
	formatter, err := cfg.Formatter()
	if err != nil {
		return err
	}
	plogrus.Set(level, formatter)
	return nil
}

// NewSetup validates cfg and creates the store, the app registry, the
// adjudicator and the wallet. clk is the time source of the adjudicator.
func NewSetup(cfg *config.Config, clk clock.Clock) (*Setup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	if err := SetupLogging(cfg.Log); err != nil {
		return nil, err
	}

	reg := app.NewRegistry()
	for _, a := range cfg.Apps {
		def, err := a.Definition()
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterKind(def, app.Kind(a.Kind)); err != nil {
			return nil, err
		}
	}

	w, err := openWallet(cfg.Wallet)
	if err != nil {
		return nil, errors.WithMessage(err, "opening wallet")
	}
	conn, err := openStore(cfg.Store, clk)
	if err != nil {
		return nil, errors.WithMessage(err, "opening store")
	}

	s := &Setup{
		Embedding: log.MakeEmbedding(log.Default()),
		Config:    cfg,
		Conn:      conn,
		Registry:  reg,
		Adj:       channel.NewAdjudicator(conn, reg),
		Funder:    channel.NewFunder(conn),
		Wallet:    w,
	}
	s.Log().WithField("apps", len(cfg.Apps)).WithField("store", storeName(cfg.Store)).Info("backend ready")
	return s, nil
}

// Close locks the wallet and closes the store.
func (s *Setup) Close() error {
	s.Wallet.LockAll()
	return s.Conn.Close()
}

func openWallet(cfg *config.WalletConfig) (*wallet.FsWallet, error) {
	if cfg.Path == "" {
		return wallet.NewRAMWallet(rand.Reader)
	}
	return wallet.CreateOrLoadFsWallet(cfg.Path, rand.Reader)
}

func openStore(cfg *config.StoreConfig, clk clock.Clock) (*connector.Connector, error) {
	if cfg.Path == "" {
		return connector.NewMemConnector(clk)
	}
	return connector.NewConnector(cfg.Path, clk)
}

func storeName(cfg *config.StoreConfig) string {
	if cfg.Path == "" {
		return "memory"
	}
	return cfg.Path
}
