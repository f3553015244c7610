// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/raulk/clock"
	"perun.network/go-perun/log"

	"perun.network/perun-forcemove-backend/app"
	"perun.network/perun-forcemove-backend/client"
	"perun.network/perun-forcemove-backend/config"
	"perun.network/perun-forcemove-backend/setup"
	"perun.network/perun-forcemove-backend/wallet"
)

const (
	configFile        = "forcemove.toml"
	challengeDuration = 2 // seconds
)

var (
	// demoApp is the app definition of the demo channels.
	demoApp = wallet.Address(common.HexToAddress("0x00000000000000000000000000000000000fc0de"))
	chainID = big.NewInt(1337)
	ether   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func main() {
	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Default().Fatalf("loading config: %v", err)
	}
	s, err := setup.NewSetup(cfg, clock.New())
	if err != nil {
		log.Default().Fatalf("setting up backend: %v", err)
	}
	defer s.Close()

	if err := run(context.Background(), s, os.Stdout, func(uint64) {}); err != nil {
		log.Default().Fatalf("demo: %v", err)
	}
}

// loadConfig reads path if it exists and returns the defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.NewDefaultConfig(), nil
	}
	return config.ReadFile(path)
}

// run settles one channel cooperatively and one through a dispute. elapse
// is called with the number of seconds a dispute needs to finalize.
func run(ctx context.Context, s *setup.Setup, out io.Writer, elapse func(sec uint64)) error {
	if err := s.Registry.RegisterKind(demoApp, app.KindConsensus); err != nil {
		return err
	}
	alice := client.SetupPaymentClient(s.Wallet, s.Adj, s.Funder, chainID)
	defer alice.Shutdown()
	bob := client.SetupPaymentClient(s.Wallet, s.Adj, s.Funder, chainID)
	defer bob.Shutdown()

	fmt.Fprintln(out, "Settling a channel cooperatively")
	a, b, err := openChannel(ctx, alice, bob)
	if err != nil {
		return err
	}
	if err := pay(out, a, b); err != nil {
		return err
	}
	if err := client.Finalize(a, b); err != nil {
		return errors.WithMessage(err, "finalizing")
	}
	if err := a.Settle(ctx); err != nil {
		return errors.WithMessage(err, "settling")
	}
	if err := b.Settle(ctx); err != nil {
		return errors.WithMessage(err, "settling")
	}
	if err := printBalances(out, alice, bob); err != nil {
		return err
	}

	fmt.Fprintln(out, "Settling a channel through a dispute")
	a, b, err = openChannel(ctx, alice, bob)
	if err != nil {
		return err
	}
	if err := pay(out, a, b); err != nil {
		return err
	}
	if err := b.Dispute(ctx); err != nil {
		return errors.WithMessage(err, "disputing")
	}
	elapse(challengeDuration)
	if _, err := b.Withdraw(ctx); err != nil {
		return errors.WithMessage(err, "withdrawing")
	}
	return printBalances(out, alice, bob)
}

func openChannel(ctx context.Context, alice, bob *client.PaymentClient) (*client.PaymentChannel, *client.PaymentChannel, error) {
	a, prop, err := alice.ProposeChannel(bob.Address(), demoApp, [2]*big.Int{ether, ether}, challengeDuration)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "proposing channel")
	}
	b, err := bob.HandleProposal(prop)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "accepting channel")
	}
	if err := client.Open(ctx, prop, a, b); err != nil {
		return nil, nil, errors.WithMessage(err, "opening channel")
	}
	return a, b, nil
}

func pay(out io.Writer, a, b *client.PaymentChannel) error {
	tenth := new(big.Int).Div(ether, big.NewInt(10))
	for _, from := range []*client.PaymentChannel{a, a, b} {
		if err := client.Pay(from, tenth, a, b); err != nil {
			return errors.WithMessage(err, "paying")
		}
	}
	v, err := a.State()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "  ", client.FormatState(v))
	return nil
}

func printBalances(out io.Writer, clients ...*client.PaymentClient) error {
	for i, c := range clients {
		bal, err := c.OwnBalance()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "   client %d paid out %s\n", i, client.FormatBalance(bal))
	}
	return nil
}
