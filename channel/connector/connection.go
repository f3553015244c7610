// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/raulk/clock"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"perun.network/go-perun/log"
)

// Connector is the keyed store that holds channel statuses, holdings and
// external payouts. All mutations run inside Update and are applied
// all-or-nothing. Mutations are serialized, reads work on snapshots.
type Connector struct {
	log.Embedding

	db      *leveldb.DB
	clock   clock.Clock
	metrics *Metrics

	feed   event.Feed
	sendMu sync.Mutex
}

// Reader is the read access to the store.
type Reader interface {
	// Status returns the status of a channel. Untouched channels have the
	// zero Status.
	Status(id ChannelID) (Status, error)
	// Holdings returns the amount of asset held for a channel.
	Holdings(asset Asset, id ChannelID) (*big.Int, error)
	// Withdrawn returns the total amount of asset paid out to an external
	// receiver.
	Withdrawn(asset Asset, receiver common.Address) (*big.Int, error)
}

type getter interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

type reader struct {
	g getter
}

// Txn is a running store transaction. Writes become visible to other callers
// only after the enclosing Update returns without error.
type Txn struct {
	reader

	tr     *leveldb.Transaction
	events []Event
}

// NewMemConnector returns a Connector backed by memory.
func NewMemConnector(clk clock.Clock) (*Connector, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.WithMessage(err, "opening memory store")
	}
	return newConnector(db, clk), nil
}

// NewConnector returns a Connector persisted at path. An empty path selects
// the memory store.
func NewConnector(path string, clk clock.Clock) (*Connector, error) {
	if path == "" {
		return NewMemConnector(clk)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening store at %s", path)
	}
	return newConnector(db, clk), nil
}

func newConnector(db *leveldb.DB, clk clock.Clock) *Connector {
	if clk == nil {
		clk = clock.New()
	}
	return &Connector{
		Embedding: log.MakeEmbedding(log.Default()),
		db:        db,
		clock:     clk,
		metrics:   NewMetrics(),
	}
}

// Clock returns the time source of the connector.
func (c *Connector) Clock() clock.Clock {
	return c.clock
}

// Now returns the current time in seconds.
func (c *Connector) Now() Timestamp {
	now := c.clock.Now().Unix()
	if now < 0 {
		return 0
	}
	return Timestamp(now)
}

// Metrics returns the operation counters of the connector.
func (c *Connector) Metrics() *Metrics {
	return c.metrics
}

// Update runs fn in a transaction. The transaction is committed if fn returns
// nil and discarded otherwise. Events emitted by fn are published after the
// commit. op labels the operation in the metrics.
func (c *Connector) Update(op string, fn func(*Txn) error) (err error) {
	defer func() { c.metrics.observe(op, err) }()

	tr, err := c.db.OpenTransaction()
	if err != nil {
		return errors.WithMessage(err, "opening transaction")
	}
	txn := &Txn{reader: reader{tr}, tr: tr}
	if err = fn(txn); err != nil {
		tr.Discard()
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err = tr.Commit(); err != nil {
		tr.Discard()
		return errors.WithMessage(err, "committing transaction")
	}
	if len(txn.events) > 0 {
		c.metrics.events.Add(float64(len(txn.events)))
		c.feed.Send(txn.events)
	}
	return nil
}

// View runs fn on a consistent snapshot of the store.
func (c *Connector) View(fn func(Reader) error) error {
	snap, err := c.db.GetSnapshot()
	if err != nil {
		return errors.WithMessage(err, "taking snapshot")
	}
	defer snap.Release()
	return fn(reader{snap})
}

// Status reads the status of a channel from a fresh snapshot.
func (c *Connector) Status(id ChannelID) (s Status, err error) {
	err = c.View(func(r Reader) error {
		s, err = r.Status(id)
		return err
	})
	return
}

// Holdings reads the holdings of a channel from a fresh snapshot.
func (c *Connector) Holdings(asset Asset, id ChannelID) (h *big.Int, err error) {
	err = c.View(func(r Reader) error {
		h, err = r.Holdings(asset, id)
		return err
	})
	return
}

// Withdrawn reads the payouts of a receiver from a fresh snapshot.
func (c *Connector) Withdrawn(asset Asset, receiver common.Address) (w *big.Int, err error) {
	err = c.View(func(r Reader) error {
		w, err = r.Withdrawn(asset, receiver)
		return err
	})
	return
}

// Close closes the underlying store.
func (c *Connector) Close() error {
	return c.db.Close()
}

func (r reader) get(key []byte) ([]byte, error) {
	data, err := r.g.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (r reader) Status(id ChannelID) (Status, error) {
	data, err := r.get(statusKey(id))
	if err != nil || data == nil {
		return Status{}, err
	}
	return decodeStatus(data)
}

func (r reader) Holdings(asset Asset, id ChannelID) (*big.Int, error) {
	data, err := r.get(holdingsKey(asset, id))
	if err != nil {
		return nil, err
	}
	return decodeAmount(data), nil
}

func (r reader) Withdrawn(asset Asset, receiver common.Address) (*big.Int, error) {
	data, err := r.get(withdrawnKey(asset, receiver))
	if err != nil {
		return nil, err
	}
	return decodeAmount(data), nil
}

// SetStatus overwrites the status of a channel.
func (t *Txn) SetStatus(id ChannelID, s Status) error {
	return t.tr.Put(statusKey(id), s[:], nil)
}

// SetHoldings overwrites the holdings of a channel. Zero holdings are removed.
func (t *Txn) SetHoldings(asset Asset, id ChannelID, amount *big.Int) error {
	if amount.Sign() == 0 {
		return t.tr.Delete(holdingsKey(asset, id), nil)
	}
	data, err := encodeAmount(amount)
	if err != nil {
		return err
	}
	return t.tr.Put(holdingsKey(asset, id), data, nil)
}

// AddWithdrawn credits amount to the payouts of an external receiver.
func (t *Txn) AddWithdrawn(asset Asset, receiver common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	total, err := t.Withdrawn(asset, receiver)
	if err != nil {
		return err
	}
	data, err := encodeAmount(total.Add(total, amount))
	if err != nil {
		return err
	}
	return t.tr.Put(withdrawnKey(asset, receiver), data, nil)
}

// Emit records an event that is published once the transaction commits.
func (t *Txn) Emit(ev Event) {
	t.events = append(t.events, ev)
}
