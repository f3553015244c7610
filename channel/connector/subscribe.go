// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"github.com/ethereum/go-ethereum/event"
	"perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"
)

// DefaultBufferSize is the number of events an EventSub buffers.
const DefaultBufferSize = 1024

// EventSub delivers the events that match a predicate in commit order.
type EventSub struct {
	log.Embedding

	sub    event.Subscription
	source chan []Event
	events chan Event
	pred   EventPredicate
	closer pkgsync.Closer
}

// Subscribe returns a subscription for all events that satisfy pred. A nil
// predicate matches all events.
func (c *Connector) Subscribe(pred EventPredicate) *EventSub {
	s := &EventSub{
		Embedding: log.MakeEmbedding(log.Default()),
		source:    make(chan []Event, DefaultBufferSize),
		events:    make(chan Event, DefaultBufferSize),
		pred:      pred,
	}
	s.sub = c.feed.Subscribe(s.source)
	go s.run()
	return s
}

func (s *EventSub) run() {
	defer close(s.events)
	defer s.sub.Unsubscribe()

	for {
		select {
		case batch := <-s.source:
			for _, ev := range batch {
				if s.pred != nil && !s.pred(ev) {
					continue
				}
				select {
				case s.events <- ev:
				case <-s.closer.Closed():
					return
				}
			}
		case err := <-s.sub.Err():
			if err != nil {
				s.Log().WithError(err).Error("event subscription failed")
			}
			return
		case <-s.closer.Closed():
			return
		}
	}
}

// Events returns the channel of matching events. It is closed when the
// subscription ends.
func (s *EventSub) Events() <-chan Event {
	return s.events
}

// Next blocks until the next event arrives. Returns nil once the subscription
// is closed.
func (s *EventSub) Next() Event {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil
		}
		return ev
	case <-s.closer.Closed():
		return nil
	}
}

// Close ends the subscription.
func (s *EventSub) Close() error {
	return s.closer.Close()
}
