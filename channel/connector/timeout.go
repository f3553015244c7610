// Copyright 2023 - See NOTICE file for copyright holders.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connector

import (
	"context"
	"time"

	"github.com/raulk/clock"
	pchannel "perun.network/go-perun/channel"
	"perun.network/go-perun/log"
)

type (
	// ExpiredTimeout is always expired.
	// Implements the Perun Timeout interface.
	ExpiredTimeout struct{}

	// Timeout can be used to wait until a challenge finalizes. Implements the
	// Perun Timeout interface.
	Timeout struct {
		log.Embedding

		clock        clock.Clock
		when         time.Time
		pollInterval time.Duration
	}
)

// DefaultTimeoutPollInterval default value for the PollInterval of a Timeout.
const DefaultTimeoutPollInterval = 1 * time.Second

var (
	_ pchannel.Timeout = (*ExpiredTimeout)(nil)
	_ pchannel.Timeout = (*Timeout)(nil)
)

// NewExpiredTimeout returns a new ExpiredTimeout.
func NewExpiredTimeout() *ExpiredTimeout {
	return &ExpiredTimeout{}
}

// IsElapsed returns true.
func (*ExpiredTimeout) IsElapsed(context.Context) bool {
	return true
}

// Wait returns nil.
func (*ExpiredTimeout) Wait(context.Context) error {
	return nil
}

// NewTimeout returns a new Timeout which expires at the given time of clk.
func NewTimeout(clk clock.Clock, when time.Time, pollInterval time.Duration) *Timeout {
	return &Timeout{log.MakeEmbedding(log.Default()), clk, when, pollInterval}
}

// IsElapsed returns whether the timeout is elapsed.
func (t *Timeout) IsElapsed(context.Context) bool {
	now := t.clock.Now()
	elapsed := !now.Before(t.when)

	if elapsed {
		t.Log().Tracef("Timeout elapsed since %v", now.Sub(t.when))
	} else {
		t.Log().Tracef("Timeout target in %v", t.when.Sub(now))
	}
	return elapsed
}

// Wait waits for the timeout or until the context is cancelled.
func (t *Timeout) Wait(ctx context.Context) error {
	for !t.IsElapsed(ctx) {
		d := t.clock.Until(t.when)
		if d > t.pollInterval {
			d = t.pollInterval
		}
		timer := t.clock.Timer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// MakeTimeout creates a timeout that elapses at finalizesAt.
func MakeTimeout(clk clock.Clock, finalizesAt Timestamp) pchannel.Timeout {
	return NewTimeout(clk, MakeTime(finalizesAt), DefaultTimeoutPollInterval)
}

// MakeTime converts a Timestamp into a time.Time.
func MakeTime(sec Timestamp) time.Time {
	return time.Unix(int64(sec), 0)
}
