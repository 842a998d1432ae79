// Package watchlist keeps, per flight, the clients that asked to be told
// about seat changes, and pushes them the new seat count.
//
// Expired subscriptions are never swept by a timer. They stay in the list
// until the next Notify for their flight skips and drops them.
package watchlist

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/metrics"
	"github.com/lcx/flightrpc/net"
)

// Entry is one subscription.
type Entry struct {
	Addr   netip.AddrPort
	Expiry time.Time
}

// Watchlist is safe for concurrent use.
type Watchlist struct {
	mu      sync.Mutex
	clock   clock.Clock
	sender  net.NtfPkgSender
	entries map[uint32][]Entry
}

// Option configures a Watchlist.
type Option func(*Watchlist)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(w *Watchlist) {
		w.clock = c
	}
}

// New creates a watchlist pushing through sender.
func New(sender net.NtfPkgSender, opts ...Option) *Watchlist {
	w := &Watchlist{
		clock:   clock.New(),
		sender:  sender,
		entries: make(map[uint32][]Entry),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe registers addr for pushes about flightID until interval from now
// and returns the expiry. An existing subscription from addr is replaced.
func (w *Watchlist) Subscribe(flightID uint32, addr netip.AddrPort, interval time.Duration) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := Entry{Addr: addr, Expiry: w.clock.Now().Add(interval)}
	list := w.entries[flightID]
	for i := range list {
		if list[i].Addr == addr {
			list[i] = e
			return e.Expiry
		}
	}
	w.entries[flightID] = append(list, e)
	metrics.IncrCounterWithGroup("watchlist", "subscribe_total", 1)
	return e.Expiry
}

// Notify pushes seats to every live subscriber of flightID and drops the
// expired ones. It returns how many pushes were sent. Every subscriber is
// tried; the returned error joins the failed sends.
func (w *Watchlist) Notify(flightID, seats uint32) (int, error) {
	w.mu.Lock()
	now := w.clock.Now()
	list := w.entries[flightID]
	live := list[:0]
	for _, e := range list {
		if e.Expiry.After(now) {
			live = append(live, e)
		}
	}
	expired := len(list) - len(live)
	if len(live) == 0 {
		delete(w.entries, flightID)
	} else {
		w.entries[flightID] = live
	}
	targets := append([]Entry(nil), live...)
	w.mu.Unlock()

	if expired > 0 {
		metrics.IncrCounterWithGroup("watchlist", "expired_total", metrics.Value(expired))
		log.Debug().Uint32("flight", flightID).Int("expired", expired).Msg("watchlist entries expired")
	}

	body := (&message.SeatUpdate{FlightID: flightID, Seats: seats}).Marshal()
	var errs []error
	delivered := 0
	for _, e := range targets {
		if err := w.sender.NtfClient(net.NewNtfPkg(e.Addr, message.TagSeatUpdate, body)); err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", e.Addr, err))
			continue
		}
		delivered++
	}
	metrics.IncrCounterWithGroup("watchlist", "push_total", metrics.Value(delivered))
	return delivered, errors.Join(errs...)
}

// Entries returns a copy of the subscriptions of flightID, expired ones included.
func (w *Watchlist) Entries(flightID uint32) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.entries[flightID]...)
}

// Len returns the number of subscriptions over all flights.
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, list := range w.entries {
		n += len(list)
	}
	return n
}
