package net

import (
	"sync"

	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/metrics"
)

// NtfPkgSender sends unsolicited pushes to clients.
// Implemented by NtfSender; the watchlist depends only on this interface.
type NtfPkgSender interface {
	// NtfClient sends a push package to pkg.Addr.
	// Returns an error if the push cannot be written to the socket.
	NtfClient(pkg *TransSendPkg) error
}

// FailureInjector drops every other reply to exercise client retransmission
// and reply caching. The first reply is dropped. Pushes are never affected
// because they do not go through a send-back function.
type FailureInjector struct {
	mu   sync.Mutex
	drop bool
}

// NewFailureInjector creates an injector whose first reply will be dropped.
func NewFailureInjector() *FailureInjector {
	return &FailureInjector{drop: true}
}

// Wrap returns a SendBackFunc that alternately drops and forwards to next.
func (fi *FailureInjector) Wrap(next SendBackFunc) SendBackFunc {
	return func(pkg *TransSendPkg) error {
		fi.mu.Lock()
		drop := fi.drop
		fi.drop = !fi.drop
		fi.mu.Unlock()

		if drop {
			metrics.IncrCounterWithGroup("net", "reply_dropped_total", 1)
			log.Info().Object(pkg).Msg("simulating failure, reply dropped")
			return nil
		}
		return next(pkg)
	}
}
