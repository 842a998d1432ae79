package invocation

import (
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/metrics"
	"github.com/lcx/flightrpc/net"
)

// Filter returns the dispatcher filter enforcing mode.
//
// At-least-once passes every request through. At-most-once answers a cache
// hit with the cached bytes and marks the delivery replayed; on a miss it
// records whatever reply the rest of the chain sends. Nothing is recorded
// for a datagram that is dropped without a reply.
func Filter(mode Mode, cache *ResponseCache) net.DispatcherFilter {
	if mode == AtLeastOnce || cache == nil {
		return func(dd *net.DispatcherDelivery, f net.DispatcherFilterHandleFunc) error {
			return f(dd)
		}
	}

	return func(dd *net.DispatcherDelivery, f net.DispatcherFilterHandleFunc) error {
		req := dd.GetCurReq()
		key := Key{CorrelationID: req.CorrelationID, Addr: req.Addr}

		if raw, ok := cache.Get(key); ok {
			dd.Replayed = true
			metrics.IncrCounterWithDimGroup("invocation", "cache_total", 1, metrics.Dimension{"result": "hit"})
			log.Debug().Object(req).Msg("replaying cached reply")
			if dd.TransSendBack == nil {
				return nil
			}
			return dd.TransSendBack(net.NewResPkg(req, 0, nil, net.WithRaw(raw)))
		}
		metrics.IncrCounterWithDimGroup("invocation", "cache_total", 1, metrics.Dimension{"result": "miss"})

		next := dd.TransSendBack
		if next != nil {
			dd.TransSendBack = func(pkg *net.TransSendPkg) error {
				if cache.Put(key, pkg.Encode()) {
					metrics.UpdateGaugeWithGroup("invocation", "cache_entries", metrics.Value(cache.Len()))
				}
				return next(pkg)
			}
		}
		return f(dd)
	}
}
