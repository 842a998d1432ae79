package net

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// DispatcherRecvLimiter implements a token bucket limiting the rate at which
// the dispatcher handles requests. The limiter is swapped atomically so it
// can be reloaded while the receive loop is using it.

type DispatcherRecvLimiter struct {
	// limiter holds a pointer to a rate.Limiter from golang.org/x/time/rate
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenRecvLimiter creates a new token bucket-based rate limiter.
//
// Parameters:
// - limit: The maximum number of requests allowed per second (RPS)
// - burst: The maximum burst size of requests that can be processed at once
//
// Example usage:
// limiter := NewTokenRecvLimiter(100, 10) // 100 requests per second with a burst of 10

func NewTokenRecvLimiter(limit int, burst int) *DispatcherRecvLimiter {
	self := &DispatcherRecvLimiter{}
	self.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
	return self
}

// Take blocks until a token is available.

func (l *DispatcherRecvLimiter) Take() error {
	return l.limiter.Load().Wait(context.Background())
}

// Reload swaps in a limiter with new settings.

func (l *DispatcherRecvLimiter) Reload(limit int, burst int) {
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// recvLimiterFilter is the filter chain hook of the limiter.

func (l *DispatcherRecvLimiter) recvLimiterFilter(d *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	if err := l.Take(); err != nil {
		return err
	}
	return f(d)
}

// FunnelLimiter implements a leaky bucket using Uber's ratelimit package.
// It spaces out sends evenly, which the push sender uses so a reservation
// on a heavily watched flight does not burst datagrams at the network.

type FunnelLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelLimiter creates a leaky bucket allowing limit operations per second.
// A limit of zero or less disables pacing.

func NewFunnelLimiter(limit int) *FunnelLimiter {
	self := &FunnelLimiter{}
	self.Reload(limit)
	return self
}

// Take blocks until the next operation may proceed.

func (l *FunnelLimiter) Take() {
	_ = (*l.limiter.Load()).Take()
}

// Reload swaps in a limiter with a new rate.

func (l *FunnelLimiter) Reload(limit int) {
	var limiter ratelimit.Limiter
	if limit <= 0 {
		limiter = ratelimit.NewUnlimited()
	} else {
		limiter = ratelimit.New(limit)
	}
	l.limiter.Store(&limiter)
}
