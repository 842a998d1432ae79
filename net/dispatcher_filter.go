package net

import (
	"fmt"

	"github.com/lcx/flightrpc/message"
)

// DispatcherFilterHandleFunc is the next step of a filter chain.
//
// Parameters:
// - dd: A pointer to the DispatcherDelivery containing the request to process
//
// Returns:
// An error if processing fails, or nil if successful

type DispatcherFilterHandleFunc func(dd *DispatcherDelivery) error

// DispatcherFilter is an interceptor inserted into the dispatcher pipeline.
// A filter either calls f to continue, or answers the request itself and
// returns without calling f (the invocation semantics cache does this on a hit).
//
// Parameters:
// - dd: A pointer to the DispatcherDelivery containing the request to filter
// - f: The next handle function in the chain
//
// Returns:
// An error if filtering fails, or the result of the next filter in the chain

type DispatcherFilter func(dd *DispatcherDelivery, f DispatcherFilterHandleFunc) error

// DispatcherFilterChain runs filters in order, each one wrapping the rest.

type DispatcherFilterChain []DispatcherFilter

// Handle processes a request through the entire filter chain using recursion.
// If the chain is empty, it directly calls the provided final handler function.
//
// Parameters:
// - dd: A pointer to the DispatcherDelivery containing the request to process
// - f: The final handler function to call after all filters have processed the request
//
// Returns:
// An error if any filter or the final handler fails, or nil if processing succeeds

func (fc DispatcherFilterChain) Handle(dd *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	if len(fc) == 0 {
		return f(dd)
	}
	return fc[0](dd, func(dd *DispatcherDelivery) error {
		return fc[1:].Handle(dd, f)
	})
}

// reloadMsgFilterCfg replaces the set of refused services.

func (dp *Dispatcher) reloadMsgFilterCfg(cfg *MsgFilterPluginCfg) {
	m := make(map[message.ServiceID]struct{}, len(cfg.MsgFilter))
	for _, id := range cfg.MsgFilter {
		m[message.ServiceID(id)] = struct{}{}
	}
	dp.msgFilterMap = m
}

// msgFilter answers requests for refused services with a TagError reply.
// It runs last, after every registered filter, so refusals obey the same
// invocation semantics as handler replies.
//
// Parameters:
// - d: A pointer to the DispatcherDelivery containing the request to filter
// - f: The next handle function in the chain
//
// Returns:
// The result of the reply if the service is refused, or of f otherwise

func (dp *Dispatcher) msgFilter(d *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	svc, _, err := d.Pkg.DecodeService()
	if err != nil {
		return f(d)
	}

	dp.lock.RLock()
	_, refused := dp.msgFilterMap[svc]
	dp.lock.RUnlock()
	if !refused {
		return f(d)
	}
	return d.sendBackErr(fmt.Sprintf("Service %d is disabled", svc))
}
