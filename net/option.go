package net

import (
	"net/netip"

	"github.com/lcx/flightrpc/message"
)

// TransPkgOption configures a TransSendPkg.
//
// Usage example:
// pkg := NewResPkg(req, tag, body, WithRaw(cached))
type TransPkgOption func(*TransSendPkg)

// WithRaw makes the package send raw verbatim, ignoring tag and body.
func WithRaw(raw []byte) TransPkgOption {
	return func(pkg *TransSendPkg) {
		pkg.Raw = raw
	}
}

// WithAddr overrides the destination address.
func WithAddr(addr netip.AddrPort) TransPkgOption {
	return func(pkg *TransSendPkg) {
		pkg.Addr = addr
	}
}

// NewResPkg builds the reply to req.
func NewResPkg(req *TransRecvPkg, tag uint8, body []byte, opts ...TransPkgOption) *TransSendPkg {
	pkg := &TransSendPkg{
		Addr:          req.Addr,
		CorrelationID: req.CorrelationID,
		Tag:           tag,
		Body:          body,
	}
	for _, opt := range opts {
		opt(pkg)
	}
	return pkg
}

// NewErrPkg builds a TagError reply to req carrying msg.
func NewErrPkg(req *TransRecvPkg, msg string) *TransSendPkg {
	return NewResPkg(req, message.TagError, (&message.ErrorBody{Message: msg}).Marshal())
}

// NewNtfPkg builds a push to addr.
func NewNtfPkg(addr netip.AddrPort, tag uint8, body []byte, opts ...TransPkgOption) *TransSendPkg {
	pkg := &TransSendPkg{
		Addr: addr,
		Ntf:  true,
		Tag:  tag,
		Body: body,
	}
	for _, opt := range opts {
		opt(pkg)
	}
	return pkg
}

// TransportOption carries what a transport needs to start.
//
// Usage example:
//
//	transport.Start(TransportOption{
//	    Handler: dispatcher,
//	})
type TransportOption struct {
	// Handler receives every decoded datagram.
	Handler DispatcherReceiver
}
