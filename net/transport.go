// Package net implements the datagram side of the flight reservation service:
// the request/response/push envelope, the UDP transport, and the dispatcher
// that runs each inbound request through a filter chain to its service handler.
package net

// Transport defines the lifecycle shared by every transport component.
type Transport interface {
	// Start binds the transport and begins delivering packages to opt.Handler.
	// Returns an error if the socket cannot be created or bound.
	Start(TransportOption) error

	// StopRecv stops reading new datagrams. Packages already handed to the
	// dispatcher finish normally and the socket stays usable for sends.
	StopRecv() error

	// Stop fully shuts down the transport and releases the socket.
	Stop() error
}

// CSTransport extends Transport with the ability to address a client directly.
// Used both for solicited replies and for unsolicited pushes.
type CSTransport interface {
	Transport

	// SendToClient writes one datagram to pkg.Addr.
	// Returns an error if the socket write fails.
	SendToClient(pkg *TransSendPkg) error
}

// SendBackFunc sends a reply to whoever sent the package being handled.
// Filters may wrap it to observe or suppress replies.
type SendBackFunc func(pkg *TransSendPkg) error

// TransportDelivery couples a received package with the way to answer it.
type TransportDelivery struct {
	// TransSendBack replies through the transport that received Pkg.
	TransSendBack SendBackFunc

	// Pkg is the received datagram.
	Pkg *TransRecvPkg
}

// DispatcherReceiver is implemented by the dispatcher to receive packages from a transport.
type DispatcherReceiver interface {
	// OnRecvTransportPkg is called once per received datagram, on the
	// transport's receive goroutine. Returning an error only drops the datagram.
	OnRecvTransportPkg(td *TransportDelivery) error
}
