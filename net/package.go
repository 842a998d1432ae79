package net

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/lcx/flightrpc/codec"
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/message"
)

// TransRecvPkg is one received request datagram.
// Only the correlation id is decoded eagerly; the service id is decoded on
// first use so a cached reply can be replayed without touching the rest.
type TransRecvPkg struct {
	// Addr is the sender's address. Together with CorrelationID it identifies a logical request.
	Addr netip.AddrPort

	// CorrelationID is the client assigned id echoed in the reply.
	CorrelationID uint32

	// RecvTime is when the transport read the datagram.
	RecvTime time.Time

	decoded bool
	service message.ServiceID
	rest    []byte
	body    []byte
}

// NewTransRecvPkg decodes the correlation id of a raw request datagram.
// Returns codec.ErrShortBuffer when the datagram is shorter than 4 bytes.
func NewTransRecvPkg(addr netip.AddrPort, data []byte) (*TransRecvPkg, error) {
	id, off, err := codec.U32(data, 0)
	if err != nil {
		return nil, fmt.Errorf("decode correlation id: %w", err)
	}
	return &TransRecvPkg{
		Addr:          addr,
		CorrelationID: id,
		RecvTime:      time.Now(),
		rest:          data[off:],
	}, nil
}

// DecodeService lazily decodes the service id and returns it with the request body.
func (t *TransRecvPkg) DecodeService() (message.ServiceID, []byte, error) {
	if t.decoded {
		return t.service, t.body, nil
	}
	id, off, err := codec.U8(t.rest, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("decode service id: %w", err)
	}
	t.decoded = true
	t.service = message.ServiceID(id)
	t.body = t.rest[off:]
	return t.service, t.body, nil
}

// MarshalLogObj adds the package identity to a log event.
func (t *TransRecvPkg) MarshalLogObj(e *log.LogEvent) {
	e.Str("addr", t.Addr.String()).Uint32("cid", t.CorrelationID)
	if t.decoded {
		e.Str("service", t.service.String())
	}
}

// TransSendPkg is one outgoing datagram, either a reply or a push.
type TransSendPkg struct {
	// Addr is the destination.
	Addr netip.AddrPort

	// Ntf marks an unsolicited push, which is framed without a correlation id.
	Ntf bool

	// CorrelationID echoes the request. Unused for pushes.
	CorrelationID uint32

	// Tag is the handler tag: the service id on success, message.TagError on failure.
	Tag uint8

	// Body is the encoded response or push body.
	Body []byte

	// Raw, when set, is sent verbatim instead of framing Tag and Body.
	// Used to replay a cached reply byte for byte.
	Raw []byte
}

// Encode returns the datagram bytes for the package.
func (t *TransSendPkg) Encode() []byte {
	if t.Raw != nil {
		return t.Raw
	}
	if t.Ntf {
		return EncodePush(t.Tag, t.Body)
	}
	return EncodeResponse(t.CorrelationID, t.Tag, t.Body)
}

// IsError reports whether the package carries an application error.
func (t *TransSendPkg) IsError() bool {
	return t.Raw == nil && t.Tag == message.TagError
}

// MarshalLogObj adds the package identity to a log event.
func (t *TransSendPkg) MarshalLogObj(e *log.LogEvent) {
	e.Str("addr", t.Addr.String()).Bool("ntf", t.Ntf)
	if !t.Ntf {
		e.Uint32("cid", t.CorrelationID)
	}
	if t.Raw != nil {
		e.Bool("replay", true)
		return
	}
	e.Int("tag", int(t.Tag))
}
