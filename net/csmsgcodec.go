package net

import (
	"errors"
	"fmt"

	"github.com/lcx/flightrpc/codec"
	"github.com/lcx/flightrpc/message"
)

// MaxDatagramSize is the largest datagram either side reads or writes.
const MaxDatagramSize = 2048

// ErrDatagramTooLarge is returned when an encoded envelope exceeds MaxDatagramSize.
var ErrDatagramTooLarge = errors.New("datagram exceeds max size")

// EncodeRequest frames a client request: u32 correlation id, u8 service id, body.
func EncodeRequest(correlationID uint32, service message.ServiceID, body []byte) []byte {
	buf := make([]byte, 0, PRE_HEAD_SIZE+len(body))
	buf = EncodePreHead(buf, &PreHead{CorrelationID: correlationID, Tag: uint8(service)})
	return append(buf, body...)
}

// EncodeResponse frames a solicited reply: u32 correlation id, u8 handler tag, body.
func EncodeResponse(correlationID uint32, tag uint8, body []byte) []byte {
	buf := make([]byte, 0, PRE_HEAD_SIZE+len(body))
	buf = EncodePreHead(buf, &PreHead{CorrelationID: correlationID, Tag: tag})
	return append(buf, body...)
}

// EncodePush frames an unsolicited push: u8 handler tag, body. There is no correlation id.
func EncodePush(tag uint8, body []byte) []byte {
	buf := make([]byte, 0, PUSH_HEAD_SIZE+len(body))
	buf = codec.AppendU8(buf, tag)
	return append(buf, body...)
}

// DecodeRequest splits a request datagram. The body aliases buf.
func DecodeRequest(buf []byte) (correlationID uint32, service message.ServiceID, body []byte, err error) {
	hdr, body, err := DecodePreHead(buf)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decode request: %w", err)
	}
	return hdr.CorrelationID, message.ServiceID(hdr.Tag), body, nil
}

// DecodeResponse splits a response datagram. The body aliases buf.
func DecodeResponse(buf []byte) (correlationID uint32, tag uint8, body []byte, err error) {
	hdr, body, err := DecodePreHead(buf)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decode response: %w", err)
	}
	return hdr.CorrelationID, hdr.Tag, body, nil
}

// DecodePush splits a push datagram. The body aliases buf.
func DecodePush(buf []byte) (tag uint8, body []byte, err error) {
	tag, off, err := codec.U8(buf, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("decode push: %w", err)
	}
	return tag, buf[off:], nil
}
