package net

import (
	"github.com/lcx/flightrpc/codec"
)

// PRE_HEAD_SIZE 请求/响应公共头长度: u32 correlation id + u8 tag.
const PRE_HEAD_SIZE = 5

// PUSH_HEAD_SIZE 推送头长度, 推送不带 correlation id.
const PUSH_HEAD_SIZE = 1

// PreHead 头部. Tag is the service id on a request and the handler tag on a response.
type PreHead struct {
	CorrelationID uint32
	Tag           uint8
}

// EncodePreHead appends the header to dst.
func EncodePreHead(dst []byte, hdr *PreHead) []byte {
	dst = codec.AppendU32(dst, hdr.CorrelationID)
	return codec.AppendU8(dst, hdr.Tag)
}

// DecodePreHead 解 prehead, returning the header and the remaining body.
func DecodePreHead(buf []byte) (*PreHead, []byte, error) {
	id, off, err := codec.U32(buf, 0)
	if err != nil {
		return nil, nil, err
	}
	tag, off, err := codec.U8(buf, off)
	if err != nil {
		return nil, nil, err
	}
	return &PreHead{CorrelationID: id, Tag: tag}, buf[off:], nil
}
