// Package message defines the body layout of every service request, response
// and push carried by the flight reservation protocol.
package message

import (
	"fmt"

	"github.com/lcx/flightrpc/codec"
)

// ServiceID selects the handler for a request. On success the response
// handler tag equals the service id.
type ServiceID uint8

const (
	ServiceFlightIDs       ServiceID = 1
	ServiceSummary         ServiceID = 2
	ServiceReserveSeats    ServiceID = 3
	ServiceSubscribe       ServiceID = 4
	ServiceEarliestFlights ServiceID = 5
	ServiceReserveBaggage  ServiceID = 6
)

// Handler tags with a meaning of their own.
const (
	// TagError marks a response whose body is a single error string.
	TagError uint8 = 0
	// TagSeatUpdate marks a seat availability push. It reuses the subscribe service id.
	TagSeatUpdate = uint8(ServiceSubscribe)
)

// Ack is the success flag carried by reservation and subscribe responses.
const Ack uint8 = 1

var serviceNames = map[ServiceID]string{
	ServiceFlightIDs:       "flight_ids",
	ServiceSummary:         "summary",
	ServiceReserveSeats:    "reserve_seats",
	ServiceSubscribe:       "subscribe",
	ServiceEarliestFlights: "earliest_flights",
	ServiceReserveBaggage:  "reserve_baggage",
}

// String returns a short metric-friendly name.
func (s ServiceID) String() string {
	if n, ok := serviceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("service_%d", uint8(s))
}

// Valid reports whether s is one of the six known services.
func (s ServiceID) Valid() bool {
	_, ok := serviceNames[s]
	return ok
}

// Marshaler is implemented by every body type.
type Marshaler interface {
	Marshal() []byte
}

// Unmarshaler is implemented by every body type.
type Unmarshaler interface {
	Unmarshal(buf []byte) error
}

// ErrorBody is the body of a TagError response.
type ErrorBody struct {
	Message string
}

func (b *ErrorBody) Marshal() []byte {
	return codec.AppendString(nil, b.Message)
}

func (b *ErrorBody) Unmarshal(buf []byte) error {
	var err error
	b.Message, _, err = codec.String(buf, 0)
	return err
}

// AckBody is the one byte success flag response of services 3, 4 and 6.
type AckBody struct {
	Success uint8
}

func (b *AckBody) Marshal() []byte {
	return codec.AppendU8(nil, b.Success)
}

func (b *AckBody) Unmarshal(buf []byte) error {
	var err error
	b.Success, _, err = codec.U8(buf, 0)
	return err
}

// OK reports whether the flag is set.
func (b *AckBody) OK() bool {
	return b.Success == Ack
}
