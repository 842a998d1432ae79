package client

import (
	"context"
	"fmt"

	"github.com/lcx/flightrpc/message"
)

func (c *Client) call(ctx context.Context, service message.ServiceID, req message.Marshaler, res message.Unmarshaler) error {
	tag, body, err := c.Call(ctx, service, req.Marshal())
	if err != nil {
		return err
	}
	if tag != uint8(service) {
		return fmt.Errorf("%w: %d for %s", ErrUnexpectedTag, tag, service)
	}
	if err := res.Unmarshal(body); err != nil {
		return fmt.Errorf("decode %s reply: %w", service, err)
	}
	return nil
}

func (c *Client) ack(ctx context.Context, service message.ServiceID, req message.Marshaler) error {
	var res message.AckBody
	if err := c.call(ctx, service, req, &res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s not acknowledged: flag %d", service, res.Success)
	}
	return nil
}

// FlightIDs returns the flights from source to destination.
func (c *Client) FlightIDs(ctx context.Context, source, destination string) ([]uint32, error) {
	var res message.FlightIDsRes
	err := c.call(ctx, message.ServiceFlightIDs, &message.FlightIDsReq{Source: source, Destination: destination}, &res)
	return res.FlightIDs, err
}

// Summary returns departure time, airfare, seats and baggage capacity of a flight.
func (c *Client) Summary(ctx context.Context, flightID uint32) (message.SummaryRes, error) {
	var res message.SummaryRes
	err := c.call(ctx, message.ServiceSummary, &message.FlightReq{FlightID: flightID}, &res)
	return res, err
}

func (c *Client) ReserveSeats(ctx context.Context, flightID, seats uint32) error {
	return c.ack(ctx, message.ServiceReserveSeats, &message.FlightAmountReq{FlightID: flightID, Amount: seats})
}

// Subscribe asks for seat pushes about flightID for intervalSec seconds.
// Follow it with Monitor to receive them.
func (c *Client) Subscribe(ctx context.Context, flightID, intervalSec uint32) error {
	return c.ack(ctx, message.ServiceSubscribe, &message.FlightAmountReq{FlightID: flightID, Amount: intervalSec})
}

// EarliestFlights returns the flights leaving source first. Empty when none has seats.
func (c *Client) EarliestFlights(ctx context.Context, source string) ([]uint32, error) {
	var res message.FlightIDsRes
	err := c.call(ctx, message.ServiceEarliestFlights, &message.SourceReq{Source: source}, &res)
	return res.FlightIDs, err
}

func (c *Client) ReserveBaggage(ctx context.Context, flightID, kg uint32) error {
	return c.ack(ctx, message.ServiceReserveBaggage, &message.FlightAmountReq{FlightID: flightID, Amount: kg})
}
