// Package service implements the six flight services on top of the flight
// store and the watchlist, and registers them with a message manager.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/lcx/flightrpc/flight"
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/net"
	"github.com/lcx/flightrpc/watchlist"
)

// Services holds the state the handlers work on.
type Services struct {
	store *flight.Store
	watch *watchlist.Watchlist
}

// New creates the services over store and watch.
func New(store *flight.Store, watch *watchlist.Watchlist) *Services {
	return &Services{store: store, watch: watch}
}

// Register adds every service to mgr.
func (s *Services) Register(mgr *net.MessageManager) error {
	handlers := map[message.ServiceID]net.MsgHandle{
		message.ServiceFlightIDs:       s.FlightIDs,
		message.ServiceSummary:         s.Summary,
		message.ServiceReserveSeats:    s.ReserveSeats,
		message.ServiceSubscribe:       s.Subscribe,
		message.ServiceEarliestFlights: s.EarliestFlights,
		message.ServiceReserveBaggage:  s.ReserveBaggage,
	}
	for id, h := range handlers {
		if err := mgr.RegisterMsgHandle(id, h); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	return nil
}

func decode(body []byte, req message.Unmarshaler) error {
	if err := req.Unmarshal(body); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// appError maps store errors to the message the client sees.
func appError(id uint32, err error) error {
	if errors.Is(err, flight.ErrFlightNotFound) {
		return net.NewAppError(err, "Flight %d not found", id)
	}
	var short *flight.ShortageError
	if !errors.As(err, &short) {
		return err
	}
	switch {
	case errors.Is(err, flight.ErrNotEnoughSeats):
		return net.NewAppError(err, "Not enough seats available: requested %d, available %d", short.Requested, short.Available)
	case errors.Is(err, flight.ErrNotEnoughBaggage):
		return net.NewAppError(err, "Not enough baggage capacity available: requested %d, available %d", short.Requested, short.Available)
	}
	return err
}

// FlightIDs lists the flights of a route. An empty route is an error.
func (s *Services) FlightIDs(_ *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.FlightIDsReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	ids := s.store.FindByRoute(req.Source, req.Destination)
	if len(ids) == 0 {
		return nil, net.NewAppError(nil, "No flights found from %s to %s", req.Source, req.Destination)
	}
	return (&message.FlightIDsRes{FlightIDs: ids}).Marshal(), nil
}

func (s *Services) Summary(_ *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.FlightReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	f, err := s.store.Get(req.FlightID)
	if err != nil {
		return nil, appError(req.FlightID, err)
	}
	return (&message.SummaryRes{
		DepartureTime:     f.DepartureTime,
		Airfare:           f.Airfare,
		Seats:             f.Seats,
		BaggageCapacityKg: f.BaggageCapacityKg,
	}).Marshal(), nil
}

// ReserveSeats commits the reservation, notifies the watchlist of the new
// seat count, then acknowledges. A push that fails on the socket is returned
// so the transport can stop; other push errors are only logged.
func (s *Services) ReserveSeats(dd *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.FlightAmountReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	left, err := s.store.ReserveSeats(req.FlightID, req.Amount)
	if err != nil {
		return nil, appError(req.FlightID, err)
	}
	log.Info().Object(dd.GetCurReq()).Uint32("flight", req.FlightID).Uint32("seats", req.Amount).
		Uint32("left", left).Msg("seats reserved")

	if s.watch != nil {
		n, err := s.watch.Notify(req.FlightID, left)
		if err != nil {
			log.Error().Uint32("flight", req.FlightID).Int("delivered", n).Err(err).Msg("seat update push failed")
			if errors.Is(err, net.ErrSendFailed) {
				return nil, err
			}
		}
	}
	return (&message.AckBody{Success: message.Ack}).Marshal(), nil
}

// Subscribe registers the requesting address for seat updates of an existing flight.
func (s *Services) Subscribe(dd *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.FlightAmountReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if _, err := s.store.Get(req.FlightID); err != nil {
		return nil, appError(req.FlightID, err)
	}
	if s.watch != nil {
		expiry := s.watch.Subscribe(req.FlightID, dd.GetReqAddr(), time.Duration(req.Amount)*time.Second)
		log.Info().Object(dd.GetCurReq()).Uint32("flight", req.FlightID).Time("expiry", &expiry).Msg("client subscribed")
	}
	return (&message.AckBody{Success: message.Ack}).Marshal(), nil
}

// EarliestFlights never fails; no match is an empty list.
func (s *Services) EarliestFlights(_ *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.SourceReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	return (&message.FlightIDsRes{FlightIDs: s.store.EarliestFromSource(req.Source)}).Marshal(), nil
}

func (s *Services) ReserveBaggage(dd *net.DispatcherDelivery, body []byte) ([]byte, error) {
	var req message.FlightAmountReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	left, err := s.store.ReserveBaggage(req.FlightID, req.Amount)
	if err != nil {
		return nil, appError(req.FlightID, err)
	}
	log.Info().Object(dd.GetCurReq()).Uint32("flight", req.FlightID).Uint32("kg", req.Amount).
		Uint32("left", left).Msg("baggage reserved")
	return (&message.AckBody{Success: message.Ack}).Marshal(), nil
}
