package service

import (
	"net/netip"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/flightrpc/codec"
	"github.com/lcx/flightrpc/flight"
	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/net"
	"github.com/lcx/flightrpc/watchlist"
)

var (
	booker  = netip.MustParseAddrPort("127.0.0.1:41000")
	watcher = netip.MustParseAddrPort("127.0.0.1:41001")
)

type pushSink struct {
	pkgs []*net.TransSendPkg
	err  error
}

func (p *pushSink) NtfClient(pkg *net.TransSendPkg) error {
	if p.err != nil {
		return p.err
	}
	p.pkgs = append(p.pkgs, pkg)
	return nil
}

type fixture struct {
	store    *flight.Store
	pushes   *pushSink
	d        *net.Dispatcher
	replies  []*net.TransSendPkg
	nextCID  uint32
	clock    *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := flight.NewStore([]flight.Flight{
		{ID: 1, Source: "A", Destination: "B", DepartureTime: 1700000000, Seats: 10, Airfare: 199.5, BaggageCapacityKg: 100},
		{ID: 2, Source: "A", Destination: "B", DepartureTime: 1700000000, Seats: 20, Airfare: 249, BaggageCapacityKg: 200},
		{ID: 3, Source: "C", Destination: "D", DepartureTime: 1800000000, Seats: 30, Airfare: 99.9, BaggageCapacityKg: 150},
	})
	require.NoError(t, err)

	f := &fixture{store: store, pushes: &pushSink{}, clock: clock.NewMock()}
	mgr := net.NewMessageManager()
	require.NoError(t, New(store, watchlist.New(f.pushes, watchlist.WithClock(f.clock))).Register(mgr))
	assert.Len(t, mgr.GetAllMsgList(nil), 6)

	f.d, err = net.NewDispatcher(net.DefaultDispatcherConfig(), mgr, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) call(t *testing.T, from netip.AddrPort, svc message.ServiceID, body []byte) (*net.TransSendPkg, error) {
	t.Helper()
	f.nextCID++
	pkg, err := net.NewTransRecvPkg(from, net.EncodeRequest(f.nextCID, svc, body))
	require.NoError(t, err)
	n := len(f.replies)
	err = f.d.OnRecvTransportPkg(&net.TransportDelivery{
		Pkg: pkg,
		TransSendBack: func(p *net.TransSendPkg) error {
			f.replies = append(f.replies, p)
			return nil
		},
	})
	if len(f.replies) == n {
		return nil, err
	}
	reply := f.replies[len(f.replies)-1]
	assert.Equal(t, f.nextCID, reply.CorrelationID)
	return reply, err
}

func errText(t *testing.T, pkg *net.TransSendPkg) string {
	t.Helper()
	require.NotNil(t, pkg)
	require.Equal(t, message.TagError, pkg.Tag)
	var e message.ErrorBody
	require.NoError(t, e.Unmarshal(pkg.Body))
	return e.Message
}

func acked(t *testing.T, pkg *net.TransSendPkg, svc message.ServiceID) {
	t.Helper()
	require.NotNil(t, pkg)
	require.Equal(t, uint8(svc), pkg.Tag, "unexpected error reply")
	var ack message.AckBody
	require.NoError(t, ack.Unmarshal(pkg.Body))
	assert.True(t, ack.OK())
}

func summary(t *testing.T, f *fixture, id uint32) message.SummaryRes {
	t.Helper()
	reply, err := f.call(t, booker, message.ServiceSummary, (&message.FlightReq{FlightID: id}).Marshal())
	require.NoError(t, err)
	require.Equal(t, uint8(message.ServiceSummary), reply.Tag)
	var res message.SummaryRes
	require.NoError(t, res.Unmarshal(reply.Body))
	return res
}

func TestFlightIDs(t *testing.T) {
	f := newFixture(t)

	reply, err := f.call(t, booker, message.ServiceFlightIDs, (&message.FlightIDsReq{Source: "A", Destination: "B"}).Marshal())
	require.NoError(t, err)
	require.Equal(t, uint8(message.ServiceFlightIDs), reply.Tag)
	var res message.FlightIDsRes
	require.NoError(t, res.Unmarshal(reply.Body))
	assert.Equal(t, []uint32{1, 2}, res.FlightIDs)

	reply, err = f.call(t, booker, message.ServiceFlightIDs, (&message.FlightIDsReq{Source: "B", Destination: "A"}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, "No flights found from B to A", errText(t, reply))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, message.SummaryRes{DepartureTime: 1700000000, Airfare: 199.5, Seats: 10, BaggageCapacityKg: 100}, summary(t, f, 1))

	reply, err := f.call(t, booker, message.ServiceSummary, (&message.FlightReq{FlightID: 77}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, "Flight 77 not found", errText(t, reply))
}

func TestReserveSeatsNotifiesSubscribers(t *testing.T) {
	f := newFixture(t)

	reply, err := f.call(t, watcher, message.ServiceSubscribe, (&message.FlightAmountReq{FlightID: 1, Amount: 60}).Marshal())
	require.NoError(t, err)
	acked(t, reply, message.ServiceSubscribe)

	reply, err = f.call(t, booker, message.ServiceReserveSeats, (&message.FlightAmountReq{FlightID: 1, Amount: 3}).Marshal())
	require.NoError(t, err)
	acked(t, reply, message.ServiceReserveSeats)
	assert.Equal(t, uint32(7), summary(t, f, 1).Seats)

	require.Len(t, f.pushes.pkgs, 1)
	push := f.pushes.pkgs[0]
	assert.Equal(t, watcher, push.Addr)
	assert.Equal(t, message.TagSeatUpdate, push.Tag)
	var upd message.SeatUpdate
	require.NoError(t, upd.Unmarshal(push.Body))
	assert.Equal(t, message.SeatUpdate{FlightID: 1, Seats: 7}, upd)

	// too many seats leaves the flight alone and pushes nothing
	reply, err = f.call(t, booker, message.ServiceReserveSeats, (&message.FlightAmountReq{FlightID: 1, Amount: 15}).Marshal())
	require.NoError(t, err)
	assert.Contains(t, errText(t, reply), "Not enough seats available")
	assert.Equal(t, "Not enough seats available: requested 15, available 7", errText(t, reply))
	assert.Equal(t, uint32(7), summary(t, f, 1).Seats)
	assert.Len(t, f.pushes.pkgs, 1)
}

func TestReserveZeroSeatsStillNotifies(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, watcher, message.ServiceSubscribe, (&message.FlightAmountReq{FlightID: 2, Amount: 60}).Marshal())
	require.NoError(t, err)

	reply, err := f.call(t, booker, message.ServiceReserveSeats, (&message.FlightAmountReq{FlightID: 2, Amount: 0}).Marshal())
	require.NoError(t, err)
	acked(t, reply, message.ServiceReserveSeats)
	assert.Len(t, f.pushes.pkgs, 1)
}

func TestReserveSeatsPushFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, watcher, message.ServiceSubscribe, (&message.FlightAmountReq{FlightID: 1, Amount: 60}).Marshal())
	require.NoError(t, err)

	f.pushes.err = net.ErrSendFailed
	reply, err := f.call(t, booker, message.ServiceReserveSeats, (&message.FlightAmountReq{FlightID: 1, Amount: 1}).Marshal())
	assert.ErrorIs(t, err, net.ErrSendFailed)
	assert.Nil(t, reply)
	// the reservation itself was committed before the push
	assert.Equal(t, uint32(9), summary(t, f, 1).Seats)
}

func TestSubscribeUnknownFlight(t *testing.T) {
	f := newFixture(t)
	reply, err := f.call(t, watcher, message.ServiceSubscribe, (&message.FlightAmountReq{FlightID: 9, Amount: 60}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, "Flight 9 not found", errText(t, reply))
}

func TestEarliestFlights(t *testing.T) {
	f := newFixture(t)

	reply, err := f.call(t, booker, message.ServiceEarliestFlights, (&message.SourceReq{Source: "A"}).Marshal())
	require.NoError(t, err)
	var res message.FlightIDsRes
	require.NoError(t, res.Unmarshal(reply.Body))
	assert.Equal(t, []uint32{1, 2}, res.FlightIDs)

	reply, err = f.call(t, booker, message.ServiceEarliestFlights, (&message.SourceReq{Source: "Nowhere"}).Marshal())
	require.NoError(t, err)
	require.Equal(t, uint8(message.ServiceEarliestFlights), reply.Tag)
	require.NoError(t, res.Unmarshal(reply.Body))
	assert.Empty(t, res.FlightIDs)
}

func TestReserveBaggage(t *testing.T) {
	f := newFixture(t)

	reply, err := f.call(t, booker, message.ServiceReserveBaggage, (&message.FlightAmountReq{FlightID: 3, Amount: 40}).Marshal())
	require.NoError(t, err)
	acked(t, reply, message.ServiceReserveBaggage)
	assert.Equal(t, uint32(110), summary(t, f, 3).BaggageCapacityKg)

	reply, err = f.call(t, booker, message.ServiceReserveBaggage, (&message.FlightAmountReq{FlightID: 3, Amount: 111}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, "Not enough baggage capacity available: requested 111, available 110", errText(t, reply))

	reply, err = f.call(t, booker, message.ServiceReserveBaggage, (&message.FlightAmountReq{FlightID: 30, Amount: 1}).Marshal())
	require.NoError(t, err)
	assert.Equal(t, "Flight 30 not found", errText(t, reply))
}

func TestTruncatedBodyDropped(t *testing.T) {
	f := newFixture(t)
	reply, err := f.call(t, booker, message.ServiceReserveSeats, []byte{0, 0, 0, 1, 0})
	assert.ErrorIs(t, err, codec.ErrShortBuffer)
	assert.Nil(t, reply)
	assert.Equal(t, uint32(10), summary(t, f, 1).Seats)
}

func TestAppErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     string
		sentinel error
	}{
		{"not found", flight.ErrFlightNotFound, "Flight 4 not found", flight.ErrFlightNotFound},
		{"seats", &flight.ShortageError{Err: flight.ErrNotEnoughSeats, Requested: 3, Available: 2},
			"Not enough seats available: requested 3, available 2", flight.ErrNotEnoughSeats},
		{"baggage", &flight.ShortageError{Err: flight.ErrNotEnoughBaggage, Requested: 41, Available: 40},
			"Not enough baggage capacity available: requested 41, available 40", flight.ErrNotEnoughBaggage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := appError(4, tt.err)
			var appErr *net.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.want, appErr.Message)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}

	other := assert.AnError
	assert.Equal(t, other, appError(4, other))
}
