package invocation

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/net"
)

var (
	clientA = netip.MustParseAddrPort("127.0.0.1:40001")
	clientB = netip.MustParseAddrPort("127.0.0.1:40002")
)

type sent struct {
	raw [][]byte
}

func (s *sent) sendBack(pkg *net.TransSendPkg) error {
	s.raw = append(s.raw, pkg.Encode())
	return nil
}

// counterHandler reserves one seat per call from a counter so that replies
// differ between executions.
type counterHandler struct {
	calls int
	seats uint32
}

func (h *counterHandler) handle(_ *net.DispatcherDelivery, _ []byte) ([]byte, error) {
	h.calls++
	if h.seats == 0 {
		return nil, net.NewAppError(nil, "Not enough seats available: requested 1, available 0")
	}
	h.seats--
	return (&message.AckBody{Success: message.Ack}).Marshal(), nil
}

func newDispatcher(t *testing.T, mode Mode, cache *ResponseCache, h *counterHandler) *net.Dispatcher {
	t.Helper()
	mgr := net.NewMessageManager()
	require.NoError(t, mgr.RegisterMsgHandle(message.ServiceReserveSeats, h.handle))
	d, err := net.NewDispatcher(net.DefaultDispatcherConfig(), mgr, nil)
	require.NoError(t, err)
	d.RegDispatcherFilter(Filter(mode, cache))
	return d
}

func send(t *testing.T, d *net.Dispatcher, s *sent, addr netip.AddrPort, cid uint32, svc message.ServiceID) error {
	t.Helper()
	body := (&message.FlightAmountReq{FlightID: 1, Amount: 1}).Marshal()
	pkg, err := net.NewTransRecvPkg(addr, net.EncodeRequest(cid, svc, body))
	require.NoError(t, err)
	return d.OnRecvTransportPkg(&net.TransportDelivery{TransSendBack: s.sendBack, Pkg: pkg})
}

func TestModeParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"at-most-once", AtMostOnce, false},
		{"AT_LEAST_ONCE", AtLeastOnce, false},
		{" at-least-once ", AtLeastOnce, false},
		{"", AtMostOnce, false},
		{"exactly-once", AtMostOnce, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("at-least-once")))
	assert.Equal(t, AtLeastOnce, m)
	text, _ := m.MarshalText()
	assert.Equal(t, "at-least-once", string(text))
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestResponseCacheFirstWins(t *testing.T) {
	c := NewResponseCache()
	k := Key{CorrelationID: 7, Addr: clientA}

	reply := []byte{0, 0, 0, 7, 3, 1}
	assert.True(t, c.Put(k, reply))
	reply[5] = 9 // the cache keeps its own copy
	assert.False(t, c.Put(k, []byte{0}))

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 7, 3, 1}, got)

	_, ok = c.Get(Key{CorrelationID: 7, Addr: clientB})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestAtMostOnceReplaysIdenticalBytes(t *testing.T) {
	h := &counterHandler{seats: 10}
	cache := NewResponseCache()
	d := newDispatcher(t, AtMostOnce, cache, h)
	s := &sent{}

	require.NoError(t, send(t, d, s, clientA, 1, message.ServiceReserveSeats))
	require.NoError(t, send(t, d, s, clientA, 1, message.ServiceReserveSeats))

	assert.Equal(t, 1, h.calls, "handler must run once per key")
	assert.Equal(t, uint32(9), h.seats)
	require.Len(t, s.raw, 2)
	assert.Equal(t, s.raw[0], s.raw[1])
	assert.Equal(t, 1, cache.Len())
}

func TestAtMostOnceKeyIncludesAddress(t *testing.T) {
	h := &counterHandler{seats: 10}
	d := newDispatcher(t, AtMostOnce, NewResponseCache(), h)
	s := &sent{}

	require.NoError(t, send(t, d, s, clientA, 1, message.ServiceReserveSeats))
	require.NoError(t, send(t, d, s, clientB, 1, message.ServiceReserveSeats))
	require.NoError(t, send(t, d, s, clientA, 2, message.ServiceReserveSeats))

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, uint32(7), h.seats)
}

func TestAtMostOnceCachesErrors(t *testing.T) {
	h := &counterHandler{seats: 0}
	cache := NewResponseCache()
	d := newDispatcher(t, AtMostOnce, cache, h)
	s := &sent{}

	require.NoError(t, send(t, d, s, clientA, 5, message.ServiceReserveSeats))
	h.seats = 10 // a replay must not see the new state
	require.NoError(t, send(t, d, s, clientA, 5, message.ServiceReserveSeats))

	assert.Equal(t, 1, h.calls)
	require.Len(t, s.raw, 2)
	assert.Equal(t, s.raw[0], s.raw[1])
	_, tag, _, err := net.DecodeResponse(s.raw[1])
	require.NoError(t, err)
	assert.Equal(t, message.TagError, tag)
}

func TestAtMostOnceCachesUnknownService(t *testing.T) {
	h := &counterHandler{seats: 1}
	cache := NewResponseCache()
	d := newDispatcher(t, AtMostOnce, cache, h)
	s := &sent{}

	require.NoError(t, send(t, d, s, clientA, 3, message.ServiceID(42)))
	require.NoError(t, send(t, d, s, clientA, 3, message.ServiceID(42)))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, s.raw[0], s.raw[1])
}

func TestAtMostOnceSkipsDroppedDatagrams(t *testing.T) {
	cache := NewResponseCache()
	mgr := net.NewMessageManager()
	calls := 0
	require.NoError(t, mgr.RegisterMsgHandle(message.ServiceSummary, func(*net.DispatcherDelivery, []byte) ([]byte, error) {
		calls++
		return nil, errors.New("truncated body")
	}))
	d, err := net.NewDispatcher(net.DefaultDispatcherConfig(), mgr, nil)
	require.NoError(t, err)
	d.RegDispatcherFilter(Filter(AtMostOnce, cache))
	s := &sent{}

	assert.Error(t, send(t, d, s, clientA, 1, message.ServiceSummary))
	assert.Error(t, send(t, d, s, clientA, 1, message.ServiceSummary))
	assert.Equal(t, 2, calls)
	assert.Zero(t, cache.Len())
	assert.Empty(t, s.raw)
}

func TestAtLeastOnceReexecutes(t *testing.T) {
	h := &counterHandler{seats: 10}
	cache := NewResponseCache()
	d := newDispatcher(t, AtLeastOnce, cache, h)
	s := &sent{}

	require.NoError(t, send(t, d, s, clientA, 1, message.ServiceReserveSeats))
	require.NoError(t, send(t, d, s, clientA, 1, message.ServiceReserveSeats))

	assert.Equal(t, 2, h.calls)
	assert.Equal(t, uint32(8), h.seats, "duplicates are applied twice")
	assert.Zero(t, cache.Len())
}

func TestCacheRecordsBeforeLossyTransport(t *testing.T) {
	h := &counterHandler{seats: 10}
	d := newDispatcher(t, AtMostOnce, NewResponseCache(), h)

	s := &sent{}
	lossy := net.NewFailureInjector().Wrap(s.sendBack)
	deliverLossy := func(cid uint32) {
		pkg, err := net.NewTransRecvPkg(clientA, net.EncodeRequest(cid, message.ServiceReserveSeats,
			(&message.FlightAmountReq{FlightID: 1, Amount: 1}).Marshal()))
		require.NoError(t, err)
		require.NoError(t, d.OnRecvTransportPkg(&net.TransportDelivery{TransSendBack: lossy, Pkg: pkg}))
	}

	deliverLossy(1) // reply lost
	deliverLossy(1) // retransmission answered from the cache
	assert.Equal(t, 1, h.calls)
	require.Len(t, s.raw, 1)
	cid, tag, _, err := net.DecodeResponse(s.raw[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cid)
	assert.Equal(t, uint8(message.ServiceReserveSeats), tag)
}
