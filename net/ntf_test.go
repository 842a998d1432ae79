package net

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/flightrpc/message"
)

// mockCSTransportForNtf 模拟 CSTransport 接口
type mockCSTransportForNtf struct {
	sent      []*TransSendPkg
	sendError error
}

func (m *mockCSTransportForNtf) Start(TransportOption) error { return nil }
func (m *mockCSTransportForNtf) StopRecv() error             { return nil }
func (m *mockCSTransportForNtf) Stop() error                 { return nil }

func (m *mockCSTransportForNtf) SendToClient(pkg *TransSendPkg) error {
	if m.sendError != nil {
		return m.sendError
	}
	m.sent = append(m.sent, pkg)
	return nil
}

func TestNtfClient(t *testing.T) {
	cs := &mockCSTransportForNtf{}
	sender := NewNtfSender(cs, 0)

	body := (&message.SeatUpdate{FlightID: 1, Seats: 7}).Marshal()
	require.NoError(t, sender.NtfClient(NewNtfPkg(testAddr, message.TagSeatUpdate, body)))
	require.Len(t, cs.sent, 1)
	assert.Equal(t, EncodePush(message.TagSeatUpdate, body), cs.sent[0].Encode())
	assert.Equal(t, testAddr, cs.sent[0].Addr)
}

func TestNtfClientRejects(t *testing.T) {
	cs := &mockCSTransportForNtf{}
	sender := NewNtfSender(cs, 0)

	req, err := NewTransRecvPkg(testAddr, EncodeRequest(1, message.ServiceSubscribe, nil))
	require.NoError(t, err)

	tests := []struct {
		name string
		pkg  *TransSendPkg
	}{
		{"nil", nil},
		{"response", NewResPkg(req, 4, nil)},
		{"invalid addr", NewNtfPkg(netip.AddrPort{}, message.TagSeatUpdate, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, sender.NtfClient(tt.pkg))
		})
	}
	assert.Empty(t, cs.sent)

	assert.Error(t, NewNtfSender(nil, 0).NtfClient(NewNtfPkg(testAddr, message.TagSeatUpdate, nil)))
}

func TestNtfClientSendError(t *testing.T) {
	sendErr := errors.New("write: broken")
	sender := NewNtfSender(&mockCSTransportForNtf{sendError: sendErr}, 0)
	err := sender.NtfClient(NewNtfPkg(testAddr, message.TagSeatUpdate, nil))
	assert.ErrorIs(t, err, sendErr)
}

func TestNtfSenderSetRateLimit(t *testing.T) {
	cs := &mockCSTransportForNtf{}
	sender := NewNtfSender(cs, 1000)
	sender.SetRateLimit(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, sender.NtfClient(NewNtfPkg(testAddr, message.TagSeatUpdate, nil)))
	}
	assert.Len(t, cs.sent, 5)
}
