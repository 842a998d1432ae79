package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/metrics"
)

// ErrSendFailed wraps socket write errors. The server treats it as fatal.
var ErrSendFailed = errors.New("socket send failed")

// UDPTransportCfg configures the UDP transport.
type UDPTransportCfg struct {
	Addr            string `mapstructure:"addr"`
	MaxPacketSize   int    `mapstructure:"maxPacketSize"`
	ReadBuffer      int    `mapstructure:"readBuffer"`
	WriteBuffer     int    `mapstructure:"writeBuffer"`
	SimulateFailure bool   `mapstructure:"simulateFailure"`
}

// DefaultUDPTransportCfg returns the configuration used when none is provided.
func DefaultUDPTransportCfg() *UDPTransportCfg {
	return &UDPTransportCfg{
		Addr:          "0.0.0.0:7878",
		MaxPacketSize: MaxDatagramSize,
	}
}

// Validate validates the UDPTransportCfg parameters
func (c *UDPTransportCfg) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("Addr cannot be empty")
	}
	if c.MaxPacketSize <= 0 || c.MaxPacketSize > 65507 {
		return fmt.Errorf("MaxPacketSize must be between 1 and 65507")
	}
	if c.ReadBuffer < 0 || c.WriteBuffer < 0 {
		return fmt.Errorf("socket buffer sizes cannot be negative")
	}
	return nil
}

// UDPTransport serves one UDP socket with a single receive goroutine.
// Datagrams are handed to the dispatcher one at a time, so handlers never
// run concurrently with each other.
type UDPTransport struct {
	*UDPTransportCfg
	conn      *net.UDPConn
	receiver  DispatcherReceiver
	cancel    context.CancelFunc
	done      chan struct{}
	fatal     chan error
	stopRecv  atomic.Bool
	injecting atomic.Bool
	injector  *FailureInjector
}

// NewUDPTransportWithConfig creates a UDPTransport with the provided configuration.
func NewUDPTransportWithConfig(cfg *UDPTransportCfg) *UDPTransport {
	t := &UDPTransport{
		UDPTransportCfg: cfg,
		fatal:           make(chan error, 1),
		injector:        NewFailureInjector(),
	}
	t.injecting.Store(cfg != nil && cfg.SimulateFailure)
	return t
}

// SetSimulateFailure turns reply dropping on or off.
func (t *UDPTransport) SetSimulateFailure(on bool) {
	t.injecting.Store(on)
}

// Start binds the socket and starts the receive goroutine.
func (t *UDPTransport) Start(opt TransportOption) error {
	metrics.IncrCounterWithGroup("net", "transport_start_total", 1)

	if t.UDPTransportCfg == nil {
		metrics.IncrCounterWithDimGroup("net", "transport_start_error_total", 1, metrics.Dimension{"error_type": "nil_config"})
		return errors.New("UDPTransportCfg is nil")
	}
	if opt.Handler == nil {
		metrics.IncrCounterWithDimGroup("net", "transport_start_error_total", 1, metrics.Dimension{"error_type": "nil_handler"})
		return errors.New("TransportOption Handler is nil")
	}
	if err := t.Validate(); err != nil {
		metrics.IncrCounterWithDimGroup("net", "transport_start_error_total", 1, metrics.Dimension{"error_type": "config"})
		return err
	}
	t.receiver = opt.Handler

	udpAddr, err := net.ResolveUDPAddr("udp", t.Addr)
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "transport_start_error_total", 1, metrics.Dimension{"error_type": "resolve"})
		return errors.New("resolve: " + err.Error())
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "transport_start_error_total", 1, metrics.Dimension{"error_type": "listen"})
		return errors.New("listen fail: " + err.Error())
	}

	if t.ReadBuffer > 0 {
		if err = conn.SetReadBuffer(t.ReadBuffer); err != nil {
			log.Error().Int("BufSize", t.ReadBuffer).Err(err).Msg("Set read buffer err")
		}
	}
	if t.WriteBuffer > 0 {
		if err = conn.SetWriteBuffer(t.WriteBuffer); err != nil {
			log.Error().Int("BufSize", t.WriteBuffer).Err(err).Msg("Set write buffer err")
		}
	}

	metrics.IncrCounterWithDimGroup("net", "transport_start_success_total", 1, metrics.Dimension{"transport_type": "udp"})

	t.conn = conn
	t.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.serve(ctx)

	log.Info().Str("addr", conn.LocalAddr().String()).Bool("simulateFailure", t.injecting.Load()).Msg("udp transport listening")
	return nil
}

// LocalAddr returns the bound address, useful when listening on port 0.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	if t.conn == nil {
		return netip.AddrPort{}
	}
	return t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Errors reports the fatal error that stopped the receive loop, if any.
func (t *UDPTransport) Errors() <-chan error {
	return t.fatal
}

// StopRecv stops reading datagrams. Sends keep working until Stop.
func (t *UDPTransport) StopRecv() error {
	if t.conn == nil {
		return errors.New("udp transport not started")
	}
	t.stopRecv.Store(true)
	return t.conn.SetReadDeadline(time.Now())
}

// Stop closes the socket and waits for the receive goroutine to exit.
func (t *UDPTransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	<-t.done
	return err
}

func (t *UDPTransport) serve(ctx context.Context) {
	defer close(t.done)

	buf := make([]byte, t.MaxPacketSize)
	for {
		n, addr, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || t.stopRecv.Load() {
				return
			}
			var e net.Error
			if errors.As(err, &e) && e.Timeout() {
				continue
			}
			log.Warn().Err(err).Msg("udp read err")
			continue
		}

		metrics.IncrCounterWithGroup("net", "datagram_recv_total", 1)
		addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
		data := append([]byte(nil), buf[:n]...)

		pkg, err := NewTransRecvPkg(addr, data)
		if err != nil {
			metrics.IncrCounterWithDimGroup("net", "dispatcher_malformed_total", 1, metrics.Dimension{"stage": "header"})
			log.Warn().Str("addr", addr.String()).Int("len", n).Err(err).Msg("malformed datagram dropped")
			continue
		}
		log.Debug().Object(pkg).Int("len", n).Msg("datagram received")

		delivery := &TransportDelivery{
			TransSendBack: t.sendBack,
			Pkg:           pkg,
		}
		if err = t.receiver.OnRecvTransportPkg(delivery); err != nil {
			if errors.Is(err, ErrSendFailed) {
				log.Error().Object(pkg).Err(err).Msg("udp transport stopped on send failure")
				select {
				case t.fatal <- err:
				default:
				}
				return
			}
			log.Warn().Object(pkg).Err(err).Msg("datagram dropped")
		}
	}
}

// sendBack replies to a request, dropping alternate replies while failure injection is on.
func (t *UDPTransport) sendBack(pkg *TransSendPkg) error {
	if t.injecting.Load() {
		return t.injector.Wrap(t.SendToClient)(pkg)
	}
	return t.SendToClient(pkg)
}

// SendToClient implements CSTransport.
func (t *UDPTransport) SendToClient(pkg *TransSendPkg) error {
	if pkg == nil {
		return errors.New("udp SendToClient pkg==nil")
	}
	if t.conn == nil {
		return errors.New("udp transport not started")
	}
	data := pkg.Encode()
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(data))
	}
	if _, err := t.conn.WriteToUDPAddrPort(data, pkg.Addr); err != nil {
		metrics.IncrCounterWithGroup("net", "datagram_send_error_total", 1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	metrics.IncrCounterWithGroup("net", "datagram_send_total", 1)
	return nil
}
