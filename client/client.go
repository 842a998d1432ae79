// Package client talks to the flight server over UDP.
//
// A Client has at most one request outstanding. Call retransmits the same
// bytes every time the read timeout passes and never gives up on its own;
// replies that echo an older correlation id are discarded. Monitor blocks
// for a whole subscription window, reporting the seat pushes it receives.
package client

import (
	"context"
	"errors"
	"fmt"
	gonet "net"
	"net/netip"
	"sync"
	"time"

	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/net"
)

// DefaultTimeout is the read timeout before a request is retransmitted.
const DefaultTimeout = 3 * time.Second

var (
	// ErrSendFailed is returned when the socket refuses a datagram. It is never retried.
	ErrSendFailed = errors.New("send failed")
	// ErrUnexpectedTag is returned when a reply carries neither the service id nor the error tag.
	ErrUnexpectedTag = errors.New("unexpected handler tag")
)

// RemoteError is a TagError reply.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the read timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryHook is called before every retransmission with the correlation
// id and the number of timeouts so far for that request.
func WithRetryHook(f func(correlationID uint32, attempt int)) Option {
	return func(c *Client) {
		c.onRetry = f
	}
}

// WithLogger replaces the client logger.
func WithLogger(l *log.ClientLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithFirstCorrelationID sets the id of the first request. Ids increase by one per request.
func WithFirstCorrelationID(id uint32) Option {
	return func(c *Client) {
		c.nextID = id
	}
}

// Client is a UDP client of one server.
type Client struct {
	mu      sync.Mutex
	conn    *gonet.UDPConn
	server  netip.AddrPort
	timeout time.Duration
	nextID  uint32
	retries int
	onRetry func(uint32, int)
	logger  *log.ClientLogger
	buf     []byte
}

// Dial opens an ephemeral UDP socket for talking to addr ("host:port").
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	port, err := portOf(addr)
	if err != nil {
		return nil, err
	}
	ips, err := gonet.DefaultResolver.LookupNetIP(ctx, "ip", hostOf(addr))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	// the server listens on IPv4 by default
	ip := ips[0]
	for _, candidate := range ips {
		if candidate.Unmap().Is4() {
			ip = candidate
			break
		}
	}
	return DialAddrPort(netip.AddrPortFrom(ip.Unmap(), port), opts...)
}

// DialAddrPort is Dial for a resolved address.
func DialAddrPort(server netip.AddrPort, opts ...Option) (*Client, error) {
	if !server.IsValid() {
		return nil, fmt.Errorf("invalid server address %s", server)
	}
	network := "udp4"
	if server.Addr().Is6() {
		network = "udp6"
	}
	conn, err := gonet.ListenUDP(network, nil)
	if err != nil {
		return nil, fmt.Errorf("open socket: %w", err)
	}

	c := &Client{
		conn:    conn,
		server:  server,
		timeout: DefaultTimeout,
		buf:     make([]byte, net.MaxDatagramSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewClientLogger(&log.LogCfg{LogLevel: log.WarnLevel, ConsoleAppender: true}, c.LocalAddr().String())
	}
	return c, nil
}

func hostOf(addr string) string {
	host, _, err := gonet.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		return "127.0.0.1"
	}
	return host
}

func portOf(addr string) (uint16, error) {
	_, p, err := gonet.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", addr, err)
	}
	ap, err := netip.ParseAddrPort("0.0.0.0:" + p)
	if err != nil {
		return 0, fmt.Errorf("parse port of %s: %w", addr, err)
	}
	return ap.Port(), nil
}

// LocalAddr returns the client's socket address.
func (c *Client) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*gonet.UDPAddr).AddrPort()
}

// Server returns the server address.
func (c *Client) Server() netip.AddrPort {
	return c.server
}

// Retries returns the number of retransmissions so far.
func (c *Client) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Close releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(data []byte) error {
	if _, err := c.conn.WriteToUDPAddrPort(data, c.server); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// read waits for one datagram until deadline. ctx cancellation interrupts it.
func (c *Client) read(ctx context.Context, deadline time.Time) ([]byte, error) {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, _, err := c.conn.ReadFromUDPAddrPort(c.buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return append([]byte(nil), c.buf[:n]...), nil
}

func isTimeout(err error) bool {
	var ne gonet.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Call sends one request and returns the matching reply's handler tag and body.
// A TagError reply is returned as a *RemoteError. Timeouts retransmit the
// identical datagram without limit; only ctx or a send failure ends the wait early.
func (c *Client) Call(ctx context.Context, service message.ServiceID, body []byte) (uint8, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	req := net.EncodeRequest(id, service, body)
	if len(req) > net.MaxDatagramSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", net.ErrDatagramTooLarge, len(req))
	}

	if err := c.send(req); err != nil {
		return 0, nil, err
	}
	c.logger.Debug().Uint32("cid", id).Str("service", service.String()).Msg("request sent")

	attempt := 0
	deadline := time.Now().Add(c.timeout)
	for {
		data, err := c.read(ctx, deadline)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			if !isTimeout(err) {
				return 0, nil, fmt.Errorf("receive: %w", err)
			}
			attempt++
			c.retries++
			if c.onRetry != nil {
				c.onRetry(id, attempt)
			}
			c.logger.Info().Uint32("cid", id).Int("attempt", attempt).Msg("timeout, retransmitting")
			if err := c.send(req); err != nil {
				return 0, nil, err
			}
			deadline = time.Now().Add(c.timeout)
			continue
		}

		cid, tag, resBody, err := net.DecodeResponse(data)
		if err != nil {
			c.logger.Warn().Int("len", len(data)).Err(err).Msg("malformed reply discarded")
			continue
		}
		if cid != id {
			c.logger.Debug().Uint32("cid", cid).Uint32("want", id).Msg("stale reply discarded")
			continue
		}

		if tag == message.TagError {
			var e message.ErrorBody
			if err := e.Unmarshal(resBody); err != nil {
				return tag, resBody, fmt.Errorf("decode error reply: %w", err)
			}
			return tag, resBody, &RemoteError{Message: e.Message}
		}
		return tag, resBody, nil
	}
}

// Monitor receives seat pushes until interval has passed, calling onUpdate
// for each. Receive timeouts inside the window are not errors. Datagrams
// that are not seat pushes are ignored.
func (c *Client) Monitor(ctx context.Context, interval time.Duration, onUpdate func(message.SeatUpdate)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := time.Now().Add(interval)
	for {
		now := time.Now()
		if !now.Before(end) {
			return nil
		}
		deadline := now.Add(c.timeout)
		if deadline.After(end) {
			deadline = end
		}

		data, err := c.read(ctx, deadline)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		tag, body, err := net.DecodePush(data)
		if err != nil || tag != message.TagSeatUpdate {
			c.logger.Debug().Int("len", len(data)).Msg("non push datagram ignored")
			continue
		}
		var upd message.SeatUpdate
		if err := upd.Unmarshal(body); err != nil {
			c.logger.Warn().Err(err).Msg("malformed push ignored")
			continue
		}
		if onUpdate != nil {
			onUpdate(upd)
		}
	}
}
