// This file implements the dispatcher, the hub between the transport and the
// service handlers. Every received request passes through the filter chain
// (rate limiting, statistics, any registered filters such as the invocation
// semantics filter, then the service filter) before reaching its handler.
//
// The transport delivers packages from a single receive goroutine, so a
// handler always runs to completion before the next datagram is read.
package net

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/lcx/flightrpc/config"
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/message"
	"github.com/lcx/flightrpc/metrics"
)

// DispatcherDelivery is the container a package travels in through the filter chain.
//
// Fields:
// - TransportDelivery: the received package and how to reply to it
// - ProtoInfo: the resolved service, nil until the service id is decoded
// - Replayed: set by a filter that answered from a cache without running the handler
//
// Usage example:
//
//	func handle(dd *DispatcherDelivery, body []byte) ([]byte, error) {
//	    addr := dd.GetReqAddr()
//	    // Process request...
//	    return res.Marshal(), nil
//	}
type DispatcherDelivery struct {
	*TransportDelivery
	ProtoInfo *MsgProtoInfo
	Replayed  bool
}

// GetCurReq returns the request being handled.
func (dd *DispatcherDelivery) GetCurReq() *TransRecvPkg {
	return dd.TransportDelivery.Pkg
}

// GetReqAddr returns the address of the requesting client.
func (dd *DispatcherDelivery) GetReqAddr() netip.AddrPort {
	return dd.TransportDelivery.Pkg.Addr
}

// GetCorrelationID returns the correlation id of the request.
func (dd *DispatcherDelivery) GetCorrelationID() uint32 {
	return dd.TransportDelivery.Pkg.CorrelationID
}

// sendBackErr replies with a TagError response carrying msg.
func (dd *DispatcherDelivery) sendBackErr(msg string) error {
	if dd.TransSendBack == nil {
		return nil
	}
	return dd.TransSendBack(NewErrPkg(dd.Pkg, msg))
}

// MsgFilterPluginCfg lists service ids the dispatcher refuses.
// A refused request is answered with a TagError reply without reaching its handler.
type MsgFilterPluginCfg struct {
	MsgFilter []uint8 `mapstructure:"msgFilter"`
}

// GetName returns the configuration name for MsgFilterPluginCfg
func (c *MsgFilterPluginCfg) GetName() string {
	return "msg_filter"
}

// Validate validates the MsgFilterPluginCfg parameters
func (c *MsgFilterPluginCfg) Validate() error {
	return nil
}

// DispatcherConfig contains configuration parameters for the dispatcher.
//
// Fields:
// - RecvRateLimit: Maximum number of requests handled per second (supports hot reloading)
// - TokenBurst: Token bucket size for bursts
// - MsgFilter: Services to refuse
type DispatcherConfig struct {
	RecvRateLimit int                `mapstructure:"recvRateLimit"`
	TokenBurst    int                `mapstructure:"tokenBurst"`
	MsgFilter     MsgFilterPluginCfg `mapstructure:"msgFilter"`
}

// DefaultDispatcherConfig returns the configuration used when none is provided.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		RecvRateLimit: 10000,
		TokenBurst:    1000,
	}
}

// GetName returns the configuration name for DispatcherConfig
func (c *DispatcherConfig) GetName() string {
	return "dispatcher"
}

// Validate validates the DispatcherConfig parameters
func (c *DispatcherConfig) Validate() error {
	if c.RecvRateLimit <= 0 {
		return fmt.Errorf("RecvRateLimit must be positive")
	}
	if c.TokenBurst <= 0 {
		return fmt.Errorf("TokenBurst must be positive")
	}
	if c.RecvRateLimit > 1000000 {
		return fmt.Errorf("RecvRateLimit cannot exceed 1,000,000 messages per second")
	}
	if c.TokenBurst > c.RecvRateLimit*10 {
		return fmt.Errorf("TokenBurst cannot exceed 10 times RecvRateLimit")
	}
	return nil
}

// Dispatcher routes received requests to service handlers.
//
// Fields:
// - transports: Registered transports, started by StartServe
// - recvLimiter: Token bucket limiting the request rate
// - filters: Chain applied to every request before the service filter
// - msgFilterMap: Refused service ids
// - msgMgr: Service registry
type Dispatcher struct {
	transports   []Transport
	recvLimiter  *DispatcherRecvLimiter
	filters      DispatcherFilterChain
	msgFilterMap map[message.ServiceID]struct{}
	msgMgr       *MessageManager
	config       *DispatcherConfig
	lock         sync.RWMutex
}

// NewDispatcher creates a dispatcher with an explicit configuration.
//
// Usage example:
// msgMgr := NewMessageManager()
// dispatcher, err := NewDispatcher(DefaultDispatcherConfig(), msgMgr, []Transport{udp})
func NewDispatcher(cfg *DispatcherConfig, msgMgr *MessageManager, trans []Transport) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("DispatcherConfig cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher configuration: %w", err)
	}
	if msgMgr == nil {
		return nil, errors.New("MessageManager cannot be nil")
	}
	return newDispatcher(cfg, msgMgr, trans), nil
}

func newDispatcher(cfg *DispatcherConfig, msgMgr *MessageManager, trans []Transport) *Dispatcher {
	d := &Dispatcher{
		transports:   trans,
		recvLimiter:  NewTokenRecvLimiter(cfg.RecvRateLimit, cfg.TokenBurst),
		msgFilterMap: make(map[message.ServiceID]struct{}),
		msgMgr:       msgMgr,
		config:       cfg,
	}

	d.reloadMsgFilterCfg(&cfg.MsgFilter)

	d.filters = append(d.filters, d.recvLimiter.recvLimiterFilter)
	d.filters = append(d.filters, d.statFilter)
	return d
}

// OnConfigChanged applies a reloaded dispatcher section. The server calls it
// for every accepted reload; other names are ignored.
func (d *Dispatcher) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "dispatcher" {
		return nil
	}

	newCfg, ok := newConfig.(*DispatcherConfig)
	if !ok {
		return fmt.Errorf("invalid configuration type for Dispatcher")
	}

	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatcher configuration: %w", err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.recvLimiter.Reload(newCfg.RecvRateLimit, newCfg.TokenBurst)
	d.reloadMsgFilterCfg(&newCfg.MsgFilter)
	d.config = newCfg

	log.Info().Str("configName", configName).Int("recvRateLimit", newCfg.RecvRateLimit).Msg("Dispatcher configuration updated successfully")
	return nil
}

// StartServe starts every registered transport with the dispatcher as handler.
// If one fails, the transports already started are stopped again.
func (d *Dispatcher) StartServe() error {
	to := TransportOption{
		Handler: d,
	}
	succTransports := make([]Transport, 0, len(d.transports))
	for _, t := range d.transports {
		if err := t.Start(to); err != nil {
			// 启动异常时，需要先将已经start的transport停掉
			for _, succt := range succTransports {
				if stopErr := succt.Stop(); stopErr != nil {
					log.Error().Err(stopErr).Msg("stop transport after failed start")
				}
			}
			return fmt.Errorf("start transport: %w", err)
		}
		succTransports = append(succTransports, t)
	}

	return nil
}

// RegDispatcherFilter appends f to the filter chain. Filters run in registration order.
func (d *Dispatcher) RegDispatcherFilter(f DispatcherFilter) {
	d.filters = append(d.filters, f)
}

// OnRecvTransportPkg implements DispatcherReceiver.
func (d *Dispatcher) OnRecvTransportPkg(td *TransportDelivery) error {
	dd := &DispatcherDelivery{
		TransportDelivery: td,
	}

	return d.filters.Handle(dd, func(dd *DispatcherDelivery) error {
		return d.msgFilter(dd, d.handleTransportMsgImpl)
	})
}

// handleTransportMsgImpl runs the handler of the requested service and sends its reply.
func (d *Dispatcher) handleTransportMsgImpl(dd *DispatcherDelivery) error {
	svc, body, err := dd.Pkg.DecodeService()
	if err != nil {
		metrics.IncrCounterWithDimGroup("net", "dispatcher_malformed_total", 1, metrics.Dimension{"stage": "service_id"})
		return err
	}

	pi := dd.ProtoInfo
	if pi == nil {
		var ok bool
		if pi, ok = d.msgMgr.GetProtoInfo(svc); !ok {
			metrics.IncrCounterWithGroup("net", "dispatcher_unknown_service_total", 1)
			log.Warn().Object(dd.Pkg).Int("service", int(svc)).Msg("unknown service id")
			return dd.sendBackErr(fmt.Sprintf("Unknown service id %d", svc))
		}
		dd.ProtoInfo = pi
	}

	res, err := pi.MsgHandle(dd, body)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) {
			metrics.IncrCounterWithDimGroup("net", "dispatcher_app_error_total", 1, metrics.Dimension{"service": pi.Name})
			log.Info().Object(dd.Pkg).Str("reason", appErr.Message).Msg("request rejected")
			return dd.sendBackErr(appErr.Message)
		}
		metrics.IncrCounterWithDimGroup("net", "dispatcher_malformed_total", 1, metrics.Dimension{"stage": "body"})
		return fmt.Errorf("handle %s: %w", pi.Name, err)
	}

	if dd.TransSendBack == nil {
		return nil
	}
	return dd.TransSendBack(NewResPkg(dd.Pkg, pi.ResTag(), res))
}

// statFilter records request counts and handling latency.
func (d *Dispatcher) statFilter(dd *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	start := time.Now()
	err := f(dd)

	name := "unknown"
	switch {
	case dd.Replayed:
		name = "replay"
	case dd.ProtoInfo != nil:
		name = dd.ProtoInfo.Name
	}
	result := "ok"
	if err != nil {
		result = "dropped"
	}
	metrics.IncrCounterWithDimGroup("net", "dispatcher_recv_total", 1, metrics.Dimension{"service": name, "result": result})
	metrics.ObserveWithGroup("net", "dispatcher_handle_seconds", metrics.Value(time.Since(start).Seconds()))
	return err
}
