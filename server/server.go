// Package server wires the flight services to the UDP transport: it builds
// the flight store, watchlist, response cache and dispatcher from a Config
// and runs them until stopped or until a send on the socket fails.
package server

import (
	"context"
	"errors"
	"fmt"
	gonet "net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lcx/flightrpc/config"
	"github.com/lcx/flightrpc/discovery"
	"github.com/lcx/flightrpc/flight"
	"github.com/lcx/flightrpc/invocation"
	"github.com/lcx/flightrpc/log"
	"github.com/lcx/flightrpc/metrics"
	"github.com/lcx/flightrpc/net"
	"github.com/lcx/flightrpc/service"
	"github.com/lcx/flightrpc/watchlist"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	clock   clock.Clock
	flights []flight.Flight
}

// WithClock sets the watchlist clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithFlights seeds the store, overriding Config.FlightsFile.
func WithFlights(flights []flight.Flight) Option {
	return func(o *options) {
		o.flights = flights
	}
}

// Server is one flight reservation server.
type Server struct {
	mu         sync.Mutex
	cfg        *Config
	store      *flight.Store
	watch      *watchlist.Watchlist
	cache      *invocation.ResponseCache
	transport  *net.UDPTransport
	ntf        *net.NtfSender
	dispatcher *net.Dispatcher
	metricsSrv *http.Server
	metricsLn  gonet.Listener
	registrar  *discovery.Registrar
	started    bool

	// override is re-applied to every reloaded configuration so command
	// line settings keep winning over the file.
	override func(*Config)
}

// New builds a server from cfg. Nothing is bound until Start.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	o := &options{clock: clock.New()}
	for _, opt := range opts {
		opt(o)
	}

	flights := o.flights
	if flights == nil {
		flights = flight.DefaultFlights()
		if cfg.FlightsFile != "" {
			var err error
			if flights, err = flight.LoadFile(cfg.FlightsFile); err != nil {
				return nil, err
			}
		}
	}
	store, err := flight.NewStore(flights)
	if err != nil {
		return nil, err
	}

	transportCfg := cfg.Transport
	transport := net.NewUDPTransportWithConfig(&transportCfg)
	ntf := net.NewNtfSender(transport, cfg.Watchlist.PushRateLimit)
	watch := watchlist.New(ntf, watchlist.WithClock(o.clock))

	mgr := net.NewMessageManager()
	if err := service.New(store, watch).Register(mgr); err != nil {
		return nil, err
	}

	dispatcherCfg := cfg.Dispatcher
	dispatcher, err := net.NewDispatcher(&dispatcherCfg, mgr, []net.Transport{transport})
	if err != nil {
		return nil, err
	}
	cache := invocation.NewResponseCache()
	dispatcher.RegDispatcherFilter(invocation.Filter(cfg.Semantics, cache))

	return &Server{
		cfg:        cfg,
		store:      store,
		watch:      watch,
		cache:      cache,
		transport:  transport,
		ntf:        ntf,
		dispatcher: dispatcher,
	}, nil
}

// NewWithConfigManager loads the "flightsrv" configuration, applies override
// to it and registers the server for hot reloads. A missing file means defaults.
func NewWithConfigManager(cm config.ConfigManager, override func(*Config), opts ...Option) (*Server, error) {
	if cm == nil {
		return nil, errors.New("configManager cannot be nil")
	}
	cfg := DefaultConfig()
	if err := cm.LoadConfig(ConfigName, cfg); err != nil {
		if !config.IsNotFound(err) {
			return nil, fmt.Errorf("load %s config: %w", ConfigName, err)
		}
		cfg = DefaultConfig()
	}
	if override != nil {
		override(cfg)
	}

	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.override = override
	cm.AddChangeListener(s)
	return s, nil
}

// OnConfigChanged implements config.ConfigChangeListener.
func (s *Server) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != ConfigName {
		return nil
	}
	newCfg, ok := newConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid configuration type for Server")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.override != nil {
		merged := *newCfg
		s.override(&merged)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("invalid configuration after overrides: %w", err)
		}
		newCfg = &merged
	}

	if newCfg.Semantics != s.cfg.Semantics {
		log.Warn().Str("old", s.cfg.Semantics.String()).Str("new", newCfg.Semantics.String()).
			Msg("semantics change needs a restart")
	}

	if err := s.dispatcher.OnConfigChanged("dispatcher", &newCfg.Dispatcher, &s.cfg.Dispatcher); err != nil {
		return err
	}
	s.transport.SetSimulateFailure(newCfg.SimulateFailure)
	s.ntf.SetRateLimit(newCfg.Watchlist.PushRateLimit)

	updated := *s.cfg
	updated.SimulateFailure = newCfg.SimulateFailure
	updated.Watchlist = newCfg.Watchlist
	updated.Dispatcher = newCfg.Dispatcher
	s.cfg = &updated

	log.Info().Bool("simulateFailure", newCfg.SimulateFailure).Int("pushRateLimit", newCfg.Watchlist.PushRateLimit).
		Msg("server configuration reloaded")
	return nil
}

// Start binds the socket, the metrics endpoint and the consul registration.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("server already started")
	}
	if err := s.dispatcher.StartServe(); err != nil {
		return err
	}

	if s.cfg.MetricsAddr != "" {
		if err := s.startMetrics(); err != nil {
			_ = s.transport.Stop()
			return err
		}
	}

	if s.cfg.Consul.Enabled {
		registrar, err := discovery.NewRegistrar(s.cfg.Consul)
		if err == nil {
			err = registrar.Register(s.transport.LocalAddr())
		}
		if err != nil {
			s.stopMetrics()
			_ = s.transport.Stop()
			return err
		}
		s.registrar = registrar
	}

	s.started = true
	log.Info().Str("addr", s.transport.LocalAddr().String()).Str("semantics", s.cfg.Semantics.String()).
		Int("flights", s.store.Len()).Msg("flight server started")
	return nil
}

func (s *Server) startMetrics() error {
	ln, err := gonet.Listen("tcp", s.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.metricsLn = ln
	s.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	return nil
}

func (s *Server) stopMetrics() {
	if s.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.metricsSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	s.metricsSrv = nil
	s.metricsLn = nil
}

// Addr returns the bound UDP address.
func (s *Server) Addr() netip.AddrPort {
	return s.transport.LocalAddr()
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsLn == nil {
		return ""
	}
	return s.metricsLn.Addr().String()
}

// Errors delivers the error that stopped the server, a failed socket send.
func (s *Server) Errors() <-chan error {
	return s.transport.Errors()
}

// Store returns the flight store.
func (s *Server) Store() *flight.Store {
	return s.store
}

// Cache returns the response cache. It stays empty under at-least-once.
func (s *Server) Cache() *invocation.ResponseCache {
	return s.cache
}

// Watchlist returns the watchlist.
func (s *Server) Watchlist() *watchlist.Watchlist {
	return s.watch
}

// Stop deregisters, stops the metrics endpoint and closes the socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	var errs []error
	if s.registrar != nil {
		errs = append(errs, s.registrar.Deregister())
		s.registrar = nil
	}
	s.stopMetrics()
	errs = append(errs, s.transport.Stop())
	log.Info().Msg("flight server stopped")
	return errors.Join(errs...)
}
