package server

import (
	"fmt"

	"github.com/lcx/flightrpc/discovery"
	"github.com/lcx/flightrpc/invocation"
	"github.com/lcx/flightrpc/net"
)

// ConfigName is the file name, without extension, of the server configuration.
const ConfigName = "flightsrv"

// WatchlistCfg configures seat update pushes.
type WatchlistCfg struct {
	// PushRateLimit paces pushes per second. 0 sends them as fast as possible.
	PushRateLimit int `mapstructure:"pushRateLimit"`
}

// Config is the "flightsrv" configuration.
//
// Hot-reloadable: simulateFailure, watchlist.pushRateLimit and the dispatcher
// section. Everything else needs a restart.
type Config struct {
	Transport       net.UDPTransportCfg  `mapstructure:"transport"`
	Dispatcher      net.DispatcherConfig `mapstructure:"dispatcher"`
	Semantics       invocation.Mode      `mapstructure:"semantics"`
	SimulateFailure bool                 `mapstructure:"simulateFailure"`
	Watchlist       WatchlistCfg         `mapstructure:"watchlist"`
	FlightsFile     string               `mapstructure:"flightsFile"`
	MetricsAddr     string               `mapstructure:"metricsAddr"`
	Consul          discovery.Config     `mapstructure:"consul"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Transport:  *net.DefaultUDPTransportCfg(),
		Dispatcher: *net.DefaultDispatcherConfig(),
		Semantics:  invocation.AtMostOnce,
	}
}

// GetName returns the configuration name for Config
func (c *Config) GetName() string {
	return ConfigName
}

// Validate fills unset sections with their defaults, then validates them.
// Defaults are applied here so a reloaded file may omit sections.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Transport.Addr == "" {
		c.Transport.Addr = def.Transport.Addr
	}
	if c.Transport.MaxPacketSize == 0 {
		c.Transport.MaxPacketSize = def.Transport.MaxPacketSize
	}
	if c.Dispatcher.RecvRateLimit == 0 {
		c.Dispatcher.RecvRateLimit = def.Dispatcher.RecvRateLimit
	}
	if c.Dispatcher.TokenBurst == 0 {
		c.Dispatcher.TokenBurst = def.Dispatcher.TokenBurst
	}
	c.Transport.SimulateFailure = c.SimulateFailure

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	if c.Semantics != invocation.AtMostOnce && c.Semantics != invocation.AtLeastOnce {
		return fmt.Errorf("unknown semantics %s", c.Semantics)
	}
	if c.Watchlist.PushRateLimit < 0 {
		return fmt.Errorf("watchlist.pushRateLimit cannot be negative")
	}
	if err := c.Consul.Validate(); err != nil {
		return err
	}
	return nil
}
