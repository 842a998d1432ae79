// Package discovery registers the flight server in consul and lets clients
// find it by service name.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"

	"github.com/lcx/flightrpc/log"
)

// ErrNoInstance is returned by Resolve when consul knows no passing instance.
var ErrNoInstance = errors.New("no healthy service instance")

// Config is the "consul" section of the server configuration.
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	ServiceName string `mapstructure:"serviceName"`
}

// DefaultServiceName is registered when Config.ServiceName is empty.
const DefaultServiceName = "flightsrv"

// Validate validates the Config parameters
func (c *Config) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("consul addr is required when consul is enabled")
	}
	return nil
}

func (c *Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

func newClient(addr string) (*api.Client, error) {
	cfg := api.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return client, nil
}

// Registrar owns one service registration.
type Registrar struct {
	client *api.Client
	id     string
	name   string
}

// NewRegistrar creates a registrar with a fresh instance id.
func NewRegistrar(cfg Config) (*Registrar, error) {
	client, err := newClient(cfg.Addr)
	if err != nil {
		return nil, err
	}
	name := cfg.serviceName()
	return &Registrar{
		client: client,
		id:     name + "-" + uuid.NewString(),
		name:   name,
	}, nil
}

// ID returns the consul service id of this instance.
func (r *Registrar) ID() string {
	return r.id
}

// Register publishes addr. An unspecified host lets consul use the agent's node address.
func (r *Registrar) Register(addr netip.AddrPort) error {
	host := ""
	if !addr.Addr().IsUnspecified() {
		host = addr.Addr().String()
	}
	reg := &api.AgentServiceRegistration{
		ID:      r.id,
		Name:    r.name,
		Address: host,
		Port:    int(addr.Port()),
		Tags:    []string{"udp"},
		Meta:    map[string]string{"protocol": "flightrpc"},
	}
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul register %s: %w", r.id, err)
	}
	log.Info().Str("id", r.id).Str("addr", addr.String()).Msg("registered in consul")
	return nil
}

// Deregister removes the registration.
func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.id, err)
	}
	log.Info().Str("id", r.id).Msg("deregistered from consul")
	return nil
}

// Resolve returns the address of the first passing instance of serviceName.
func Resolve(ctx context.Context, consulAddr, serviceName string) (netip.AddrPort, error) {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	client, err := newClient(consulAddr)
	if err != nil {
		return netip.AddrPort{}, err
	}

	q := (&api.QueryOptions{}).WithContext(ctx)
	entries, _, err := client.Health().Service(serviceName, "", true, q)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("consul lookup %s: %w", serviceName, err)
	}

	for _, e := range entries {
		if e.Service == nil {
			continue
		}
		host := e.Service.Address
		if host == "" && e.Node != nil {
			host = e.Node.Address
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			log.Warn().Str("service", serviceName).Str("host", host).Msg("skipping instance without an ip address")
			continue
		}
		ap := netip.AddrPortFrom(ip, uint16(e.Service.Port))
		return ap, nil
	}
	return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrNoInstance, serviceName)
}
