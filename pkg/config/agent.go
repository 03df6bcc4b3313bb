// Package config loads the agent's runtime configuration from an INI
// file, the same format and library pkg/od uses for EDS files.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"github.com/xrce-agent/agent/pkg/scheduler"
)

// Transport selects which pkg/transport implementation the CLI wires up.
type Transport string

const (
	TransportUDP4           Transport = "udp4"
	TransportUDP6           Transport = "udp6"
	TransportTCP4           Transport = "tcp4"
	TransportTCP6           Transport = "tcp6"
	TransportSerial         Transport = "serial"
	TransportPseudoterminal Transport = "pseudoterminal"
	TransportCAN            Transport = "can"
)

// AgentConfig carries every knob an agent instance needs at startup.
// Zero value plus Defaults() is a usable single-client agent on UDP4.
type AgentConfig struct {
	Transport Transport
	Address   string // host:port for udp/tcp, device path for serial/can
	DomainID  uint16

	DefaultMTU uint16

	RecvTimeout       time.Duration
	HeartbeatPeriod   time.Duration
	RetransmitTimeout time.Duration

	QueueDepth  int
	QueuePolicy scheduler.Policy

	ReadPollTimeout time.Duration

	DiscoveryPort int
	DiscoveryXML  string

	AgentName string
	Verbose   bool
}

// Defaults returns the configuration a bare `xrce-agentd` invocation
// runs with.
func Defaults() AgentConfig {
	return AgentConfig{
		Transport:         TransportUDP4,
		Address:           ":7400",
		DomainID:          0,
		DefaultMTU:        512,
		RecvTimeout:       100 * time.Millisecond,
		HeartbeatPeriod:   100 * time.Millisecond,
		RetransmitTimeout: 200 * time.Millisecond,
		QueueDepth:        256,
		QueuePolicy:       scheduler.DropLowestPriority,
		ReadPollTimeout:   100 * time.Millisecond,
		DiscoveryPort:     7400,
		AgentName:         "xrce-agent",
	}
}

// Load reads an INI file and overlays it onto Defaults(). Sections:
//
//	[transport]  kind, address, domain_id, mtu
//	[timing]     recv_timeout_ms, heartbeat_period_ms, retransmit_timeout_ms, read_poll_ms
//	[scheduler]  queue_depth, policy (drop|block)
//	[discovery]  port, xml
//	[agent]      name, verbose
//
// file can be a path, []byte, or io.Reader, per ini.Load.
func Load(file any) (AgentConfig, error) {
	cfg := Defaults()

	raw, err := ini.Load(file)
	if err != nil {
		return cfg, fmt.Errorf("config: load: %w", err)
	}

	if s := raw.Section("transport"); s != nil {
		if v := s.Key("kind").String(); v != "" {
			cfg.Transport = Transport(v)
		}
		if v := s.Key("address").String(); v != "" {
			cfg.Address = v
		}
		if v, err := s.Key("domain_id").Uint(); err == nil {
			cfg.DomainID = uint16(v)
		}
		if v, err := s.Key("mtu").Uint(); err == nil {
			cfg.DefaultMTU = uint16(v)
		}
	}

	if s := raw.Section("timing"); s != nil {
		if v, err := s.Key("recv_timeout_ms").Int64(); err == nil {
			cfg.RecvTimeout = time.Duration(v) * time.Millisecond
		}
		if v, err := s.Key("heartbeat_period_ms").Int64(); err == nil {
			cfg.HeartbeatPeriod = time.Duration(v) * time.Millisecond
		}
		if v, err := s.Key("retransmit_timeout_ms").Int64(); err == nil {
			cfg.RetransmitTimeout = time.Duration(v) * time.Millisecond
		}
		if v, err := s.Key("read_poll_ms").Int64(); err == nil {
			cfg.ReadPollTimeout = time.Duration(v) * time.Millisecond
		}
	}

	if s := raw.Section("scheduler"); s != nil {
		if v, err := s.Key("queue_depth").Int(); err == nil {
			cfg.QueueDepth = v
		}
		if v := s.Key("policy").String(); v != "" {
			switch v {
			case "block":
				cfg.QueuePolicy = scheduler.Block
			case "drop":
				cfg.QueuePolicy = scheduler.DropLowestPriority
			default:
				return cfg, fmt.Errorf("config: unknown scheduler policy %q", v)
			}
		}
	}

	if s := raw.Section("discovery"); s != nil {
		if v, err := s.Key("port").Int(); err == nil {
			cfg.DiscoveryPort = v
		}
		if v := s.Key("xml").String(); v != "" {
			cfg.DiscoveryXML = v
		}
	}

	if s := raw.Section("agent"); s != nil {
		if v := s.Key("name").String(); v != "" {
			cfg.AgentName = v
		}
		if v, err := s.Key("verbose").Bool(); err == nil {
			cfg.Verbose = v
		}
	}

	return cfg, nil
}
