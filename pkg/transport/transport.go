// Package transport defines the transport-agnostic boundary the
// server loops talk through: a small Transport interface plus a
// registry so concrete byte-movers (UDP, TCP, serial, CAN, the
// in-process virtual transport) can be selected by name at startup.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// EndpointKind discriminates the address shape carried by an Endpoint.
type EndpointKind uint8

const (
	EndpointUDP EndpointKind = iota
	EndpointTCP
	EndpointSerial
	EndpointCAN
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointUDP:
		return "udp"
	case EndpointTCP:
		return "tcp"
	case EndpointSerial:
		return "serial"
	case EndpointCAN:
		return "can"
	default:
		return "unknown"
	}
}

// Endpoint identifies the peer a packet came from or is going to.
// It is a plain comparable struct so it can key the endpoint table
// directly; only the fields relevant to Kind are meaningful.
type Endpoint struct {
	Kind  EndpointKind
	Addr  string // host:port for udp/tcp, device path for serial
	CanID uint32 // 29-bit extended CAN id, for EndpointCAN only
}

func (e Endpoint) String() string {
	if e.Kind == EndpointCAN {
		return fmt.Sprintf("can:%#x", e.CanID)
	}
	return fmt.Sprintf("%s:%s", e.Kind, e.Addr)
}

// InputPacket is produced by a transport's RecvFrom and consumed by
// the processor. Payload bytes are owned by the packet.
type InputPacket struct {
	Source  Endpoint
	Payload []byte
}

// OutputPacket is produced by the processor and consumed by a
// transport's SendTo. Immutable once enqueued.
type OutputPacket struct {
	Dest Endpoint
	Data []byte
}

// ErrTimeout is returned by RecvFrom when no packet arrives within
// the requested timeout. It is not a failure: the receiver loop
// treats it as "nothing to do this iteration."
var ErrTimeout = errors.New("transport: receive timeout")

// Transport is the capability every byte-mover implements: connect,
// disconnect, blocking receive with a timeout, and a send. Modeled on
// the CAN bus interface of the teacher pack (Connect/Disconnect/Send/
// Subscribe), adapted from a callback-subscription shape to a
// blocking-receive shape because the server's receiver loop polls
// rather than registers a listener.
type Transport interface {
	Connect() error
	Disconnect() error
	RecvFrom(timeout time.Duration) (InputPacket, error)
	SendTo(pkt OutputPacket) error
}

// NewTransportFunc constructs a Transport bound to addr (meaning is
// transport-specific: host:port, device path, CAN channel name).
type NewTransportFunc func(addr string) (Transport, error)

var registry = make(map[string]NewTransportFunc)

// RegisterTransport makes a transport kind available to NewTransport.
// Concrete transport packages call this from an init().
func RegisterTransport(kind string, factory NewTransportFunc) {
	registry[kind] = factory
}

// NewTransport builds the named transport kind bound to addr.
func NewTransport(kind string, addr string) (Transport, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("transport: unsupported kind %q", kind)
	}
	return factory(addr)
}
