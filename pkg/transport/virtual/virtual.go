// Package virtual implements an in-process loopback transport used as
// the test double for the real byte-movers, standing in for
// pkg/can/virtual's TCP-broker loopback bus without needing an actual
// socket round-trip.
package virtual

import (
	"errors"
	"sync"
	"time"

	"github.com/xrce-agent/agent/pkg/transport"
)

func init() {
	transport.RegisterTransport("virtual", newFromRegistry)
}

// broker fans a Bus's sends out to every other Bus that joined the
// same named channel.
type broker struct {
	mu      sync.Mutex
	members []*Bus
}

var (
	brokersMu sync.Mutex
	brokers   = make(map[string]*broker)
)

func join(name string, b *Bus) *broker {
	brokersMu.Lock()
	defer brokersMu.Unlock()
	br, ok := brokers[name]
	if !ok {
		br = &broker{}
		brokers[name] = br
	}
	br.mu.Lock()
	br.members = append(br.members, b)
	br.mu.Unlock()
	return br
}

func leave(br *broker, b *Bus) {
	br.mu.Lock()
	defer br.mu.Unlock()
	for i, m := range br.members {
		if m == b {
			br.members = append(br.members[:i], br.members[i+1:]...)
			break
		}
	}
}

// Bus is an in-memory Transport. Two or more Buses that join the same
// name see each other's sends; Connect()/Disconnect() manage
// membership.
type Bus struct {
	self   transport.Endpoint
	name   string
	inbox  chan transport.InputPacket
	br     *broker
	mu     sync.Mutex
	closed bool
}

func newFromRegistry(addr string) (transport.Transport, error) {
	return New(addr, addr), nil
}

// New creates a Bus bound to the broker named "name" and self-
// identifying to peers with the given local address string.
func New(name string, localAddr string) *Bus {
	return &Bus{
		self:  transport.Endpoint{Kind: transport.EndpointUDP, Addr: localAddr},
		name:  name,
		inbox: make(chan transport.InputPacket, 64),
	}
}

// NewPair returns two Buses already joined to a private, unnamed
// broker — convenient for tests that need exactly one peer on each
// side without touching the global registry.
func NewPair(addrA, addrB string) (*Bus, *Bus) {
	br := &broker{}
	a := &Bus{self: transport.Endpoint{Kind: transport.EndpointUDP, Addr: addrA}, inbox: make(chan transport.InputPacket, 64), br: br}
	b := &Bus{self: transport.Endpoint{Kind: transport.EndpointUDP, Addr: addrB}, inbox: make(chan transport.InputPacket, 64), br: br}
	br.members = []*Bus{a, b}
	return a, b
}

func (b *Bus) Connect() error {
	if b.br == nil {
		b.br = join(b.name, b)
	}
	return nil
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.br != nil {
		leave(b.br, b)
	}
	return nil
}

// SendTo delivers pkt.Data to every other member of the broker,
// tagging the delivered packet's Source with this bus's own endpoint.
func (b *Bus) SendTo(pkt transport.OutputPacket) error {
	b.mu.Lock()
	br := b.br
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("virtual: bus disconnected")
	}
	if br == nil {
		return errors.New("virtual: not connected")
	}
	br.mu.Lock()
	peers := append([]*Bus(nil), br.members...)
	br.mu.Unlock()
	for _, peer := range peers {
		if peer == b {
			continue
		}
		in := transport.InputPacket{Source: b.self, Payload: append([]byte(nil), pkt.Data...)}
		select {
		case peer.inbox <- in:
		default:
		}
	}
	return nil
}

func (b *Bus) RecvFrom(timeout time.Duration) (transport.InputPacket, error) {
	select {
	case pkt := <-b.inbox:
		return pkt, nil
	case <-time.After(timeout):
		return transport.InputPacket{}, transport.ErrTimeout
	}
}
