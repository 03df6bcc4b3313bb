// Package can implements the real CAN transport: 29-bit extended
// identifiers, 8-byte frames, reassembled through pkg/framing the same
// way the serial transport reassembles UART bytes. Wraps
// github.com/brutella/can the way the teacher pack wraps it for
// SocketCAN.
package can

import (
	"errors"
	"sync"
	"time"

	sockcan "github.com/brutella/can"

	"github.com/xrce-agent/agent/pkg/framing"
	"github.com/xrce-agent/agent/pkg/transport"
)

func init() {
	transport.RegisterTransport("can", New)
}

const canMTU = 8

// Bus is a CAN Transport bound to a SocketCAN interface name (e.g.
// "can0").
type Bus struct {
	ifname string
	bus    *sockcan.Bus
	codec  *framing.Codec

	mu    sync.Mutex
	inbox chan transport.InputPacket
}

func New(ifname string) (transport.Transport, error) {
	return &Bus{
		ifname: ifname,
		codec:  framing.NewCodec(framing.DefaultPayloadMTU),
		inbox:  make(chan transport.InputPacket, 64),
	}, nil
}

func (b *Bus) Connect() error {
	bus, err := sockcan.NewBusForInterfaceWithName(b.ifname)
	if err != nil {
		return err
	}
	b.bus = bus
	b.bus.Subscribe(b)
	go b.bus.ConnectAndPublish()
	return nil
}

func (b *Bus) Disconnect() error {
	if b.bus == nil {
		return nil
	}
	return b.bus.Disconnect()
}

// Handle implements brutella/can's frame-received callback interface.
func (b *Bus) Handle(frame sockcan.Frame) {
	b.mu.Lock()
	frames := b.codec.Feed(frame.Data[:frame.Length])
	b.mu.Unlock()
	for _, fr := range frames {
		pkt := transport.InputPacket{
			Source:  transport.Endpoint{Kind: transport.EndpointCAN, CanID: frame.ID},
			Payload: fr.Payload,
		}
		select {
		case b.inbox <- pkt:
		default:
		}
	}
}

func (b *Bus) RecvFrom(timeout time.Duration) (transport.InputPacket, error) {
	select {
	case pkt := <-b.inbox:
		return pkt, nil
	case <-time.After(timeout):
		return transport.InputPacket{}, transport.ErrTimeout
	}
}

// SendTo frames pkt.Data and splits it across as many 8-byte CAN
// frames as needed, all carrying pkt.Dest.CanID.
func (b *Bus) SendTo(pkt transport.OutputPacket) error {
	if b.bus == nil {
		return errors.New("can: not connected")
	}
	encoded := framing.Encode(pkt.Data, 0, 0)
	for len(encoded) > 0 {
		n := len(encoded)
		if n > canMTU {
			n = canMTU
		}
		var data [8]byte
		copy(data[:], encoded[:n])
		frame := sockcan.Frame{ID: pkt.Dest.CanID, Length: uint8(n), Data: data}
		if err := b.bus.Publish(frame); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
