// Package serial implements the serial/UART and pseudoterminal
// transports. The device file is assumed already configured (baud
// rate, line discipline) by the OS/driver; this package only moves
// bytes and applies pkg/framing on top, since a raw serial link has
// no built-in packet boundaries.
package serial

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/xrce-agent/agent/pkg/framing"
	"github.com/xrce-agent/agent/pkg/transport"
)

func init() {
	transport.RegisterTransport("serial", New)
	transport.RegisterTransport("pseudoterminal", New)
}

// Bus is a framed serial Transport. addr is a device path
// ("/dev/ttyUSB0", a pty slave path, ...).
type Bus struct {
	path  string
	file  *os.File
	codec *framing.Codec

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
	inbox  chan transport.InputPacket
}

func New(addr string) (transport.Transport, error) {
	return &Bus{
		path:   addr,
		codec:  framing.NewCodec(framing.DefaultPayloadMTU),
		stopCh: make(chan struct{}),
		inbox:  make(chan transport.InputPacket, 64),
	}, nil
}

func (b *Bus) Connect() error {
	f, err := os.OpenFile(b.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	b.file = f
	b.wg.Add(1)
	go b.readLoop()
	return nil
}

func (b *Bus) Disconnect() error {
	close(b.stopCh)
	if b.file != nil {
		_ = b.file.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *Bus) readLoop() {
	defer b.wg.Done()
	buf := make([]byte, 512)
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}
		n, err := b.file.Read(buf)
		if err != nil {
			return
		}
		b.mu.Lock()
		frames := b.codec.Feed(buf[:n])
		b.mu.Unlock()
		for _, fr := range frames {
			pkt := transport.InputPacket{
				Source:  transport.Endpoint{Kind: transport.EndpointSerial, Addr: b.path},
				Payload: fr.Payload,
			}
			select {
			case b.inbox <- pkt:
			case <-b.stopCh:
				return
			}
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

func (b *Bus) SendTo(pkt transport.OutputPacket) error {
	if b.file == nil {
		return errors.New("serial: not connected")
	}
	encoded := framing.Encode(pkt.Data, 0, 0)
	_, err := b.file.Write(encoded)
	return err
}
