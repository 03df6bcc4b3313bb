// Package tcp implements the TCP/IPv4 and TCP/IPv6 transports. Each
// packet is length-prefixed on the wire with a two-byte little-endian
// length, since TCP carries a byte stream rather than delimited
// datagrams.
package tcp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xrce-agent/agent/pkg/transport"
)

func init() {
	transport.RegisterTransport("tcp4", New)
	transport.RegisterTransport("tcp6", New)
}

const maxPacket = 1<<16 - 1

// Bus is a TCP Transport. It accepts any number of inbound
// connections and multiplexes their traffic onto one RecvFrom stream,
// keyed by remote address for SendTo routing.
type Bus struct {
	addr     string
	listener net.Listener

	mu    sync.Mutex
	conns map[string]net.Conn

	inbox  chan transport.InputPacket
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(addr string) (transport.Transport, error) {
	return &Bus{
		addr:   addr,
		conns:  make(map[string]net.Conn),
		inbox:  make(chan transport.InputPacket, 256),
		stopCh: make(chan struct{}),
	}, nil
}

func (b *Bus) Connect() error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return err
	}
	b.listener = ln
	b.wg.Add(1)
	go b.acceptLoop()
	return nil
}

func (b *Bus) Disconnect() error {
	close(b.stopCh)
	if b.listener != nil {
		_ = b.listener.Close()
	}
	b.mu.Lock()
	for _, c := range b.conns {
		_ = c.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *Bus) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.stopCh:
				return
			default:
				continue
			}
		}
		key := conn.RemoteAddr().String()
		b.mu.Lock()
		b.conns[key] = conn
		b.mu.Unlock()
		b.wg.Add(1)
		go b.readLoop(key, conn)
	}
}

func (b *Bus) readLoop(key string, conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.conns, key)
		b.mu.Unlock()
		_ = conn.Close()
	}()
	header := make([]byte, 2)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		n := binary.LittleEndian.Uint16(header)
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		pkt := transport.InputPacket{
			Source:  transport.Endpoint{Kind: transport.EndpointTCP, Addr: key},
			Payload: payload,
		}
		select {
		case b.inbox <- pkt:
		case <-b.stopCh:
			return
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
	if len(pkt.Data) > maxPacket {
		return errors.New("tcp: packet exceeds length-prefix range")
	}
	b.mu.Lock()
	conn, ok := b.conns[pkt.Dest.Addr]
	b.mu.Unlock()
	if !ok {
		return errors.New("tcp: no connection to " + pkt.Dest.Addr)
	}
	header := make([]byte, 2)
	binary.LittleEndian.PutUint16(header, uint16(len(pkt.Data)))
	if _, err := conn.Write(header); err != nil {
		return err
	}
	_, err := conn.Write(pkt.Data)
	return err
}
