// Package udp implements the UDP/IPv4 and UDP/IPv6 transports: one
// XRCE packet per datagram, no framing needed.
package udp

import (
	"net"
	"time"

	"github.com/xrce-agent/agent/pkg/transport"
)

func init() {
	transport.RegisterTransport("udp4", New)
	transport.RegisterTransport("udp6", New)
}

const maxDatagram = 65507

// Bus is a UDP Transport. addr is a local "host:port" to listen on;
// the remote peer of each packet is read from each datagram itself.
type Bus struct {
	addr string
	conn *net.UDPConn
}

func New(addr string) (transport.Transport, error) {
	return &Bus{addr: addr}, nil
}

func (b *Bus) Connect() error {
	laddr, err := net.ResolveUDPAddr("udp", b.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

func (b *Bus) Disconnect() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func (b *Bus) RecvFrom(timeout time.Duration) (transport.InputPacket, error) {
	buf := make([]byte, maxDatagram)
	_ = b.conn.SetReadDeadline(time.Now().Add(timeout))
	n, raddr, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return transport.InputPacket{}, transport.ErrTimeout
		}
		return transport.InputPacket{}, err
	}
	return transport.InputPacket{
		Source:  transport.Endpoint{Kind: transport.EndpointUDP, Addr: raddr.String()},
		Payload: append([]byte(nil), buf[:n]...),
	}, nil
}

func (b *Bus) SendTo(pkt transport.OutputPacket) error {
	raddr, err := net.ResolveUDPAddr("udp", pkt.Dest.Addr)
	if err != nil {
		return err
	}
	_, err = b.conn.WriteToUDP(pkt.Data, raddr)
	return err
}
