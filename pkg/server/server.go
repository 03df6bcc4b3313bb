// Package server assembles the four concurrent activities of spec.md
// §4.8 around one transport.Transport: a receiver, a processor, a
// sender, and a heartbeat loop. Grounded on pkg/node/controller.go's
// NodeProcessor, which runs a CANopen node's background/main loops the
// same way — Start launches every loop in its own goroutine, Stop
// signals them to exit, Wait joins them.
package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/pkg/endpoint"
	"github.com/xrce-agent/agent/pkg/processor"
	"github.com/xrce-agent/agent/pkg/root"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/session"
	"github.com/xrce-agent/agent/pkg/submsg"
	"github.com/xrce-agent/agent/pkg/transport"
	"github.com/xrce-agent/agent/pkg/wire"
)

// Config carries the timing/capacity knobs of spec.md §4.8/§5.
type Config struct {
	RecvTimeout       time.Duration // default 100ms
	HeartbeatPeriod   time.Duration // default 100ms
	RetransmitTimeout time.Duration // default 2x HeartbeatPeriod
}

func (c Config) withDefaults() Config {
	if c.RecvTimeout <= 0 {
		c.RecvTimeout = 100 * time.Millisecond
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = 100 * time.Millisecond
	}
	if c.RetransmitTimeout <= 0 {
		c.RetransmitTimeout = 2 * c.HeartbeatPeriod
	}
	return c
}

// Server runs one agent instance's receiver/processor/sender/
// heartbeat loops over a single transport.
type Server struct {
	transport transport.Transport
	proc      *processor.Processor
	root      *root.Root
	endpoints *endpoint.Table
	in        *scheduler.Queue
	out       *scheduler.Queue
	cfg       Config

	running atomic.Bool
	wg      sync.WaitGroup
}

// New assembles a Server. in/out are the scheduler queues shared with
// the processor and read pipeline; the caller owns their lifetime.
func New(tr transport.Transport, proc *processor.Processor, r *root.Root, endpoints *endpoint.Table, in, out *scheduler.Queue, cfg Config) *Server {
	return &Server{
		transport: tr,
		proc:      proc,
		root:      r,
		endpoints: endpoints,
		in:        in,
		out:       out,
		cfg:       cfg.withDefaults(),
	}
}

// Start connects the transport and launches the four loops, each in
// its own goroutine. Call Stop to request shutdown and Wait to join.
func (s *Server) Start() error {
	if err := s.transport.Connect(); err != nil {
		return err
	}
	s.running.Store(true)

	s.wg.Add(4)
	go func() { defer s.wg.Done(); s.receiveLoop() }()
	go func() { defer s.wg.Done(); s.processLoop() }()
	go func() { defer s.wg.Done(); s.sendLoop() }()
	go func() { defer s.wg.Done(); s.heartbeatLoop() }()
	return nil
}

// Stop flips the running flag false and closes the queues so any
// blocked Pop wakes immediately; it does not wait for the loops to
// exit (call Wait for that).
func (s *Server) Stop() error {
	s.running.Store(false)
	s.in.Close()
	s.out.Close()
	return s.transport.Disconnect()
}

// Wait blocks until every loop has exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) receiveLoop() {
	log.Infof("[SERVER] receiver started")
	for s.running.Load() {
		pkt, err := s.transport.RecvFrom(s.cfg.RecvTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			log.Warnf("[SERVER] transport receive error : %v", err)
			continue
		}
		s.in.Push(0, pkt)
	}
	log.Infof("[SERVER] receiver stopped")
}

func (s *Server) processLoop() {
	log.Infof("[SERVER] processor loop started")
	for {
		v, ok := s.in.Pop()
		if !ok {
			break
		}
		pkt := v.(transport.InputPacket)
		if err := s.proc.Process(pkt); err != nil {
			log.Warnf("[SERVER] packet processing error from %v : %v", pkt.Source, err)
		}
	}
	log.Infof("[SERVER] processor loop stopped")
}

func (s *Server) sendLoop() {
	log.Infof("[SERVER] sender started")
	for {
		v, ok := s.out.Pop()
		if !ok {
			break
		}
		job := v.(transport.OutputPacket)
		if err := s.transport.SendTo(transport.OutputPacket{Dest: job.Dest, Data: job.Data}); err != nil {
			log.Warnf("[SERVER] transport send error to %v : %v", job.Dest, err)
		}
	}
	log.Infof("[SERVER] sender stopped")
}

// heartbeatLoop walks every session's reliable output streams every
// HeartbeatPeriod, emitting a HEARTBEAT for streams with unacked data
// and retransmitting anything that has timed out (spec.md §4.8,
// activity 4).
func (s *Server) heartbeatLoop() {
	log.Infof("[SERVER] heartbeat loop started")
	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for s.running.Load() {
		<-ticker.C
		if !s.running.Load() {
			break
		}
		s.root.Range(func(clientKey uint32, sess *session.Session) bool {
			s.heartbeatSession(clientKey, sess)
			return true
		})
	}
	log.Infof("[SERVER] heartbeat loop stopped")
}

func (s *Server) heartbeatSession(clientKey uint32, sess *session.Session) {
	dest, ok := s.endpoints.Endpoint(clientKey)
	if !ok {
		return
	}

	var heartbeats [][]byte
	var retransmits [][]byte

	sess.Lock()
	for streamID, rs := range sess.ReliableOutputStreams() {
		if rs.HeartbeatPending() {
			hb := submsg.HeartbeatPayload{
				StreamID:     streamID,
				FirstUnacked: uint16(rs.FirstUnacked()),
				LastUnacked:  uint16(rs.NextSend()) - 1,
			}
			w := wire.NewWriter(true)
			hb.Encode(w)
			heartbeats = append(heartbeats, wire.BuildPacket(sess.SessionID, clientKey, wire.StreamIDNone, 0, wire.SubmsgHeartbeat, 0, w.Bytes()))
		}
		retransmits = append(retransmits, rs.TimedOut(s.cfg.RetransmitTimeout)...)
	}
	sess.Unlock()

	for _, buf := range heartbeats {
		s.out.Push(processor.PriorityControl, transport.OutputPacket{Dest: dest, Data: buf})
	}
	for _, buf := range retransmits {
		s.out.Push(processor.PriorityData, transport.OutputPacket{Dest: dest, Data: buf})
	}
}
