// Package readpipeline runs the per-READ_DATA workers of spec.md
// §4.6: one goroutine per active READ, polling the DataReader's
// incoming queue, filtering, gating through a pkg/tokenbucket, and
// packaging accepted samples as DATA submessages for the output
// scheduler. Grounded on pkg/node/controller.go's context-cancel
// worker shape, generalized from one worker per node to one worker
// per active READ.
package readpipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/processor"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/session"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/submsg"
	"github.com/xrce-agent/agent/pkg/tokenbucket"
	"github.com/xrce-agent/agent/pkg/transport"
	"github.com/xrce-agent/agent/pkg/wire"
)

// readKey identifies one active READ: a DataReader can have several
// concurrent reads, but at most one per request_id (spec.md §4.6).
type readKey struct {
	readerObjID uint16
	requestID   uint16
}

type activeRead struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager arms, cancels and runs READ_DATA workers for every client.
// It implements processor.ReadArmer.
type Manager struct {
	out         *scheduler.Queue
	pollTimeout time.Duration

	mu      sync.Mutex
	clients map[uint32]map[readKey]*activeRead
}

// New creates a Manager that pushes DATA/STATUS packets onto out,
// polling each DataReader with pollTimeout between liveness checks.
func New(out *scheduler.Queue, pollTimeout time.Duration) *Manager {
	if pollTimeout <= 0 {
		pollTimeout = 100 * time.Millisecond
	}
	return &Manager{
		out:         out,
		pollTimeout: pollTimeout,
		clients:     make(map[uint32]map[readKey]*activeRead),
	}
}

// Arm starts a worker for req, replacing any prior READ with the same
// (reader, request_id) pair per spec.md §4.6 ("cancels + new").
func (m *Manager) Arm(clientKey uint32, sess *session.Session, dest transport.Endpoint, req submsg.ReadDataPayload) {
	k := readKey{readerObjID: req.ObjectID, requestID: req.RequestID}

	m.mu.Lock()
	reads, ok := m.clients[clientKey]
	if !ok {
		reads = make(map[readKey]*activeRead)
		m.clients[clientKey] = reads
	}
	if prior, exists := reads[k]; exists {
		prior.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ar := &activeRead{cancel: cancel, done: make(chan struct{})}
	reads[k] = ar
	m.mu.Unlock()

	go func() {
		defer close(ar.done)
		m.run(ctx, clientKey, sess, dest, req)
		m.mu.Lock()
		if reads, ok := m.clients[clientKey]; ok {
			if reads[k] == ar {
				delete(reads, k)
			}
		}
		m.mu.Unlock()
	}()
}

// Cancel stops the READ for (readerObjID, requestID) on clientKey, if
// any is active.
func (m *Manager) Cancel(clientKey uint32, readerObjID uint16, requestID uint16) {
	m.mu.Lock()
	reads, ok := m.clients[clientKey]
	var ar *activeRead
	if ok {
		ar, ok = reads[readKey{readerObjID: readerObjID, requestID: requestID}]
	}
	m.mu.Unlock()
	if ok && ar != nil {
		ar.cancel()
	}
}

// CancelAll stops every active READ belonging to clientKey, used on
// DELETE_CLIENT and RESET (spec.md §5 cancellation).
func (m *Manager) CancelAll(clientKey uint32) {
	m.mu.Lock()
	reads := m.clients[clientKey]
	delete(m.clients, clientKey)
	m.mu.Unlock()
	for _, ar := range reads {
		ar.cancel()
	}
}

// run is the worker body for one active READ. It holds the session
// lock only around each Tree.Read poll, which waits up to pollTimeout,
// so ordinary packet processing for the session is stalled for at most
// one poll timeout at a time.
func (m *Manager) run(ctx context.Context, clientKey uint32, sess *session.Session, dest transport.Endpoint, req submsg.ReadDataPayload) {
	objID := object.ObjectId(req.ObjectID)
	bucket := tokenbucket.New(float64(req.RateLimit), 0)
	remaining := req.MaxSamples // 0 means unlimited, per micro-XRCE convention

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess.Lock()
		data, ok, err := sess.Tree.Read(objID, m.pollTimeout)
		sess.Unlock()

		if err != nil {
			log.Warnf("[READPIPE] read failed for object x%x request %d : %v", req.ObjectID, req.RequestID, err)
			m.replyStatus(clientKey, sess, dest, req, status.ErrUnknownReference)
			return
		}
		if !ok {
			continue
		}
		if req.Filter != "" && !strings.Contains(string(data), req.Filter) {
			continue
		}

		n := float64(len(data))
		if !bucket.Take(n) {
			wait := bucket.WaitDuration(n)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			if !bucket.Take(n) {
				continue
			}
		}

		m.sendData(clientKey, sess, dest, req, data)

		if remaining > 0 {
			remaining--
			if remaining == 0 {
				m.replyStatus(clientKey, sess, dest, req, status.Ok)
				return
			}
		}
	}
}

func (m *Manager) sendData(clientKey uint32, sess *session.Session, dest transport.Endpoint, req submsg.ReadDataPayload, data []byte) {
	payload := submsg.DataPayload{ObjectID: req.ObjectID, RequestID: req.RequestID, Data: data}
	w := wire.NewWriter(true)
	payload.Encode(w)

	streamID := req.TargetStreamID
	sess.Lock()
	out := sess.OutputStream(streamID)
	var seq uint16
	var flags uint8
	switch {
	case out.Reliable != nil:
		seq = uint16(out.Reliable.NextSend())
		flags = wire.FlagReliable
	case out.BestEffort != nil:
		seq = uint16(out.BestEffort.Allocate())
	}
	buf := wire.BuildPacket(sess.SessionID, clientKey, streamID, seq, wire.SubmsgData, flags, w.Bytes())
	if out.Reliable != nil {
		out.Reliable.Push(buf)
	}
	sess.Unlock()

	m.out.Push(processor.PriorityData, transport.OutputPacket{Dest: dest, Data: buf})
}

func (m *Manager) replyStatus(clientKey uint32, sess *session.Session, dest transport.Endpoint, req submsg.ReadDataPayload, code status.Code) {
	payload := submsg.StatusPayload{RequestID: req.RequestID, ObjectID: req.ObjectID, Code: code}
	w := wire.NewWriter(true)
	payload.Encode(w)
	buf := wire.BuildPacket(sess.SessionID, clientKey, wire.StreamIDNone, 0, wire.SubmsgStatus, 0, w.Bytes())
	m.out.Push(processor.PriorityControl, transport.OutputPacket{Dest: dest, Data: buf})
}
