// Package session implements the per-client runtime context (spec.md
// §4.3): up to 256 input and 256 output streams, classified into the
// NONE/BEST_EFFORT/RELIABLE bands by stream id, plus the object tree
// bound to the client. A Session is guarded by one mutex shared by its
// streams and its object tree (spec.md §5), so the processor and the
// heartbeat loop never see it half-updated.
package session

import (
	"sync"
	"time"

	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/seqnum"
	"github.com/xrce-agent/agent/pkg/stream"
	"github.com/xrce-agent/agent/pkg/wire"
)

// InputStream is the receive-side state for one input stream id. At
// most one of BestEffort/Reliable is non-nil, chosen by the stream id's
// class; both are nil for stream id NONE.
type InputStream struct {
	BestEffort  *stream.BestEffortStream
	Reliable    *stream.ReliableInputStream
	Reassembler stream.Reassembler
}

// bestEffortOutputCounter allocates monotonically increasing seq nums
// for outbound best-effort messages; there is no ack, so no window
// tracking is needed beyond the counter itself.
type bestEffortOutputCounter struct {
	next seqnum.SeqNum
}

func (c *bestEffortOutputCounter) Allocate() seqnum.SeqNum {
	seq := c.next
	c.next = seqnum.Add(c.next, 1)
	return seq
}

// OutputStream is the send-side state for one output stream id.
type OutputStream struct {
	BestEffort  *bestEffortOutputCounter
	Reliable    *stream.ReliableOutputStream
	Reassembler stream.Reassembler
}

// Session is the four-stream complex and object tree belonging to one
// client.
type Session struct {
	mu sync.Mutex

	ClientKey uint32
	SessionID uint8
	MTU       int

	lastActivity time.Time

	inputs  map[uint8]*InputStream
	outputs map[uint8]*OutputStream

	Tree *object.Tree
}

// New creates a Session for clientKey/sessionID with the given MTU,
// backed by tree for object creation/deletion.
func New(clientKey uint32, sessionID uint8, mtu int, tree *object.Tree) *Session {
	return &Session{
		ClientKey:    clientKey,
		SessionID:    sessionID,
		MTU:          mtu,
		lastActivity: time.Now(),
		inputs:       make(map[uint8]*InputStream),
		outputs:      make(map[uint8]*OutputStream),
		Tree:         tree,
	}
}

// Lock/Unlock expose the session's mutex directly so callers can
// group several stream operations (e.g. processing every submessage
// in one packet) under a single critical section, matching spec.md
// §5's per-packet ordering guarantee.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records activity now, for liveness/idle-reap bookkeeping.
func (s *Session) Touch() { s.lastActivity = time.Now() }

// LastActivity returns the last Touch time.
func (s *Session) LastActivity() time.Time { return s.lastActivity }

// InputStream returns (creating if absent) the input stream state for
// streamID, classified by wire.IsNone/IsReliable. Callers must hold
// the session lock.
func (s *Session) InputStream(streamID uint8) *InputStream {
	if in, ok := s.inputs[streamID]; ok {
		return in
	}
	in := &InputStream{}
	switch {
	case wire.IsNone(streamID):
		// No ordering, no ack: nothing to track beyond pass-through.
	case wire.IsReliable(streamID):
		in.Reliable = stream.NewReliableInputStream(0)
	default:
		in.BestEffort = stream.NewBestEffortStream()
	}
	s.inputs[streamID] = in
	return in
}

// OutputStream returns (creating if absent) the output stream state
// for streamID. Callers must hold the session lock.
func (s *Session) OutputStream(streamID uint8) *OutputStream {
	if out, ok := s.outputs[streamID]; ok {
		return out
	}
	out := &OutputStream{}
	switch {
	case wire.IsNone(streamID):
	case wire.IsReliable(streamID):
		out.Reliable = stream.NewReliableOutputStream(0)
	default:
		out.BestEffort = &bestEffortOutputCounter{}
	}
	s.outputs[streamID] = out
	return out
}

// ReliableOutputStreams returns every reliable output stream id
// currently tracked, for the heartbeat loop to walk.
func (s *Session) ReliableOutputStreams() map[uint8]*stream.ReliableOutputStream {
	out := make(map[uint8]*stream.ReliableOutputStream)
	for id, st := range s.outputs {
		if st.Reliable != nil {
			out[id] = st.Reliable
		}
	}
	return out
}

// Reset drops every stream back to its initial state, per the RESET
// submessage (spec.md §4.5, id 14).
func (s *Session) Reset() {
	s.inputs = make(map[uint8]*InputStream)
	s.outputs = make(map[uint8]*OutputStream)
}
