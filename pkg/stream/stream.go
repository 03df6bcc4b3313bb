// Package stream implements the per-stream delivery state machines of
// spec.md §4.3: the best-effort stream (duplicate/reorder drop) and
// the reliable input/output streams (16-slot sliding window,
// retransmission, fragmentation reassembly). None of the types here
// hold their own mutex — like pkg/object's Tree, they are guarded by
// the owning session's mutex, so the processor and heartbeat loop
// serialize through one lock per spec.md §5.
package stream

import (
	"errors"

	"github.com/xrce-agent/agent/pkg/seqnum"
)

// BestEffortStream delivers a message iff its seq num is strictly
// greater than the last delivered one; duplicates and late arrivals
// are dropped silently. No acknowledgment.
type BestEffortStream struct {
	lastDelivered seqnum.SeqNum
	delivered     bool
}

func NewBestEffortStream() *BestEffortStream {
	return &BestEffortStream{}
}

// Receive reports whether seq should be delivered, updating
// last_delivered_seq on acceptance.
func (s *BestEffortStream) Receive(seq seqnum.SeqNum) bool {
	if !s.delivered {
		s.delivered = true
		s.lastDelivered = seq
		return true
	}
	if !seqnum.Less(s.lastDelivered, seq) {
		return false
	}
	s.lastDelivered = seq
	return true
}

// ErrOutOfWindow is returned by ReliableOutputStream.Push when the
// 16-slot send window is full.
var ErrOutOfWindow = errors.New("stream: reliable output window full")
