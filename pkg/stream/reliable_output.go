package stream

import (
	"time"

	"github.com/xrce-agent/agent/pkg/seqnum"
)

type outSlot struct {
	seq    seqnum.SeqNum
	data   []byte
	sentAt time.Time
}

// ReliableOutputStream implements the sender half of a reliable
// stream: a 16-slot ring of unacknowledged submessages, retransmitted
// on ACKNACK or timeout.
type ReliableOutputStream struct {
	nextSend     seqnum.SeqNum
	firstUnacked seqnum.SeqNum
	ring         [windowSize]*outSlot
}

func NewReliableOutputStream(start seqnum.SeqNum) *ReliableOutputStream {
	return &ReliableOutputStream{nextSend: start, firstUnacked: start}
}

func (s *ReliableOutputStream) NextSend() seqnum.SeqNum     { return s.nextSend }
func (s *ReliableOutputStream) FirstUnacked() seqnum.SeqNum { return s.firstUnacked }

func slotIndex(seq seqnum.SeqNum) int { return int(seq) % windowSize }

// Push allocates the next seq num for data and stores it in the
// ring. Returns ErrOutOfWindow if the window is full (spec.md §4.3);
// the caller must retry later (spec.md §5 backpressure).
func (s *ReliableOutputStream) Push(data []byte) (seqnum.SeqNum, error) {
	if seqnum.Diff(s.firstUnacked, s.nextSend) >= windowSize {
		return 0, ErrOutOfWindow
	}
	seq := s.nextSend
	s.ring[slotIndex(seq)] = &outSlot{seq: seq, data: data, sentAt: time.Now()}
	s.nextSend = seqnum.Add(s.nextSend, 1)
	return seq, nil
}

// OnAckNack applies an ACKNACK: slides first_unacked up to F, freeing
// acknowledged slots, and returns the payloads that must be
// retransmitted per the nack bitmap.
func (s *ReliableOutputStream) OnAckNack(firstUnacked seqnum.SeqNum, bitmap uint16) [][]byte {
	for seqnum.Less(s.firstUnacked, firstUnacked) {
		s.ring[slotIndex(s.firstUnacked)] = nil
		s.firstUnacked = seqnum.Add(s.firstUnacked, 1)
	}
	var retransmit [][]byte
	for k := 0; k < windowSize; k++ {
		if bitmap&(1<<uint(k)) == 0 {
			continue
		}
		seq := seqnum.Add(firstUnacked, uint16(k+1))
		slot := s.ring[slotIndex(seq)]
		if slot == nil || slot.seq != seq {
			continue
		}
		slot.sentAt = time.Now()
		retransmit = append(retransmit, slot.data)
	}
	return retransmit
}

// HeartbeatPending reports whether a HEARTBEAT should be emitted for
// this stream: there is unacknowledged data in flight.
func (s *ReliableOutputStream) HeartbeatPending() bool {
	return s.nextSend != s.firstUnacked
}

// TimedOut returns every in-flight submessage whose send timestamp is
// older than timeout, refreshing their timestamps as it does — used
// by the heartbeat loop to drive retransmission independent of
// ACKNACK traffic.
func (s *ReliableOutputStream) TimedOut(timeout time.Duration) [][]byte {
	var out [][]byte
	now := time.Now()
	for seq := s.firstUnacked; seqnum.Less(seq, s.nextSend); seq = seqnum.Add(seq, 1) {
		slot := s.ring[slotIndex(seq)]
		if slot == nil || slot.seq != seq {
			continue
		}
		if now.Sub(slot.sentAt) >= timeout {
			slot.sentAt = now
			out = append(out, slot.data)
		}
	}
	return out
}
