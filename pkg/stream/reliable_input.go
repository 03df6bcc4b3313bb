package stream

import "github.com/xrce-agent/agent/pkg/seqnum"

const windowSize = 16

// ReliableInputStream implements the receiver half of a reliable
// stream: windowed, gap-tolerant, in-order delivery.
type ReliableInputStream struct {
	nextExpected seqnum.SeqNum
	windowBitmap uint16
	pending      map[seqnum.SeqNum][]byte
}

// NewReliableInputStream creates a stream expecting start as its
// first seq num.
func NewReliableInputStream(start seqnum.SeqNum) *ReliableInputStream {
	return &ReliableInputStream{
		nextExpected: start,
		pending:      make(map[seqnum.SeqNum][]byte),
	}
}

// NextExpected returns the next seq num the stream will accept
// in-order, i.e. the first_unacked value for ACKNACK emission.
func (s *ReliableInputStream) NextExpected() seqnum.SeqNum { return s.nextExpected }

// Bitmap returns the current window bitmap, for ACKNACK emission.
func (s *ReliableInputStream) Bitmap() uint16 { return s.windowBitmap }

// Receive processes an arriving seq/payload pair per spec.md §4.3.
// accepted is false when the message was dropped (duplicate or
// outside the window); delivered holds every payload now ready for
// the processor, in order, including any buffered messages the
// arrival slid into place.
func (s *ReliableInputStream) Receive(seq seqnum.SeqNum, payload []byte) (delivered [][]byte, accepted bool) {
	if seqnum.Less(seq, s.nextExpected) {
		return nil, false
	}
	distance := seqnum.Diff(s.nextExpected, seq)
	if distance >= windowSize {
		return nil, false
	}
	if distance == 0 {
		delivered = append(delivered, payload)
		s.nextExpected = seqnum.Add(s.nextExpected, 1)
		s.windowBitmap >>= 1
		// The bit that named the new next_expected was bit 0 and has
		// just been shifted out; bit 0 now names next_expected+1.
		// Whether to keep sliding is therefore decided against the
		// buffer itself, not the bitmap.
		for {
			buffered, ok := s.pending[s.nextExpected]
			if !ok {
				break
			}
			delivered = append(delivered, buffered)
			delete(s.pending, s.nextExpected)
			s.nextExpected = seqnum.Add(s.nextExpected, 1)
			s.windowBitmap >>= 1
		}
		return delivered, true
	}
	offset := distance - 1
	s.pending[seq] = payload
	s.windowBitmap |= 1 << offset
	return nil, true
}

// OnHeartbeat applies a peer HEARTBEAT's first_unacked, raising
// next_expected up to it and discarding any gap the peer has already
// given up on. Per spec.md §9's design note, this preserves the
// source's conservative, gap-discarding behavior rather than
// attempting to reconcile the discarded buffered state.
func (s *ReliableInputStream) OnHeartbeat(firstUnacked seqnum.SeqNum) {
	if !seqnum.Less(s.nextExpected, firstUnacked) {
		return
	}
	shift := seqnum.Diff(s.nextExpected, firstUnacked)
	for seq := range s.pending {
		if seqnum.Less(seq, firstUnacked) {
			delete(s.pending, seq)
		}
	}
	if shift >= windowSize {
		s.windowBitmap = 0
	} else {
		s.windowBitmap >>= shift
	}
	s.nextExpected = firstUnacked
}
