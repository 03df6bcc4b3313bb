// Package framing implements the byte-stuffed, CRC16-protected frame
// format used on stream transports that do not already delimit
// packets (serial/UART, CAN). See spec.md §4.1.
package framing

import (
	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/internal/crc"
	"github.com/xrce-agent/agent/internal/fifo"
)

const (
	startFlag byte = 0x7E
	escFlag   byte = 0x7D
	escXor    byte = 0x20
)

// DefaultPayloadMTU is the default serial/CAN payload size, per spec.md §6.
const DefaultPayloadMTU = 256

// Frame is a fully decoded, de-stuffed, CRC-validated frame.
type Frame struct {
	Src     uint8
	Dst     uint8
	Payload []byte
}

// Codec holds the stateful input side of the framing protocol. The
// output side (Encode) is stateless and safe to call concurrently;
// Feed is not — one Codec per input byte stream.
type Codec struct {
	input *fifo.Fifo
}

// NewCodec creates a Codec sized to hold at least two MTU-sized
// frames worth of input, per spec.md §4.1 buffer sizing guidance.
func NewCodec(mtu int) *Codec {
	if mtu <= 0 {
		mtu = DefaultPayloadMTU
	}
	return &Codec{
		input: fifo.New(2 * (mtu + 5)),
	}
}

// Encode serializes payload into a complete stuffed frame, including
// both delimiting flags. Deterministic: the same inputs always
// produce the same bytes.
func Encode(payload []byte, src, dst uint8) []byte {
	raw := make([]byte, 0, 2+len(payload)+2)
	raw = append(raw, src, dst)
	raw = append(raw, payload...)

	crcVal := crc.Value(raw)
	raw = append(raw, byte(crcVal), byte(crcVal>>8))

	out := make([]byte, 0, len(raw)+3)
	out = append(out, startFlag)
	for _, b := range raw {
		if b == startFlag || b == escFlag {
			out = append(out, escFlag, b^escXor)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, startFlag)
	return out
}

// Feed appends newly received bytes to the codec's internal buffer
// and returns every complete, CRC-valid frame that can be extracted
// from it. On a framing or CRC error the codec logs and discards
// bytes up to the next start flag, per spec.md §4.1 — it never
// returns an error to the caller.
func (c *Codec) Feed(data []byte) []Frame {
	c.input.Write(data, nil)

	var frames []Frame
	for {
		if !c.skipToStartFlag() {
			return frames
		}
		unstuffed, rawLen, ok := c.scanFrame()
		if !ok {
			// Incomplete frame buffered so far; wait for more bytes.
			return frames
		}
		if len(unstuffed) < 4 {
			log.Warnf("[FRAMING] discarding undersized frame")
			c.input.SkipOne()
			continue
		}
		src, dst := unstuffed[0], unstuffed[1]
		payload := unstuffed[2 : len(unstuffed)-2]
		gotCRC := uint16(unstuffed[len(unstuffed)-2]) | uint16(unstuffed[len(unstuffed)-1])<<8
		wantCRC := crc.Value(unstuffed[:len(unstuffed)-2])
		if gotCRC != wantCRC {
			log.Warnf("[FRAMING] discarding frame with bad crc : got x%x want x%x", gotCRC, wantCRC)
			c.input.SkipOne()
			continue
		}

		c.input.AltBegin(rawLen)
		c.input.AltFinish(nil)

		frames = append(frames, Frame{
			Src:     src,
			Dst:     dst,
			Payload: append([]byte(nil), payload...),
		})
	}
}

// skipToStartFlag discards bytes until the next unread byte is a
// start flag, or the buffer runs dry. Returns false if no start flag
// is currently buffered.
func (c *Codec) skipToStartFlag() bool {
	for {
		b, ok := c.input.AltPeek(0)
		if !ok {
			return false
		}
		if b == startFlag {
			return true
		}
		c.input.SkipOne()
	}
}

// scanFrame looks for the frame terminator starting just after the
// opening flag (assumed to sit at offset 0), unstuffing as it goes.
// It does not mutate the fifo; the caller commits with AltBegin/AltFinish.
func (c *Codec) scanFrame() (unstuffed []byte, rawLen int, ok bool) {
	offset := 1
	var out []byte
	for {
		b, have := c.input.AltPeek(offset)
		if !have {
			return nil, 0, false
		}
		if b == startFlag {
			return out, offset + 1, true
		}
		if b == escFlag {
			nb, have2 := c.input.AltPeek(offset + 1)
			if !have2 {
				return nil, 0, false
			}
			out = append(out, nb^escXor)
			offset += 2
			continue
		}
		out = append(out, b)
		offset++
	}
}
