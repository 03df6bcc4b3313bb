// Package wire implements the bit-exact encoding of XRCE message and
// submessage headers, and the small CDR-style reader/writer the
// processor uses to parse and build submessage payloads.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a buffer is too small to hold a
// header or a declared-length payload.
var ErrShortBuffer = errors.New("wire: buffer too short")

// Stream id classes, see spec.md §3 StreamId.
const (
	StreamIDNone             uint8 = 0x00
	StreamIDBestEffortInput  uint8 = 0x01
	StreamIDBestEffortOutput uint8 = 0x80
	StreamIDReliableInputMin uint8 = 0x80
	StreamIDReliableOutputMin uint8 = 0x80
)

// IsReliable reports whether a stream id falls in the reliable range (128..255).
func IsReliable(streamID uint8) bool { return streamID >= 0x80 }

// IsNone reports whether a stream id is the NONE stream (single submessages, no ordering).
func IsNone(streamID uint8) bool { return streamID == StreamIDNone }

// MessageHeader is the fixed leading structure of every XRCE packet.
// ClientKey is present on the wire only when SessionID < 0x80 (spec.md §6).
type MessageHeader struct {
	SessionID  uint8
	StreamID   uint8
	SequenceNr uint16
	ClientKey  uint32
}

// HasClientKey reports whether this header's session id encodes a
// client key on the wire.
func (h MessageHeader) HasClientKey() bool { return h.SessionID < 0x80 }

// WireSize returns the number of bytes this header occupies when
// encoded.
func (h MessageHeader) WireSize() int {
	if h.HasClientKey() {
		return 8
	}
	return 4
}

// Encode appends the header to buf and returns the result.
func (h MessageHeader) Encode(buf []byte) []byte {
	buf = append(buf, h.SessionID, h.StreamID)
	buf = binary.LittleEndian.AppendUint16(buf, h.SequenceNr)
	if h.HasClientKey() {
		buf = binary.LittleEndian.AppendUint32(buf, h.ClientKey)
	}
	return buf
}

// DecodeMessageHeader reads a MessageHeader from the front of data,
// returning the header and the remaining unconsumed bytes.
func DecodeMessageHeader(data []byte) (MessageHeader, []byte, error) {
	if len(data) < 4 {
		return MessageHeader{}, nil, ErrShortBuffer
	}
	h := MessageHeader{
		SessionID:  data[0],
		StreamID:   data[1],
		SequenceNr: binary.LittleEndian.Uint16(data[2:4]),
	}
	rest := data[4:]
	if h.HasClientKey() {
		if len(rest) < 4 {
			return MessageHeader{}, nil, ErrShortBuffer
		}
		h.ClientKey = binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
	}
	return h, rest, nil
}

// Submessage ids, see spec.md §4.5 dispatch table.
const (
	SubmsgCreateClient uint8 = 0
	SubmsgCreate       uint8 = 1
	SubmsgGetInfo      uint8 = 4
	SubmsgDelete       uint8 = 5
	SubmsgStatusAgent  uint8 = 6
	SubmsgStatus       uint8 = 7
	SubmsgInfo         uint8 = 8
	SubmsgWriteData    uint8 = 9
	SubmsgReadData     uint8 = 10
	SubmsgData         uint8 = 11
	SubmsgAckNack      uint8 = 12
	SubmsgHeartbeat    uint8 = 13
	SubmsgReset        uint8 = 14
	SubmsgFragment     uint8 = 15
	SubmsgTimestamp    uint8 = 16
)

// Submessage flag bits, see spec.md §6 SubmessageHeader.
const (
	FlagEndianness  uint8 = 1 << 0
	FlagFragmentLast uint8 = 1 << 1
	FlagReliable    uint8 = 1 << 2
	FlagReplier     uint8 = 1 << 3
)

// SubmessageHeader precedes every submessage payload.
type SubmessageHeader struct {
	SubmessageID uint8
	Flags        uint8
	Length       uint16 // length in bytes of the payload following this header
}

func (h SubmessageHeader) LittleEndian() bool { return h.Flags&FlagEndianness == 0 }
func (h SubmessageHeader) IsLastFragment() bool { return h.Flags&FlagFragmentLast != 0 }
func (h SubmessageHeader) Reliable() bool     { return h.Flags&FlagReliable != 0 }
func (h SubmessageHeader) IsReplier() bool    { return h.Flags&FlagReplier != 0 }

func (h SubmessageHeader) Encode(buf []byte) []byte {
	buf = append(buf, h.SubmessageID, h.Flags)
	return binary.LittleEndian.AppendUint16(buf, h.Length)
}

// DecodeSubmessageHeader reads a SubmessageHeader from the front of
// data, returning the header and the remaining bytes (including the
// declared payload, not yet sliced off).
func DecodeSubmessageHeader(data []byte) (SubmessageHeader, []byte, error) {
	if len(data) < 4 {
		return SubmessageHeader{}, nil, ErrShortBuffer
	}
	h := SubmessageHeader{
		SubmessageID: data[0],
		Flags:        data[1],
		Length:       binary.LittleEndian.Uint16(data[2:4]),
	}
	return h, data[4:], nil
}

// BuildPacket assembles a MessageHeader followed by one SubmessageHeader
// and its payload, the shape of every packet the agent sends. Shared by
// pkg/processor and pkg/readpipeline so both build outgoing packets the
// same way without importing each other.
func BuildPacket(sessionID uint8, clientKey uint32, streamID uint8, seq uint16, submsgID uint8, flags uint8, payload []byte) []byte {
	mh := MessageHeader{SessionID: sessionID, StreamID: streamID, SequenceNr: seq, ClientKey: clientKey}
	buf := mh.Encode(nil)
	sh := SubmessageHeader{SubmessageID: submsgID, Flags: flags, Length: uint16(len(payload))}
	buf = sh.Encode(buf)
	buf = append(buf, payload...)
	return buf
}
