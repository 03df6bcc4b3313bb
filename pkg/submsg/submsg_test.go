package submsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/wire"
)

func TestCreatePayloadRoundTripXML(t *testing.T) {
	p := CreatePayload{
		ObjectID:  7,
		Kind:      middleware.KindDataWriter,
		HasParent: true,
		Parent:    3,
		Reuse:     true,
		Replace:   false,
		TopicName: "rt/chatter",
		Rep:       middleware.Representation{XML: "<dds><profile/></dds>"},
	}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeCreatePayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestCreatePayloadRoundTripBinary(t *testing.T) {
	p := CreatePayload{
		ObjectID: 1,
		Kind:     middleware.KindParticipant,
		Rep:      middleware.Representation{Binary: []byte{1, 2, 3, 4}},
	}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeCreatePayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestWriteDataPayloadRoundTrip(t *testing.T) {
	p := WriteDataPayload{ObjectID: 5, RequestID: 99, Data: []byte("hello world")}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeWriteDataPayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestReadDataPayloadRoundTrip(t *testing.T) {
	p := ReadDataPayload{
		ObjectID: 9, RequestID: 1, TargetStreamID: 0x81, Mode: ModeDataSeq,
		MaxSamples: 10, RateLimit: 128000, Filter: "x > 1",
	}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeReadDataPayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStatusPayloadRoundTrip(t *testing.T) {
	p := StatusPayload{RequestID: 4, ObjectID: 2, Code: status.ErrUnknownReference}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeStatusPayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestAckNackPayloadRoundTrip(t *testing.T) {
	p := AckNackPayload{StreamID: 0x80, FirstUnacked: 12, Bitmap: 0b101}
	w := wire.NewWriter(false)
	p.Encode(w)

	got, err := DecodeAckNackPayload(wire.NewReader(w.Bytes(), false))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestHeartbeatPayloadRoundTrip(t *testing.T) {
	p := HeartbeatPayload{StreamID: 0x81, FirstUnacked: 3, LastUnacked: 8}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeHeartbeatPayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDeletePayloadRoundTrip(t *testing.T) {
	p := DeletePayload{Target: DeleteObject, ObjectID: 42}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeDeletePayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestTimestampPayloadRoundTrip(t *testing.T) {
	p := TimestampPayload{OriginTimestamp: 123456789, ReceiptTimestamp: 0}
	w := wire.NewWriter(true)
	p.Encode(w)

	got, err := DecodeTimestampPayload(wire.NewReader(w.Bytes(), true))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeCreatePayloadTruncated(t *testing.T) {
	_, err := DecodeCreatePayload(wire.NewReader([]byte{1}, true))
	assert.ErrorIs(t, err, wire.ErrTruncated)
}
