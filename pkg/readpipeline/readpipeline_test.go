package readpipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/session"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/submsg"
	"github.com/xrce-agent/agent/pkg/transport"
	"github.com/xrce-agent/agent/pkg/wire"
)

const testPoll = 10 * time.Millisecond

func newTestSession(t *testing.T, mw *inmem.Middleware, clientKey uint32) (*session.Session, object.ObjectId) {
	t.Helper()
	tree := object.NewTree(mw, 0)
	participant := object.NewObjectId(1, middleware.KindParticipant)
	topic := object.NewObjectId(2, middleware.KindTopic)
	subscriber := object.NewObjectId(3, middleware.KindSubscriber)
	reader := object.NewObjectId(4, middleware.KindDataReader)
	require.NoError(t, tree.Create(participant, 0, false, "", middleware.Representation{XML: "p"}, object.CreationMode{}))
	require.NoError(t, tree.Create(topic, participant, true, "rt/chatter", middleware.Representation{XML: "t"}, object.CreationMode{}))
	require.NoError(t, tree.Create(subscriber, participant, true, "", middleware.Representation{XML: "s"}, object.CreationMode{}))
	require.NoError(t, tree.Create(reader, subscriber, true, "rt/chatter", middleware.Representation{XML: "r"}, object.CreationMode{}))
	return session.New(clientKey, 0x01, 512, tree), reader
}

func popData(t *testing.T, out *scheduler.Queue) submsg.DataPayload {
	t.Helper()
	v, ok := out.Pop()
	require.True(t, ok)
	job := v.(transport.OutputPacket)
	_, rest, err := wire.DecodeMessageHeader(job.Data)
	require.NoError(t, err)
	sh, afterHeader, err := wire.DecodeSubmessageHeader(rest)
	require.NoError(t, err)
	require.Equal(t, wire.SubmsgData, sh.SubmessageID)
	dp, err := submsg.DecodeDataPayload(wire.NewReader(afterHeader[:sh.Length], sh.LittleEndian()))
	require.NoError(t, err)
	return dp
}

func popStatus(t *testing.T, out *scheduler.Queue) submsg.StatusPayload {
	t.Helper()
	v, ok := out.Pop()
	require.True(t, ok)
	job := v.(transport.OutputPacket)
	_, rest, err := wire.DecodeMessageHeader(job.Data)
	require.NoError(t, err)
	sh, afterHeader, err := wire.DecodeSubmessageHeader(rest)
	require.NoError(t, err)
	require.Equal(t, wire.SubmsgStatus, sh.SubmessageID)
	sp, err := submsg.DecodeStatusPayload(wire.NewReader(afterHeader[:sh.Length], sh.LittleEndian()))
	require.NoError(t, err)
	return sp
}

func TestArmDeliversSamplesThenTerminalStatus(t *testing.T) {
	mw := inmem.New()
	sess, reader := newTestSession(t, mw, 21)
	out := scheduler.New(64, scheduler.DropLowestPriority)
	m := New(out, testPoll)
	dest := transport.Endpoint{Kind: transport.EndpointUDP, Addr: "10.0.0.1:7400"}

	require.True(t, mw.PushSample(uint32(reader), []byte("one")))
	require.True(t, mw.PushSample(uint32(reader), []byte("two")))

	req := submsg.ReadDataPayload{
		ObjectID: uint16(reader), RequestID: 5, TargetStreamID: 0x01,
		Mode: submsg.ModeData, MaxSamples: 2, RateLimit: 1_000_000,
	}
	m.Arm(21, sess, dest, req)

	require.Eventually(t, func() bool { return out.Len() >= 1 }, time.Second, time.Millisecond)
	first := popData(t, out)
	assert.Equal(t, []byte("one"), first.Data)
	assert.EqualValues(t, 5, first.RequestID)

	require.Eventually(t, func() bool { return out.Len() >= 1 }, time.Second, time.Millisecond)
	second := popData(t, out)
	assert.Equal(t, []byte("two"), second.Data)

	require.Eventually(t, func() bool { return out.Len() >= 1 }, time.Second, time.Millisecond)
	sp := popStatus(t, out)
	assert.Equal(t, status.Ok, sp.Code)
}

func TestFilterRejectsNonMatchingSamples(t *testing.T) {
	mw := inmem.New()
	sess, reader := newTestSession(t, mw, 22)
	out := scheduler.New(64, scheduler.DropLowestPriority)
	m := New(out, testPoll)
	dest := transport.Endpoint{Kind: transport.EndpointUDP, Addr: "10.0.0.2:7400"}

	require.True(t, mw.PushSample(uint32(reader), []byte("apple")))
	require.True(t, mw.PushSample(uint32(reader), []byte("banana")))

	req := submsg.ReadDataPayload{
		ObjectID: uint16(reader), RequestID: 9, TargetStreamID: 0x01,
		Mode: submsg.ModeData, MaxSamples: 1, RateLimit: 1_000_000, Filter: "banana",
	}
	m.Arm(22, sess, dest, req)

	require.Eventually(t, func() bool { return out.Len() >= 1 }, time.Second, time.Millisecond)
	dp := popData(t, out)
	assert.Equal(t, []byte("banana"), dp.Data)
}

func TestCancelAllStopsDelivery(t *testing.T) {
	mw := inmem.New()
	sess, reader := newTestSession(t, mw, 23)
	out := scheduler.New(64, scheduler.DropLowestPriority)
	m := New(out, testPoll)
	dest := transport.Endpoint{Kind: transport.EndpointUDP, Addr: "10.0.0.3:7400"}

	req := submsg.ReadDataPayload{
		ObjectID: uint16(reader), RequestID: 1, TargetStreamID: 0x01,
		Mode: submsg.ModeData, MaxSamples: 0, RateLimit: 1_000_000,
	}
	m.Arm(23, sess, dest, req)
	m.CancelAll(23)

	require.True(t, mw.PushSample(uint32(reader), []byte("late")))
	assert.Never(t, func() bool { return out.Len() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestArmReplacesPriorReadWithSameRequestID(t *testing.T) {
	mw := inmem.New()
	sess, reader := newTestSession(t, mw, 24)
	out := scheduler.New(64, scheduler.DropLowestPriority)
	m := New(out, testPoll)
	dest := transport.Endpoint{Kind: transport.EndpointUDP, Addr: "10.0.0.4:7400"}

	req := submsg.ReadDataPayload{
		ObjectID: uint16(reader), RequestID: 1, TargetStreamID: 0x01,
		Mode: submsg.ModeData, MaxSamples: 0, RateLimit: 1_000_000,
	}
	m.Arm(24, sess, dest, req)
	m.Arm(24, sess, dest, req) // replaces the first worker; must not deadlock

	require.True(t, mw.PushSample(uint32(reader), []byte("x")))
	require.Eventually(t, func() bool { return out.Len() >= 1 }, time.Second, time.Millisecond)
	dp := popData(t, out)
	assert.Equal(t, []byte("x"), dp.Data)

	m.CancelAll(24)
}
