package virtual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrce-agent/agent/pkg/transport"
)

func TestPairExchangesPackets(t *testing.T) {
	a, b := NewPair("a", "b")

	err := a.SendTo(transport.OutputPacket{Data: []byte("hello")})
	require.NoError(t, err)

	pkt, err := b.RecvFrom(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pkt.Payload)
	assert.Equal(t, "a", pkt.Source.Addr)
}

func TestRecvFromTimesOutWhenIdle(t *testing.T) {
	a, _ := NewPair("a", "b")
	_, err := a.RecvFrom(10 * time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrTimeout)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	a, b := NewPair("a", "b")
	require.NoError(t, b.Disconnect())
	require.NoError(t, a.SendTo(transport.OutputPacket{Data: []byte("x")}))
	_, err := b.RecvFrom(10 * time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrTimeout)
}

func TestRegistryJoinsSameNamedBroker(t *testing.T) {
	tr1, err := transport.NewTransport("virtual", "shared-chan")
	require.NoError(t, err)
	tr2, err := transport.NewTransport("virtual", "shared-chan")
	require.NoError(t, err)
	require.NoError(t, tr1.Connect())
	require.NoError(t, tr2.Connect())
	defer tr1.Disconnect()
	defer tr2.Disconnect()

	require.NoError(t, tr1.SendTo(transport.OutputPacket{Data: []byte("ping")}))
	pkt, err := tr2.RecvFrom(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), pkt.Payload)
}
