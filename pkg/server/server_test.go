package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrce-agent/agent/pkg/endpoint"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
	"github.com/xrce-agent/agent/pkg/processor"
	"github.com/xrce-agent/agent/pkg/root"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/submsg"
	"github.com/xrce-agent/agent/pkg/transport"
	"github.com/xrce-agent/agent/pkg/transport/virtual"
	"github.com/xrce-agent/agent/pkg/wire"
)

func encodeCreateClient(clientKey uint32, mtu uint16) []byte {
	mh := wire.MessageHeader{SessionID: 0x01, StreamID: wire.StreamIDNone, ClientKey: clientKey}
	buf := mh.Encode(nil)
	w := wire.NewWriter(true)
	submsg.CreateClientPayload{XRCEVersion: 1, MTU: mtu}.Encode(w)
	sh := wire.SubmessageHeader{SubmessageID: wire.SubmsgCreateClient, Length: uint16(len(w.Bytes()))}
	buf = sh.Encode(buf)
	return append(buf, w.Bytes()...)
}

func TestServerRoundTripsCreateClient(t *testing.T) {
	client, agentSide := virtual.NewPair("client:1", "agent:1")
	require.NoError(t, client.Connect())

	r := root.New(inmem.New(), 0)
	eps := endpoint.NewTable()
	in := scheduler.New(64, scheduler.DropLowestPriority)
	out := scheduler.New(64, scheduler.DropLowestPriority)
	cfg := processor.Config{DomainID: 0, DefaultMTU: 256, AgentInfo: processor.AgentInfo{Name: "test"}}
	proc := processor.New(r, eps, out, nil, cfg)

	srv := New(agentSide, proc, r, eps, in, out, Config{RecvTimeout: 20 * time.Millisecond})
	require.NoError(t, srv.Start())
	defer func() {
		require.NoError(t, srv.Stop())
		srv.Wait()
	}()

	require.NoError(t, client.SendTo(transport.OutputPacket{Data: encodeCreateClient(0x99, 256)}))

	pkt, err := client.RecvFrom(time.Second)
	require.NoError(t, err)

	_, rest, err := wire.DecodeMessageHeader(pkt.Payload)
	require.NoError(t, err)
	sh, afterHeader, err := wire.DecodeSubmessageHeader(rest)
	require.NoError(t, err)
	require.Equal(t, wire.SubmsgStatus, sh.SubmessageID)
	sp, err := submsg.DecodeStatusPayload(wire.NewReader(afterHeader[:sh.Length], sh.LittleEndian()))
	require.NoError(t, err)
	assert.Equal(t, status.Ok, sp.Code)

	assert.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)
}
