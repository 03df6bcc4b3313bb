// Package processor implements the submessage dispatch table of
// spec.md §4.5: it decodes an InputPacket's submessages and drives
// Root, the client's Session/ObjectTree, and the read pipeline.
// Grounded on pkg/sdo/server.go's per-request dispatch (decode one
// SDO command, mutate the object dictionary, reply with an abort
// code or success), generalized from SDO's single command per packet
// to a submessage list with partial-failure-per-packet semantics.
package processor

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/pkg/endpoint"
	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/root"
	"github.com/xrce-agent/agent/pkg/scheduler"
	"github.com/xrce-agent/agent/pkg/seqnum"
	"github.com/xrce-agent/agent/pkg/session"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/submsg"
	"github.com/xrce-agent/agent/pkg/transport"
	"github.com/xrce-agent/agent/pkg/wire"
)

// Output priorities for the output scheduler (spec.md §5: 8 levels,
// 0 highest). Control traffic (STATUS/ACKNACK/HEARTBEAT) preempts
// bulk DATA so the client's reliability protocol stays responsive
// under load.
const (
	PriorityControl uint8 = 1
	PriorityData    uint8 = 4
)

// AgentInfo is the metadata returned by GET_INFO.
type AgentInfo struct {
	Name     string
	Version  uint8
	VendorID uint16
}

// ReadArmer is the read-pipeline capability the processor drives on
// READ_DATA/cancellation, kept as an interface here so pkg/processor
// and pkg/readpipeline don't import each other.
type ReadArmer interface {
	Arm(clientKey uint32, sess *session.Session, dest transport.Endpoint, req submsg.ReadDataPayload)
	Cancel(clientKey uint32, readerObjID uint16, requestID uint16)
	CancelAll(clientKey uint32)
}

// Config carries the agent-wide values the processor needs beyond
// Root/endpoints/scheduler.
type Config struct {
	DomainID   uint16
	DefaultMTU int
	AgentInfo  AgentInfo
}

// Processor dispatches decoded submessages for one agent instance.
type Processor struct {
	root      *root.Root
	endpoints *endpoint.Table
	out       *scheduler.Queue
	reads     ReadArmer
	cfg       Config
}

// New creates a Processor. reads may be nil in tests that don't
// exercise READ_DATA.
func New(r *root.Root, endpoints *endpoint.Table, out *scheduler.Queue, reads ReadArmer, cfg Config) *Processor {
	return &Processor{
		root:      r,
		endpoints: endpoints,
		out:       out,
		reads:     reads,
		cfg:       cfg,
	}
}

// Process decodes pkt's header and hands its submessage list to the
// dispatcher. Stream id NONE carries unordered, unacked traffic
// (including CREATE_CLIENT) and is dispatched as it arrives; every
// other stream id is ordered, so the message is first run through the
// input stream's reliable window or best-effort dedup before anything
// is dispatched, per spec.md §4.3/§5 ("delivery to the processor is
// strictly by seq num").
func (p *Processor) Process(pkt transport.InputPacket) error {
	header, rest, err := wire.DecodeMessageHeader(pkt.Payload)
	if err != nil {
		return fmt.Errorf("processor: decode header: %w", err)
	}

	var clientKey uint32
	var sess *session.Session
	if header.HasClientKey() {
		clientKey = header.ClientKey
		sess, _ = p.root.Get(clientKey)
	} else {
		ck, ok := p.endpoints.ClientKey(pkt.Source)
		if !ok {
			return fmt.Errorf("processor: no session bound to endpoint %s", pkt.Source)
		}
		clientKey = ck
		sess, ok = p.root.Get(clientKey)
		if !ok {
			return fmt.Errorf("processor: endpoint %s bound to unknown client %d", pkt.Source, clientKey)
		}
	}

	if wire.IsNone(header.StreamID) {
		p.processSubmessages(sess, clientKey, header, pkt.Source, rest)
		return nil
	}

	if sess == nil {
		log.Warnf("[PROCESSOR] ordered message for unestablished session, dropping : stream x%x", header.StreamID)
		return nil
	}

	sess.Lock()
	in := sess.InputStream(header.StreamID)
	var delivered [][]byte
	switch {
	case in.Reliable != nil:
		delivered, _ = in.Reliable.Receive(seqnum.SeqNum(header.SequenceNr), rest)
	case in.BestEffort != nil:
		if in.BestEffort.Receive(seqnum.SeqNum(header.SequenceNr)) {
			delivered = [][]byte{rest}
		}
	}
	sess.Unlock()

	for _, data := range delivered {
		p.processSubmessages(sess, clientKey, header, pkt.Source, data)
	}
	return nil
}

// processSubmessages walks one message's submessage list in wire
// order, dispatching each. A malformed submessage aborts the rest of
// the list; it never aborts the session or the agent (spec.md §4.5).
func (p *Processor) processSubmessages(sess *session.Session, clientKey uint32, header wire.MessageHeader, src transport.Endpoint, data []byte) {
	for len(data) >= 4 {
		sh, afterHeader, err := wire.DecodeSubmessageHeader(data)
		if err != nil {
			log.Warnf("[PROCESSOR] truncated submessage header, aborting packet")
			return
		}
		if len(afterHeader) < int(sh.Length) {
			log.Warnf("[PROCESSOR] submessage x%x declares more length than remains : declared %d have %d", sh.SubmessageID, sh.Length, len(afterHeader))
			return
		}
		payload := afterHeader[:sh.Length]
		data = afterHeader[sh.Length:]

		if sh.SubmessageID == wire.SubmsgCreateClient {
			sess = p.handleCreateClient(clientKey, header, sh, payload, src)
			continue
		}
		if sh.SubmessageID == wire.SubmsgStatusAgent {
			// Discovery works even before a client session exists.
			p.handleStatusAgent(src, header, sh, payload)
			continue
		}
		if sess == nil {
			log.Warnf("[PROCESSOR] submessage x%x for unestablished session, skipping", sh.SubmessageID)
			continue
		}
		sess.Lock()
		p.dispatch(sess, clientKey, header, sh, payload)
		sess.Unlock()
	}
}

func (p *Processor) dispatch(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	sess.Touch()
	switch sh.SubmessageID {
	case wire.SubmsgCreate:
		p.handleCreate(sess, clientKey, header, sh, payload)
	case wire.SubmsgGetInfo:
		p.handleGetInfo(sess, clientKey, header)
	case wire.SubmsgDelete:
		p.handleDelete(sess, clientKey, header, sh, payload)
	case wire.SubmsgWriteData:
		p.handleWriteData(sess, clientKey, header, sh, payload)
	case wire.SubmsgReadData:
		p.handleReadData(sess, clientKey, header, sh, payload)
	case wire.SubmsgAckNack:
		p.handleAckNack(sess, sh, payload)
	case wire.SubmsgHeartbeat:
		p.handleHeartbeat(sess, sh, payload)
	case wire.SubmsgReset:
		p.handleReset(sess, clientKey)
	case wire.SubmsgFragment:
		p.handleFragment(sess, clientKey, header, sh, payload)
	case wire.SubmsgTimestamp:
		p.handleTimestamp(clientKey, header, sh, payload)
	case wire.SubmsgStatus, wire.SubmsgInfo, wire.SubmsgData:
		// Agent-emitted kinds; a client is not expected to send these.
		log.Debugf("[PROCESSOR] ignoring client-sent agent-direction submessage x%x", sh.SubmessageID)
	default:
		log.Debugf("[PROCESSOR] unknown submessage id x%x, skipped", sh.SubmessageID)
	}
}

func (p *Processor) handleCreateClient(clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte, src transport.Endpoint) *session.Session {
	cc, err := submsg.DecodeCreateClientPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		log.Warnf("[PROCESSOR] malformed CREATE_CLIENT, dropped : %v", err)
		return nil
	}
	mtu := int(cc.MTU)
	if mtu <= 0 {
		mtu = p.cfg.DefaultMTU
	}
	sess := p.root.CreateClient(clientKey, header.SessionID, mtu)
	p.endpoints.Bind(src, clientKey)
	p.replyStatus(clientKey, header.SessionID, 0, 0, status.Ok, PriorityControl)
	return sess
}

func (p *Processor) handleCreate(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeCreatePayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		p.replyStatus(clientKey, header.SessionID, 0, 0, status.ErrInvalidData, PriorityControl)
		return
	}
	objID := object.NewObjectId(req.ObjectID, req.Kind)
	var parent object.ObjectId
	if req.HasParent {
		parent = object.ObjectId(req.Parent)
	}
	mode := object.CreationMode{Reuse: req.Reuse, Replace: req.Replace}
	err = sess.Tree.Create(objID, parent, req.HasParent, req.TopicName, req.Rep, mode)
	p.replyStatus(clientKey, header.SessionID, 0, req.ObjectID, status.FromError(err), PriorityControl)
}

func (p *Processor) handleGetInfo(sess *session.Session, clientKey uint32, header wire.MessageHeader) {
	info := submsg.InfoPayload{
		AgentName:    p.cfg.AgentInfo.Name,
		AgentVersion: p.cfg.AgentInfo.Version,
		VendorID:     p.cfg.AgentInfo.VendorID,
	}
	w := wire.NewWriter(true)
	info.Encode(w)
	p.enqueue(clientKey, header.SessionID, wire.StreamIDNone, 0, wire.SubmsgInfo, 0, w.Bytes(), PriorityControl)
}

func (p *Processor) handleDelete(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeDeletePayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		p.replyStatus(clientKey, header.SessionID, 0, 0, status.ErrInvalidData, PriorityControl)
		return
	}
	if req.Target == submsg.DeleteClient {
		if p.reads != nil {
			p.reads.CancelAll(clientKey)
		}
		ep, hadEndpoint := p.endpoints.Endpoint(clientKey)
		p.root.DeleteClient(clientKey)
		p.endpoints.Unbind(clientKey)
		if hadEndpoint {
			p.out.DropMatching(func(v any) bool {
				job, ok := v.(transport.OutputPacket)
				return ok && job.Dest == ep
			})
		}
		return
	}
	objID := object.ObjectId(req.ObjectID)
	if p.reads != nil {
		p.reads.Cancel(clientKey, req.ObjectID, 0)
	}
	err = sess.Tree.Delete(objID)
	p.replyStatus(clientKey, header.SessionID, 0, req.ObjectID, status.FromError(err), PriorityControl)
}

// handleStatusAgent replies directly to src rather than through the
// endpoint table: discovery (spec.md §9) has no established client
// session to route through yet.
func (p *Processor) handleStatusAgent(src transport.Endpoint, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	if _, err := submsg.DecodeStatusAgentPayload(wire.NewReader(payload, sh.LittleEndian())); err != nil {
		return
	}
	reply := submsg.StatusAgentPayload{DomainID: p.cfg.DomainID, MTU: uint16(p.cfg.DefaultMTU)}
	w := wire.NewWriter(true)
	reply.Encode(w)
	buf := wire.BuildPacket(header.SessionID, header.ClientKey, wire.StreamIDNone, 0, wire.SubmsgStatusAgent, 0, w.Bytes())
	p.out.Push(PriorityControl, transport.OutputPacket{Dest: src, Data: buf})
}

func (p *Processor) handleWriteData(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeWriteDataPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		p.replyStatus(clientKey, header.SessionID, 0, 0, status.ErrInvalidData, PriorityControl)
		return
	}
	obj, ok := sess.Tree.Get(object.ObjectId(req.ObjectID))
	if !ok {
		p.replyStatus(clientKey, header.SessionID, req.RequestID, req.ObjectID, status.ErrUnknownReference, PriorityControl)
		return
	}
	err = sess.Tree.Write(obj.ID, req.Data)
	if sh.Reliable() {
		p.replyStatus(clientKey, header.SessionID, req.RequestID, req.ObjectID, status.FromError(err), PriorityControl)
	}
}

func (p *Processor) handleReadData(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeReadDataPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		p.replyStatus(clientKey, header.SessionID, 0, 0, status.ErrInvalidData, PriorityControl)
		return
	}
	if _, ok := sess.Tree.Get(object.ObjectId(req.ObjectID)); !ok {
		p.replyStatus(clientKey, header.SessionID, req.RequestID, req.ObjectID, status.ErrUnknownReference, PriorityControl)
		return
	}
	if p.reads == nil {
		p.replyStatus(clientKey, header.SessionID, req.RequestID, req.ObjectID, status.ErrResourceDenied, PriorityControl)
		return
	}
	dest, ok := p.endpoints.Endpoint(clientKey)
	if !ok {
		return
	}
	p.reads.Arm(clientKey, sess, dest, req)
}

func (p *Processor) handleAckNack(sess *session.Session, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeAckNackPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		return
	}
	out := sess.OutputStream(req.StreamID)
	if out.Reliable == nil {
		return
	}
	retransmit := out.Reliable.OnAckNack(seqnum.SeqNum(req.FirstUnacked), req.Bitmap)
	for _, data := range retransmit {
		dest, ok := p.endpoints.Endpoint(sess.ClientKey)
		if !ok {
			return
		}
		p.out.Push(PriorityData, transport.OutputPacket{Dest: dest, Data: data})
	}
}

func (p *Processor) handleHeartbeat(sess *session.Session, sh wire.SubmessageHeader, payload []byte) {
	req, err := submsg.DecodeHeartbeatPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		return
	}
	in := sess.InputStream(req.StreamID)
	if in.Reliable == nil {
		return
	}
	in.Reliable.OnHeartbeat(seqnum.SeqNum(req.FirstUnacked))
	p.sendAckNack(sess, req.StreamID)
}

func (p *Processor) sendAckNack(sess *session.Session, streamID uint8) {
	in := sess.InputStream(streamID)
	if in.Reliable == nil {
		return
	}
	ack := submsg.AckNackPayload{
		StreamID:     streamID,
		FirstUnacked: uint16(in.Reliable.NextExpected()),
		Bitmap:       in.Reliable.Bitmap(),
	}
	w := wire.NewWriter(true)
	ack.Encode(w)
	dest, ok := p.endpoints.Endpoint(sess.ClientKey)
	if !ok {
		return
	}
	buf := wire.BuildPacket(sess.SessionID, sess.ClientKey, wire.StreamIDNone, 0, wire.SubmsgAckNack, 0, w.Bytes())
	p.out.Push(PriorityControl, transport.OutputPacket{Dest: dest, Data: buf})
}

func (p *Processor) handleReset(sess *session.Session, clientKey uint32) {
	if p.reads != nil {
		p.reads.CancelAll(clientKey)
	}
	sess.Reset()
}

func (p *Processor) handleFragment(sess *session.Session, clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	in := sess.InputStream(header.StreamID)
	complete, done := in.Reassembler.Add(payload, sh.IsLastFragment())
	if !done {
		return
	}
	// The reassembled message is itself a submessage (header + payload);
	// dispatch it as if it had arrived whole.
	innerHeader, innerRest, err := wire.DecodeSubmessageHeader(complete)
	if err != nil || len(innerRest) < int(innerHeader.Length) {
		log.Warnf("[PROCESSOR] malformed reassembled fragment payload")
		return
	}
	p.dispatch(sess, clientKey, header, innerHeader, innerRest[:innerHeader.Length])
}

func (p *Processor) handleTimestamp(clientKey uint32, header wire.MessageHeader, sh wire.SubmessageHeader, payload []byte) {
	ts, err := submsg.DecodeTimestampPayload(wire.NewReader(payload, sh.LittleEndian()))
	if err != nil {
		return
	}
	if sh.IsReplier() {
		// This is a reply arriving at the agent; nothing to do beyond
		// having let the client measure round-trip latency.
		return
	}
	reply := submsg.TimestampPayload{OriginTimestamp: ts.OriginTimestamp, ReceiptTimestamp: uint64(time.Now().UnixNano())}
	w := wire.NewWriter(true)
	reply.Encode(w)
	p.enqueue(clientKey, header.SessionID, wire.StreamIDNone, 0, wire.SubmsgTimestamp, wire.FlagReplier, w.Bytes(), PriorityControl)
}

func (p *Processor) replyStatus(clientKey uint32, sessionID uint8, requestID, objectID uint16, code status.Code, priority uint8) {
	payload := submsg.StatusPayload{RequestID: requestID, ObjectID: objectID, Code: code}
	w := wire.NewWriter(true)
	payload.Encode(w)
	p.enqueue(clientKey, sessionID, wire.StreamIDNone, 0, wire.SubmsgStatus, 0, w.Bytes(), priority)
}

func (p *Processor) enqueue(clientKey uint32, sessionID uint8, streamID uint8, seq uint16, submsgID uint8, flags uint8, payload []byte, priority uint8) {
	dest, ok := p.endpoints.Endpoint(clientKey)
	if !ok {
		log.Debugf("[PROCESSOR] no endpoint bound for client x%x, dropping reply", clientKey)
		return
	}
	buf := wire.BuildPacket(sessionID, clientKey, streamID, seq, submsgID, flags, payload)
	p.out.Push(priority, transport.OutputPacket{Dest: dest, Data: buf})
}

