// Package submsg implements the CDR payload encoding for every
// submessage named in spec.md §4.5's dispatch table. It is a leaf
// package (depends only on pkg/wire, pkg/middleware, pkg/status) so
// both pkg/processor and pkg/readpipeline can build and parse
// submessages without importing each other.
package submsg

import (
	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/status"
	"github.com/xrce-agent/agent/pkg/wire"
)

// DeliveryMode selects how READ_DATA packages results (spec.md §4.6).
type DeliveryMode uint8

const (
	ModeData DeliveryMode = iota
	ModeSample
	ModeDataSeq
	ModeSampleSeq
)

// DeleteTarget distinguishes an object delete from a client delete
// (submessage id 5 covers both, per spec.md §4.5).
type DeleteTarget uint8

const (
	DeleteObject DeleteTarget = iota
	DeleteClient
)

// CreateClientPayload is submessage id 0.
type CreateClientPayload struct {
	XRCEVersion uint8
	MTU         uint16
}

func (p CreateClientPayload) Encode(w *wire.Writer) {
	w.PutUint8(p.XRCEVersion)
	w.PutUint16(p.MTU)
}

func DecodeCreateClientPayload(r *wire.Reader) (CreateClientPayload, error) {
	var p CreateClientPayload
	var err error
	if p.XRCEVersion, err = r.Uint8(); err != nil {
		return p, err
	}
	if p.MTU, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// CreatePayload is submessage id 1.
type CreatePayload struct {
	ObjectID  uint16
	Kind      middleware.Kind
	HasParent bool
	Parent    uint16
	Reuse     bool
	Replace   bool
	TopicName string
	Rep       middleware.Representation
}

func (p CreatePayload) Encode(w *wire.Writer) {
	w.PutUint16(p.ObjectID)
	w.PutUint8(uint8(p.Kind))
	w.PutUint8(boolToU8(p.HasParent))
	w.PutUint16(p.Parent)
	w.PutUint8(boolToU8(p.Reuse))
	w.PutUint8(boolToU8(p.Replace))
	w.PutString(p.TopicName)
	isXML := p.Rep.XML != ""
	w.PutUint8(boolToU8(isXML))
	if isXML {
		w.PutString(p.Rep.XML)
	} else {
		w.PutUint32(uint32(len(p.Rep.Binary)))
		w.PutRaw(p.Rep.Binary)
	}
}

func DecodeCreatePayload(r *wire.Reader) (CreatePayload, error) {
	var p CreatePayload
	var err error
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	kind, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Kind = middleware.Kind(kind)
	hasParent, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.HasParent = hasParent != 0
	if p.Parent, err = r.Uint16(); err != nil {
		return p, err
	}
	reuse, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Reuse = reuse != 0
	replace, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Replace = replace != 0
	if p.TopicName, err = r.String(); err != nil {
		return p, err
	}
	isXML, err := r.Uint8()
	if err != nil {
		return p, err
	}
	if isXML != 0 {
		if p.Rep.XML, err = r.String(); err != nil {
			return p, err
		}
		return p, nil
	}
	n, err := r.Uint32()
	if err != nil {
		return p, err
	}
	raw, err := r.Raw(int(n))
	if err != nil {
		return p, err
	}
	p.Rep.Binary = append([]byte(nil), raw...)
	return p, nil
}

// DeletePayload is submessage id 5.
type DeletePayload struct {
	Target   DeleteTarget
	ObjectID uint16 // valid only when Target == DeleteObject
}

func (p DeletePayload) Encode(w *wire.Writer) {
	w.PutUint8(uint8(p.Target))
	w.PutUint16(p.ObjectID)
}

func DecodeDeletePayload(r *wire.Reader) (DeletePayload, error) {
	var p DeletePayload
	target, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Target = DeleteTarget(target)
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// StatusAgentPayload is submessage id 6, used for both the discovery
// request and the reply.
type StatusAgentPayload struct {
	DomainID uint16
	MTU      uint16
}

func (p StatusAgentPayload) Encode(w *wire.Writer) {
	w.PutUint16(p.DomainID)
	w.PutUint16(p.MTU)
}

func DecodeStatusAgentPayload(r *wire.Reader) (StatusAgentPayload, error) {
	var p StatusAgentPayload
	var err error
	if p.DomainID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.MTU, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// StatusPayload is submessage id 7, the agent's reply to any request
// carrying a status.Code result.
type StatusPayload struct {
	RequestID uint16
	ObjectID  uint16
	Code      status.Code
}

func (p StatusPayload) Encode(w *wire.Writer) {
	w.PutUint16(p.RequestID)
	w.PutUint16(p.ObjectID)
	w.PutUint8(uint8(p.Code))
}

func DecodeStatusPayload(r *wire.Reader) (StatusPayload, error) {
	var p StatusPayload
	var err error
	if p.RequestID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	code, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Code = status.Code(code)
	return p, nil
}

// InfoPayload is submessage id 8, the agent's reply to GET_INFO.
type InfoPayload struct {
	AgentName    string
	AgentVersion uint8
	VendorID     uint16
}

func (p InfoPayload) Encode(w *wire.Writer) {
	w.PutString(p.AgentName)
	w.PutUint8(p.AgentVersion)
	w.PutUint16(p.VendorID)
}

func DecodeInfoPayload(r *wire.Reader) (InfoPayload, error) {
	var p InfoPayload
	var err error
	if p.AgentName, err = r.String(); err != nil {
		return p, err
	}
	if p.AgentVersion, err = r.Uint8(); err != nil {
		return p, err
	}
	if p.VendorID, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// WriteDataPayload is submessage id 9.
type WriteDataPayload struct {
	ObjectID  uint16
	RequestID uint16
	Data      []byte
}

func (p WriteDataPayload) Encode(w *wire.Writer) {
	w.PutUint16(p.ObjectID)
	w.PutUint16(p.RequestID)
	w.PutUint32(uint32(len(p.Data)))
	w.PutRaw(p.Data)
}

func DecodeWriteDataPayload(r *wire.Reader) (WriteDataPayload, error) {
	var p WriteDataPayload
	var err error
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.RequestID, err = r.Uint16(); err != nil {
		return p, err
	}
	n, err := r.Uint32()
	if err != nil {
		return p, err
	}
	raw, err := r.Raw(int(n))
	if err != nil {
		return p, err
	}
	p.Data = append([]byte(nil), raw...)
	return p, nil
}

// ReadDataPayload is submessage id 10.
type ReadDataPayload struct {
	ObjectID       uint16
	RequestID      uint16
	TargetStreamID uint8 // output stream the DATA/STATUS replies are pushed on
	Mode           DeliveryMode
	MaxSamples     uint16 // 0 means unbounded
	RateLimit      uint32 // bytes/sec; values below tokenbucket.MinRate, 0 included, are raised to MinRate
	Filter         string // empty means no content filter
}

func (p ReadDataPayload) Encode(w *wire.Writer) {
	w.PutUint16(p.ObjectID)
	w.PutUint16(p.RequestID)
	w.PutUint8(p.TargetStreamID)
	w.PutUint8(uint8(p.Mode))
	w.PutUint16(p.MaxSamples)
	w.PutUint32(p.RateLimit)
	w.PutString(p.Filter)
}

func DecodeReadDataPayload(r *wire.Reader) (ReadDataPayload, error) {
	var p ReadDataPayload
	var err error
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.RequestID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.TargetStreamID, err = r.Uint8(); err != nil {
		return p, err
	}
	mode, err := r.Uint8()
	if err != nil {
		return p, err
	}
	p.Mode = DeliveryMode(mode)
	if p.MaxSamples, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.RateLimit, err = r.Uint32(); err != nil {
		return p, err
	}
	if p.Filter, err = r.String(); err != nil {
		return p, err
	}
	return p, nil
}

// DataPayload is submessage id 11, produced by the read pipeline.
type DataPayload struct {
	ObjectID  uint16
	RequestID uint16
	Data      []byte
}

func (p DataPayload) Encode(w *wire.Writer) {
	w.PutUint16(p.ObjectID)
	w.PutUint16(p.RequestID)
	w.PutUint32(uint32(len(p.Data)))
	w.PutRaw(p.Data)
}

func DecodeDataPayload(r *wire.Reader) (DataPayload, error) {
	var p DataPayload
	var err error
	if p.ObjectID, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.RequestID, err = r.Uint16(); err != nil {
		return p, err
	}
	n, err := r.Uint32()
	if err != nil {
		return p, err
	}
	raw, err := r.Raw(int(n))
	if err != nil {
		return p, err
	}
	p.Data = append([]byte(nil), raw...)
	return p, nil
}

// AckNackPayload is submessage id 12.
type AckNackPayload struct {
	StreamID     uint8
	FirstUnacked uint16
	Bitmap       uint16
}

func (p AckNackPayload) Encode(w *wire.Writer) {
	w.PutUint8(p.StreamID)
	w.PutUint16(p.FirstUnacked)
	w.PutUint16(p.Bitmap)
}

func DecodeAckNackPayload(r *wire.Reader) (AckNackPayload, error) {
	var p AckNackPayload
	var err error
	if p.StreamID, err = r.Uint8(); err != nil {
		return p, err
	}
	if p.FirstUnacked, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.Bitmap, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// HeartbeatPayload is submessage id 13.
type HeartbeatPayload struct {
	StreamID     uint8
	FirstUnacked uint16
	LastUnacked  uint16
}

func (p HeartbeatPayload) Encode(w *wire.Writer) {
	w.PutUint8(p.StreamID)
	w.PutUint16(p.FirstUnacked)
	w.PutUint16(p.LastUnacked)
}

func DecodeHeartbeatPayload(r *wire.Reader) (HeartbeatPayload, error) {
	var p HeartbeatPayload
	var err error
	if p.StreamID, err = r.Uint8(); err != nil {
		return p, err
	}
	if p.FirstUnacked, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.LastUnacked, err = r.Uint16(); err != nil {
		return p, err
	}
	return p, nil
}

// TimestampPayload is submessage id 16, used for both the request and
// (with SubmessageHeader.IsReplier() set) the reply.
type TimestampPayload struct {
	OriginTimestamp  uint64 // nanoseconds, client clock
	ReceiptTimestamp uint64 // nanoseconds, agent clock; zero on a request
}

func (p TimestampPayload) Encode(w *wire.Writer) {
	w.PutUint64(p.OriginTimestamp)
	w.PutUint64(p.ReceiptTimestamp)
}

func DecodeTimestampPayload(r *wire.Reader) (TimestampPayload, error) {
	var p TimestampPayload
	var err error
	if p.OriginTimestamp, err = r.Uint64(); err != nil {
		return p, err
	}
	if p.ReceiptTimestamp, err = r.Uint64(); err != nil {
		return p, err
	}
	return p, nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
