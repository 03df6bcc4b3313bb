// Package middleware defines the narrow capability the object tree
// calls into to actually allocate pub/sub resources: participants,
// topics, publishers, subscribers, data writers/readers. The concrete
// DDS binding (or an in-process emulator) lives outside this repo's
// core, per spec.md §6 — this package only states the contract plus
// an in-memory test double (pkg/middleware/inmem).
package middleware

import (
	"errors"
	"time"
)

// Kind identifies which XRCE object kind a middleware operation
// targets. Mirrors the kind nibble of an ObjectId without importing
// pkg/object, so middleware stays a leaf package that imports nothing
// from this module.
type Kind uint8

const (
	KindParticipant Kind = iota
	KindTopic
	KindPublisher
	KindSubscriber
	KindDataWriter
	KindDataReader
	KindRequester
	KindReplier
	KindType
	KindQosProfile
	KindApplication
)

// Representation is the declared shape of an object: either an XML
// profile string or a normalized binary descriptor, never both.
type Representation struct {
	XML    string
	Binary []byte
}

// Equal reports whether two representations describe the same
// entity, per spec.md §4.4's "kind and effective representation"
// match rule.
func (r Representation) Equal(other Representation) bool {
	if r.XML != "" || other.XML != "" {
		return r.XML == other.XML
	}
	return string(r.Binary) == string(other.Binary)
}

// ErrNotFound is returned by Delete/Write/Read/Matched when rawID
// names an entity the middleware never created (or already deleted).
var ErrNotFound = errors.New("middleware: entity not found")

// Middleware is the pub/sub capability bound to ObjectTree creates.
// Every Create* call either allocates a real resource and returns nil,
// or returns a non-nil error and leaves no resource allocated — the
// tree adds no entry on error (spec.md §4.4).
type Middleware interface {
	CreateParticipant(rawID uint32, domainID uint16, rep Representation) error
	CreateTopic(rawID, parentID uint32, rep Representation) error
	CreatePublisher(rawID, parentID uint32, rep Representation) error
	CreateSubscriber(rawID, parentID uint32, rep Representation) error
	CreateDataWriter(rawID, parentID uint32, topicName string, rep Representation) error
	CreateDataReader(rawID, parentID uint32, topicName string, rep Representation) error

	Delete(kind Kind, rawID uint32) error

	Write(writerRawID uint32, data []byte) error
	// Read pulls one sample for the reader if available within
	// timeout. ok is false on timeout; err is non-nil only on a real
	// middleware failure.
	Read(readerRawID uint32, timeout time.Duration) (data []byte, ok bool, err error)

	// Matched compares an existing entity's representation to rep, for
	// the reuse/replace create policy.
	Matched(rawID uint32, rep Representation) (bool, error)
}
