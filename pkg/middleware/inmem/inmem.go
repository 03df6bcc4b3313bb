// Package inmem is an in-process stand-in for a real DDS binding,
// used as the test double for pkg/object and above — the same role
// pkg/can/virtual's loopback bus plays for the teacher's node tests.
// It tracks just enough state (representation, per-reader sample
// queues, per-writer write log) to exercise the object tree's create
// policy and the read pipeline's rate-limited delivery without a real
// middleware.
package inmem

import (
	"sync"
	"time"

	"github.com/xrce-agent/agent/pkg/middleware"
)

type entity struct {
	kind   middleware.Kind
	parent uint32
	rep    middleware.Representation
	topic  string
}

// Middleware is the in-memory test double.
type Middleware struct {
	mu       sync.Mutex
	entities map[uint32]entity
	queues   map[uint32]chan []byte
	written  map[uint32][][]byte
}

func New() *Middleware {
	return &Middleware{
		entities: make(map[uint32]entity),
		queues:   make(map[uint32]chan []byte),
		written:  make(map[uint32][][]byte),
	}
}

func (m *Middleware) create(rawID, parent uint32, kind middleware.Kind, topic string, rep middleware.Representation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[rawID] = entity{kind: kind, parent: parent, rep: rep, topic: topic}
	if kind == middleware.KindDataReader {
		m.queues[rawID] = make(chan []byte, 64)
	}
	return nil
}

func (m *Middleware) CreateParticipant(rawID uint32, _ uint16, rep middleware.Representation) error {
	return m.create(rawID, 0, middleware.KindParticipant, "", rep)
}

func (m *Middleware) CreateTopic(rawID, parentID uint32, rep middleware.Representation) error {
	return m.create(rawID, parentID, middleware.KindTopic, "", rep)
}

func (m *Middleware) CreatePublisher(rawID, parentID uint32, rep middleware.Representation) error {
	return m.create(rawID, parentID, middleware.KindPublisher, "", rep)
}

func (m *Middleware) CreateSubscriber(rawID, parentID uint32, rep middleware.Representation) error {
	return m.create(rawID, parentID, middleware.KindSubscriber, "", rep)
}

func (m *Middleware) CreateDataWriter(rawID, parentID uint32, topicName string, rep middleware.Representation) error {
	return m.create(rawID, parentID, middleware.KindDataWriter, topicName, rep)
}

func (m *Middleware) CreateDataReader(rawID, parentID uint32, topicName string, rep middleware.Representation) error {
	return m.create(rawID, parentID, middleware.KindDataReader, topicName, rep)
}

func (m *Middleware) Delete(_ middleware.Kind, rawID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[rawID]; !ok {
		return middleware.ErrNotFound
	}
	delete(m.entities, rawID)
	delete(m.queues, rawID)
	delete(m.written, rawID)
	return nil
}

func (m *Middleware) Write(writerRawID uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[writerRawID]; !ok {
		return middleware.ErrNotFound
	}
	cp := append([]byte(nil), data...)
	m.written[writerRawID] = append(m.written[writerRawID], cp)
	return nil
}

func (m *Middleware) Read(readerRawID uint32, timeout time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	q, ok := m.queues[readerRawID]
	m.mu.Unlock()
	if !ok {
		return nil, false, middleware.ErrNotFound
	}
	select {
	case data := <-q:
		return data, true, nil
	case <-time.After(timeout):
		return nil, false, nil
	}
}

func (m *Middleware) Matched(rawID uint32, rep middleware.Representation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[rawID]
	if !ok {
		return false, middleware.ErrNotFound
	}
	return e.rep.Equal(rep), nil
}

// PushSample injects data as an available sample for readerRawID, for
// tests exercising the read pipeline without a real publisher.
func (m *Middleware) PushSample(readerRawID uint32, data []byte) bool {
	m.mu.Lock()
	q, ok := m.queues[readerRawID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case q <- data:
		return true
	default:
		return false
	}
}

// Written returns the data written through writerRawID, in order, for
// test assertions.
func (m *Middleware) Written(writerRawID uint32) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written[writerRawID]...)
}
