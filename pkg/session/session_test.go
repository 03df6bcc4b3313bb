package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/wire"
)

func newTestSession() *Session {
	tree := object.NewTree(inmem.New(), 0)
	return New(0xDEADBEEF, 0x81, 256, tree)
}

func TestInputStreamClassifiesByID(t *testing.T) {
	s := newTestSession()
	assert.Nil(t, s.InputStream(wire.StreamIDNone).BestEffort)
	assert.Nil(t, s.InputStream(wire.StreamIDNone).Reliable)
	assert.NotNil(t, s.InputStream(1).BestEffort)
	assert.NotNil(t, s.InputStream(0x80).Reliable)
}

func TestInputStreamIsStableAcrossCalls(t *testing.T) {
	s := newTestSession()
	a := s.InputStream(5)
	b := s.InputStream(5)
	assert.Same(t, a, b)
}

func TestOutputStreamClassifiesByID(t *testing.T) {
	s := newTestSession()
	assert.NotNil(t, s.OutputStream(1).BestEffort)
	assert.NotNil(t, s.OutputStream(0x80).Reliable)
}

func TestReliableOutputStreamsCollectsOnlyReliable(t *testing.T) {
	s := newTestSession()
	s.OutputStream(1)
	s.OutputStream(0x80)
	s.OutputStream(0x81)

	reliable := s.ReliableOutputStreams()
	assert.Len(t, reliable, 2)
}

func TestResetClearsAllStreams(t *testing.T) {
	s := newTestSession()
	s.InputStream(1)
	s.OutputStream(0x80)
	s.Reset()
	assert.Empty(t, s.ReliableOutputStreams())
}
