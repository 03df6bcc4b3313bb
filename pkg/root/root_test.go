package root

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
	"github.com/xrce-agent/agent/pkg/session"
)

func TestCreateClientIsIdempotent(t *testing.T) {
	r := New(inmem.New(), 0)
	s1 := r.CreateClient(1, 0x81, 256)
	s2 := r.CreateClient(1, 0x81, 256)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestDeleteClientReportsExistence(t *testing.T) {
	r := New(inmem.New(), 0)
	r.CreateClient(1, 0x81, 256)
	assert.True(t, r.DeleteClient(1))
	assert.False(t, r.DeleteClient(1))
	assert.Equal(t, 0, r.Len())
}

func TestGetResolvesLiveClient(t *testing.T) {
	r := New(inmem.New(), 0)
	r.CreateClient(7, 0x81, 256)
	s, ok := r.Get(7)
	assert.True(t, ok)
	assert.EqualValues(t, 7, s.ClientKey)
}

func TestRangeVisitsEverySession(t *testing.T) {
	r := New(inmem.New(), 0)
	r.CreateClient(1, 0x81, 256)
	r.CreateClient(2, 0x81, 256)

	seen := make(map[uint32]bool)
	r.Range(func(key uint32, s *session.Session) bool {
		seen[key] = true
		assert.Equal(t, key, s.ClientKey)
		return true
	})
	assert.Len(t, seen, 2)
}
