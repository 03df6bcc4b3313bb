package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBestEffortDeliversFirstMessage(t *testing.T) {
	s := NewBestEffortStream()
	assert.True(t, s.Receive(5))
}

func TestBestEffortDropsDuplicateAndLate(t *testing.T) {
	s := NewBestEffortStream()
	assert.True(t, s.Receive(5))
	assert.False(t, s.Receive(5))
	assert.False(t, s.Receive(3))
}

func TestBestEffortDeliversStrictlyIncreasing(t *testing.T) {
	s := NewBestEffortStream()
	assert.True(t, s.Receive(1))
	assert.True(t, s.Receive(2))
	assert.True(t, s.Receive(10))
}

func TestBestEffortHandlesWraparound(t *testing.T) {
	s := NewBestEffortStream()
	assert.True(t, s.Receive(65535))
	assert.True(t, s.Receive(0))
}

func TestFragmentReassemblerAccumulatesUntilLast(t *testing.T) {
	var r Reassembler
	complete, done := r.Add([]byte("ab"), false)
	assert.False(t, done)
	assert.Nil(t, complete)

	complete, done = r.Add([]byte("cd"), true)
	assert.True(t, done)
	assert.Equal(t, []byte("abcd"), complete)
}

func TestFragmentReassemblerResetsAfterCompletion(t *testing.T) {
	var r Reassembler
	r.Add([]byte("x"), true)
	complete, done := r.Add([]byte("y"), true)
	assert.True(t, done)
	assert.Equal(t, []byte("y"), complete)
}
