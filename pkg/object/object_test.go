package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/middleware/inmem"
)

func participantID(n uint16) ObjectId { return NewObjectId(n, middleware.KindParticipant) }
func topicID(n uint16) ObjectId       { return NewObjectId(n, middleware.KindTopic) }
func publisherID(n uint16) ObjectId   { return NewObjectId(n, middleware.KindPublisher) }
func writerID(n uint16) ObjectId      { return NewObjectId(n, middleware.KindDataWriter) }

func TestCreateWithoutModeRejectsDuplicate(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	id := participantID(1)
	rep := middleware.Representation{XML: "A"}

	require.NoError(t, tree.Create(id, 0, false, "", rep, CreationMode{}))
	err := tree.Create(id, 0, false, "", rep, CreationMode{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateReuseIdenticalRepIsNoop(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	id := participantID(1)
	rep := middleware.Representation{XML: "A"}

	require.NoError(t, tree.Create(id, 0, false, "", rep, CreationMode{}))
	err := tree.Create(id, 0, false, "", rep, CreationMode{Reuse: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
}

func TestCreateReuseDifferentRepWithoutReplaceIsUnmatched(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	id := participantID(1)

	require.NoError(t, tree.Create(id, 0, false, "", middleware.Representation{XML: "A"}, CreationMode{}))
	err := tree.Create(id, 0, false, "", middleware.Representation{XML: "B"}, CreationMode{Reuse: true})
	assert.ErrorIs(t, err, ErrUnmatched)
}

func TestCreateReuseReplaceSwapsRepresentation(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	id := participantID(1)

	require.NoError(t, tree.Create(id, 0, false, "", middleware.Representation{XML: "A"}, CreationMode{}))
	err := tree.Create(id, 0, false, "", middleware.Representation{XML: "B"}, CreationMode{Reuse: true, Replace: true})
	require.NoError(t, err)

	obj, ok := tree.Get(id)
	require.True(t, ok)
	assert.Equal(t, "B", obj.Rep.XML)
}

func TestCreateReuseOnAbsentIdIsUnknownReference(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	err := tree.Create(participantID(9), 0, false, "", middleware.Representation{}, CreationMode{Reuse: true})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestCreateChildRequiresExistingParentOfRightKind(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	err := tree.Create(topicID(1), participantID(9), true, "", middleware.Representation{}, CreationMode{})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestCreateDataWriterRequiresMatchingTopicName(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	p := participantID(1)
	require.NoError(t, tree.Create(p, 0, false, "", middleware.Representation{}, CreationMode{}))
	pub := publisherID(2)
	require.NoError(t, tree.Create(pub, p, true, "", middleware.Representation{}, CreationMode{}))

	err := tree.Create(writerID(3), pub, true, "no-such-topic", middleware.Representation{}, CreationMode{})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestCascadeDeleteRemovesParentAndChildren(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	p := participantID(1)
	pub := publisherID(2)
	w := writerID(3)
	topic := topicID(4)

	require.NoError(t, tree.Create(p, 0, false, "", middleware.Representation{}, CreationMode{}))
	require.NoError(t, tree.Create(topic, p, true, "t", middleware.Representation{}, CreationMode{}))
	require.NoError(t, tree.Create(pub, p, true, "", middleware.Representation{}, CreationMode{}))
	require.NoError(t, tree.Create(w, pub, true, "t", middleware.Representation{}, CreationMode{}))

	require.NoError(t, tree.Delete(p))
	assert.Equal(t, 0, tree.Len())
}

func TestDeleteUnknownIdReturnsUnknownReference(t *testing.T) {
	tree := NewTree(inmem.New(), 0)
	err := tree.Delete(participantID(42))
	assert.ErrorIs(t, err, ErrUnknownReference)
}
