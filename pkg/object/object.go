// Package object implements the per-client object tree: a map from
// ObjectId to XRCEObject with the CREATE/DELETE policy of spec.md
// §4.4, delegating actual resource allocation to a middleware.Middleware.
// Grounded on pkg/od's Entry-keyed ObjectDictionary, which likewise
// keeps no internal lock and relies on its caller to serialize access
// (here, the owning session's mutex).
package object

import (
	"errors"
	"time"

	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/status"
)

// ErrAlreadyExists is returned by Create when neither reuse nor
// replace is set and the id is already present.
var ErrAlreadyExists = errors.New("object: id already exists")

// ErrUnmatched is returned when reuse is requested but the existing
// object's representation differs and replace was not also set.
var ErrUnmatched = errors.New("object: representation does not match")

// ErrUnknownReference is returned when reuse is requested for an
// absent id, or when a required parent/topic reference does not
// exist.
var ErrUnknownReference = errors.New("object: unknown reference")

func init() {
	status.Register(ErrAlreadyExists, status.ErrAlreadyExists)
	status.Register(ErrUnmatched, status.ErrUnmatched)
	status.Register(ErrUnknownReference, status.ErrUnknownReference)
}

// ObjectId is a 16-bit id: upper 12 bits an opaque numeric id, lower
// 4 bits the declared Kind.
type ObjectId uint16

// NewObjectId packs a numeric id and kind into an ObjectId.
func NewObjectId(numeric uint16, kind middleware.Kind) ObjectId {
	return ObjectId((numeric << 4) | uint16(kind&0xF))
}

func (id ObjectId) Kind() middleware.Kind { return middleware.Kind(id & 0xF) }
func (id ObjectId) Numeric() uint16       { return uint16(id) >> 4 }

// CreationMode mirrors the CREATE submessage's reuse/replace flags.
type CreationMode struct {
	Reuse   bool
	Replace bool
}

// XRCEObject is one entry of the tree.
type XRCEObject struct {
	ID        ObjectId
	Rep       middleware.Representation
	Parent    ObjectId
	HasParent bool
	TopicName string // bound topic, for DataWriter/DataReader
	Children  map[ObjectId]struct{}
}

func newObject(id ObjectId, rep middleware.Representation, parent ObjectId, hasParent bool, topicName string) *XRCEObject {
	return &XRCEObject{
		ID:        id,
		Rep:       rep,
		Parent:    parent,
		HasParent: hasParent,
		TopicName: topicName,
		Children:  make(map[ObjectId]struct{}),
	}
}

// Tree is a per-client object graph.
type Tree struct {
	mw       middleware.Middleware
	domainID uint16
	objects  map[ObjectId]*XRCEObject
}

// NewTree creates an empty object tree bound to mw. domainID is used
// for participant creation.
func NewTree(mw middleware.Middleware, domainID uint16) *Tree {
	return &Tree{mw: mw, domainID: domainID, objects: make(map[ObjectId]*XRCEObject)}
}

// Get returns the object at id, if present.
func (t *Tree) Get(id ObjectId) (*XRCEObject, bool) {
	obj, ok := t.objects[id]
	return obj, ok
}

// Len returns the number of live objects, for tests and diagnostics.
func (t *Tree) Len() int { return len(t.objects) }

// parentKindRequired reports the kind the parent of id's kind must
// have, per spec.md §4.4. ok is false for Participant, which has no
// required parent.
func parentKindRequired(kind middleware.Kind) (middleware.Kind, bool) {
	switch kind {
	case middleware.KindTopic, middleware.KindPublisher, middleware.KindSubscriber,
		middleware.KindRequester, middleware.KindReplier:
		return middleware.KindParticipant, true
	case middleware.KindDataWriter:
		return middleware.KindPublisher, true
	case middleware.KindDataReader:
		return middleware.KindSubscriber, true
	default:
		return 0, false
	}
}

// findTopicByName looks up a Topic object by name, used to bind
// DataWriter/DataReader creation.
func (t *Tree) findTopicByName(name string) (*XRCEObject, bool) {
	for _, obj := range t.objects {
		if obj.ID.Kind() == middleware.KindTopic && obj.TopicName == name {
			return obj, true
		}
	}
	return nil, false
}

func (t *Tree) validateParent(id ObjectId, parent ObjectId, hasParent bool) error {
	requiredKind, required := parentKindRequired(id.Kind())
	if !required {
		return nil
	}
	if !hasParent {
		return ErrUnknownReference
	}
	parentObj, ok := t.objects[parent]
	if !ok || parentObj.ID.Kind() != requiredKind {
		return ErrUnknownReference
	}
	return nil
}

// createInMiddleware allocates the resource for id's kind through the
// middleware, given a validated parent and (for writer/reader) topic.
func (t *Tree) createInMiddleware(id, parent ObjectId, hasParent bool, topicName string, rep middleware.Representation) error {
	numeric := uint32(id)
	var parentNumeric uint32
	if hasParent {
		parentNumeric = uint32(parent)
	}
	switch id.Kind() {
	case middleware.KindParticipant:
		return t.mw.CreateParticipant(numeric, t.domainID, rep)
	case middleware.KindTopic:
		return t.mw.CreateTopic(numeric, parentNumeric, rep)
	case middleware.KindPublisher:
		return t.mw.CreatePublisher(numeric, parentNumeric, rep)
	case middleware.KindSubscriber:
		return t.mw.CreateSubscriber(numeric, parentNumeric, rep)
	case middleware.KindDataWriter:
		return t.mw.CreateDataWriter(numeric, parentNumeric, topicName, rep)
	case middleware.KindDataReader:
		return t.mw.CreateDataReader(numeric, parentNumeric, topicName, rep)
	default:
		return t.mw.CreateParticipant(numeric, t.domainID, rep)
	}
}

// Create applies the CREATE policy of spec.md §4.4.
func (t *Tree) Create(id ObjectId, parent ObjectId, hasParent bool, topicName string, rep middleware.Representation, mode CreationMode) error {
	existing, exists := t.objects[id]

	switch {
	case !mode.Reuse && !mode.Replace:
		if exists {
			return ErrAlreadyExists
		}
	case mode.Reuse && !mode.Replace:
		if !exists {
			return ErrUnknownReference
		}
		if existing.Rep.Equal(rep) {
			return nil
		}
		return ErrUnmatched
	case mode.Replace && !mode.Reuse:
		if exists {
			if err := t.Delete(id); err != nil {
				return err
			}
		}
	case mode.Reuse && mode.Replace:
		if exists {
			if existing.Rep.Equal(rep) {
				return nil
			}
			if err := t.Delete(id); err != nil {
				return err
			}
		}
	}

	if needsTopic := id.Kind() == middleware.KindDataWriter || id.Kind() == middleware.KindDataReader; needsTopic {
		if _, ok := t.findTopicByName(topicName); !ok {
			return ErrUnknownReference
		}
	}
	if err := t.validateParent(id, parent, hasParent); err != nil {
		return err
	}
	if err := t.createInMiddleware(id, parent, hasParent, topicName, rep); err != nil {
		return err
	}

	obj := newObject(id, rep, parent, hasParent, topicName)
	t.objects[id] = obj
	if hasParent {
		if parentObj, ok := t.objects[parent]; ok {
			parentObj.Children[id] = struct{}{}
		}
	}
	return nil
}

// Write forwards data to the DataWriter at id via the middleware.
// Returns ErrUnknownReference if id is absent or not a DataWriter.
func (t *Tree) Write(id ObjectId, data []byte) error {
	obj, ok := t.objects[id]
	if !ok || obj.ID.Kind() != middleware.KindDataWriter {
		return ErrUnknownReference
	}
	return t.mw.Write(uint32(obj.ID), data)
}

// Read pulls one sample from the DataReader at id via the middleware,
// waiting up to timeout.
func (t *Tree) Read(id ObjectId, timeout time.Duration) (data []byte, ok bool, err error) {
	obj, exists := t.objects[id]
	if !exists || obj.ID.Kind() != middleware.KindDataReader {
		return nil, false, ErrUnknownReference
	}
	return t.mw.Read(uint32(obj.ID), timeout)
}

// Delete removes id and cascades to every tied child, deleting
// children before their parent so middleware teardown order is
// bottom-up. Returns ErrUnknownReference if id is absent.
func (t *Tree) Delete(id ObjectId) error {
	obj, ok := t.objects[id]
	if !ok {
		return ErrUnknownReference
	}
	if err := t.deleteCascade(obj); err != nil {
		return err
	}
	if obj.HasParent {
		if parentObj, ok := t.objects[obj.Parent]; ok {
			delete(parentObj.Children, id)
		}
	}
	return nil
}

func (t *Tree) deleteCascade(obj *XRCEObject) error {
	for childID := range obj.Children {
		if childObj, ok := t.objects[childID]; ok {
			if err := t.deleteCascade(childObj); err != nil {
				return err
			}
			delete(t.objects, childID)
		}
	}
	if err := t.mw.Delete(obj.ID.Kind(), uint32(obj.ID)); err != nil {
		return err
	}
	delete(t.objects, obj.ID)
	return nil
}
