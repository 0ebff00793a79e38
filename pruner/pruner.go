package pruner

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/geom"
)

const (
	// FreeBufferSize is the number of insertions a clean pruner absorbs
	// before it needs a rebuild.
	FreeBufferSize = 16

	// DefaultReorderThreshold is the number of objects a node must hold for
	// ray traversal to visit its children nearest first.
	DefaultReorderThreshold = 32
)

// Options configures a pruner. The zero value is ready to use.
type Options struct {
	// The number of objects a node must hold before ray and sweep queries
	// visit its children sorted along the query direction. Zero means
	// DefaultReorderThreshold.
	ReorderThreshold int

	DisableReorder bool

	// Sends every insertion to the core arrays, making each add a rebuild
	// trigger.
	DisableFreeBuffer bool

	// The maximum number of objects the pruner accepts. Zero means no limit.
	MaxObjects int

	// Lets the sort axis be picked among X, Y and Z instead of Y and Z only.
	SortAxisAnyDimension bool
}

type freeEntry[P comparable] struct {
	payload P
	box     geom.AABB
}

// Pruner is a bucketed spatial index over axis aligned boxes. It answers
// raycast, sweep and overlap queries for the payloads it stores.
//
// Mutations mark the pruner as dirty unless they can be absorbed by the free
// buffer or, for removals, by emptying the removed slot. A dirty pruner must
// be committed before being queried. A pruner is not safe for concurrent use.
type Pruner[P comparable] struct {
	opts Options

	coreBoxes    []geom.AABB
	corePayloads []P
	coreIndex    map[P]int

	free      [FreeBufferSize]freeEntry[P]
	freeCount int

	dirty   bool
	tree    *sortedTree[P]
	spare   *sortedTree[P]
	scratch buildScratch
}

// New creates an empty pruner.
func New[P comparable](opts Options) *Pruner[P] {
	if opts.ReorderThreshold <= 0 {
		opts.ReorderThreshold = DefaultReorderThreshold
	}

	return &Pruner[P]{
		opts:      opts,
		coreIndex: make(map[P]int),
	}
}

// Len returns the number of objects in the pruner.
func (p *Pruner[P]) Len() int {
	return len(p.coreBoxes) + p.freeCount
}

// Dirty reports whether the pruner must be committed before being queried.
func (p *Pruner[P]) Dirty() bool {
	return p.dirty
}

// FreeLen returns the number of objects waiting in the free buffer.
func (p *Pruner[P]) FreeLen() int {
	return p.freeCount
}

// Bounds returns a box containing every object in the pruner. When the
// pruner is clean, the box may still include the bounds of objects removed
// since the last commit.
func (p *Pruner[P]) Bounds() geom.AABB {
	bounds := p.freeBounds()
	if p.tree != nil {
		return bounds.Merge(p.tree.bounds)
	}
	for _, b := range p.coreBoxes {
		bounds = bounds.Merge(b)
	}
	return bounds
}

// SortAxis returns the axis the sorted arrays are ordered along. It returns
// false when the pruner has not been built.
func (p *Pruner[P]) SortAxis() (int, bool) {
	if p.tree == nil {
		return 0, false
	}
	return p.tree.axis, true
}

// Contains reports whether payload is stored in the pruner.
func (p *Pruner[P]) Contains(payload P) bool {
	if _, ok := p.coreIndex[payload]; ok {
		return true
	}
	return p.freeIndex(payload) >= 0
}

// AddObject inserts payload with the given box. It fails when the box is not
// finite, when payload is already stored or when the pruner is full.
func (p *Pruner[P]) AddObject(payload P, box geom.AABB) error {
	if err := p.checkAdd(payload, box); err != nil {
		instrumentError(errors.Type(err))
		return err
	}

	instrumentMutation(operationAdd)

	if !p.dirty && !p.opts.DisableFreeBuffer && p.freeCount < FreeBufferSize {
		p.free[p.freeCount] = freeEntry[P]{
			payload: payload,
			box:     box,
		}
		p.freeCount++
		return nil
	}

	p.markDirty()
	p.addCore(payload, box)
	return nil
}

func (p *Pruner[P]) checkAdd(payload P, box geom.AABB) error {
	if !box.IsValid() {
		return errors.New("invalid box").
			WithType(ErrTypeInvalidBox).
			WithTag("payload", payload).
			WithTag("min", box.Min).
			WithTag("max", box.Max)
	}

	if p.Contains(payload) {
		return errors.New("payload is already added").
			WithType(ErrTypeDuplicatePayload).
			WithTag("payload", payload)
	}

	if p.opts.MaxObjects > 0 && p.Len() >= p.opts.MaxObjects {
		return errors.New("pruner is full").
			WithType(ErrTypeCapacityExceeded).
			WithTag("payload", payload).
			WithTag("max_objects", p.opts.MaxObjects)
	}
	return nil
}

// RemoveObject removes payload from the pruner. It returns false when
// payload is unknown. Removing an object from a clean pruner leaves it clean.
func (p *Pruner[P]) RemoveObject(payload P) bool {
	if i := p.freeIndex(payload); i >= 0 {
		last := p.freeCount - 1
		p.free[i] = p.free[last]
		p.free[last] = freeEntry[P]{}
		p.freeCount--
		instrumentMutation(operationRemove)
		return true
	}

	i, ok := p.coreIndex[payload]
	if !ok {
		return false
	}

	last := len(p.coreBoxes) - 1
	if i != last {
		p.coreBoxes[i] = p.coreBoxes[last]
		p.corePayloads[i] = p.corePayloads[last]
		p.coreIndex[p.corePayloads[i]] = i
	}

	var zero P
	p.corePayloads[last] = zero
	p.coreBoxes = p.coreBoxes[:last]
	p.corePayloads = p.corePayloads[:last]
	delete(p.coreIndex, payload)

	if p.tree != nil {
		p.tree.remove(payload)
	}

	instrumentMutation(operationRemove)
	return true
}

// UpdateObject moves payload to a new box. It returns false when payload is
// unknown.
func (p *Pruner[P]) UpdateObject(payload P, box geom.AABB) (bool, error) {
	if !box.IsValid() {
		instrumentError(ErrTypeInvalidBox)
		return false, errors.New("invalid box").
			WithType(ErrTypeInvalidBox).
			WithTag("payload", payload).
			WithTag("min", box.Min).
			WithTag("max", box.Max)
	}

	if !p.RemoveObject(payload) {
		return false, nil
	}

	if err := p.AddObject(payload, box); err != nil {
		return false, errors.New("re-adding updated object failed").Wrap(err)
	}

	instrumentMutation(operationUpdate)
	return true, nil
}

// AddObjects inserts payloads with their boxes. Objects that can be added are
// kept even when others fail; the returned error wraps the first failure.
func (p *Pruner[P]) AddObjects(payloads []P, boxes []geom.AABB) error {
	if len(payloads) != len(boxes) {
		return errors.New("payloads and boxes lengths differ").
			WithType(ErrTypeLengthMismatch).
			WithTag("payloads", len(payloads)).
			WithTag("boxes", len(boxes))
	}

	var first error
	var failed int
	for i, payload := range payloads {
		if err := p.AddObject(payload, boxes[i]); err != nil {
			if first == nil {
				first = err
			}
			failed++
		}
	}

	if first != nil {
		return errors.New("adding objects failed").
			WithType(errors.Type(first)).
			WithTag("failed", failed).
			WithTag("count", len(payloads)).
			Wrap(first)
	}
	return nil
}

// RemoveObjects removes payloads and returns the number of removed objects.
// Unknown payloads are ignored.
func (p *Pruner[P]) RemoveObjects(payloads []P) int {
	var removed int
	for _, payload := range payloads {
		if p.RemoveObject(payload) {
			removed++
		}
	}
	return removed
}

// UpdateObjects moves payloads to new boxes. Unknown payloads are ignored.
func (p *Pruner[P]) UpdateObjects(payloads []P, boxes []geom.AABB) error {
	if len(payloads) != len(boxes) {
		return errors.New("payloads and boxes lengths differ").
			WithType(ErrTypeLengthMismatch).
			WithTag("payloads", len(payloads)).
			WithTag("boxes", len(boxes))
	}

	var first error
	var failed int
	for i, payload := range payloads {
		if _, err := p.UpdateObject(payload, boxes[i]); err != nil {
			if first == nil {
				first = err
			}
			failed++
		}
	}

	if first != nil {
		return errors.New("updating objects failed").
			WithType(errors.Type(first)).
			WithTag("failed", failed).
			WithTag("count", len(payloads)).
			Wrap(first)
	}
	return nil
}

// Commit rebuilds the sorted arrays and the bucket hierarchy when the pruner
// is dirty. It does nothing otherwise.
func (p *Pruner[P]) Commit() {
	if !p.dirty {
		return
	}

	start := time.Now()
	p.flushFreeBuffer()

	t := p.spare
	p.spare = nil
	if t == nil {
		t = &sortedTree[P]{}
	}
	buildTree(t, &p.scratch, p.coreBoxes, p.corePayloads, p.opts.SortAxisAnyDimension)

	p.tree = t
	p.dirty = false

	duration := time.Since(start)
	instrumentCommit(duration)
	logs.WithTag("objects", len(p.coreBoxes)).
		WithTag("sort_axis", t.axis).
		WithTag("duration", duration).
		Debug("pruner committed")
}

// markDirty drops the sorted tree and moves the free buffer into the core
// arrays.
func (p *Pruner[P]) markDirty() {
	p.flushFreeBuffer()
	if p.tree != nil {
		p.spare = p.tree
		p.tree = nil
	}
	p.dirty = true
}

func (p *Pruner[P]) flushFreeBuffer() {
	for i := 0; i < p.freeCount; i++ {
		p.addCore(p.free[i].payload, p.free[i].box)
		p.free[i] = freeEntry[P]{}
	}
	p.freeCount = 0
}

func (p *Pruner[P]) addCore(payload P, box geom.AABB) {
	p.coreIndex[payload] = len(p.coreBoxes)
	p.coreBoxes = append(p.coreBoxes, box)
	p.corePayloads = append(p.corePayloads, payload)
}

func (p *Pruner[P]) freeIndex(payload P) int {
	for i := 0; i < p.freeCount; i++ {
		if p.free[i].payload == payload {
			return i
		}
	}
	return -1
}

func (p *Pruner[P]) freeBounds() geom.AABB {
	bounds := geom.InvertedAABB()
	for i := 0; i < p.freeCount; i++ {
		bounds = bounds.Merge(p.free[i].box)
	}
	return bounds
}

// readTree returns the tree queries run against. The tree is nil when the
// pruner has never been built.
func (p *Pruner[P]) readTree() (*sortedTree[P], error) {
	if p.dirty {
		instrumentError(ErrTypeDirty)
		return nil, errors.New("pruner has uncommitted changes").
			WithType(ErrTypeDirty).
			WithTag("objects", p.Len())
	}
	return p.tree, nil
}
