package models

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/geom"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

const (
	ErrTypeSceneNotFound  = "scene-not-found"
	ErrTypeObjectNotFound = "object-not-found"
)

// Object is a box stored in a scene.
type Object struct {
	ID  uint32    `json:"id"`
	Box geom.AABB `json:"box"`
	Tag string    `json:"tag,omitempty"`
}

// Hit is an object reported by a raycast or a sweep.
type Hit struct {
	ID       uint32  `json:"id"`
	Distance float32 `json:"distance"`
	Tag      string  `json:"tag,omitempty"`
}

// Frame describes a scene frame to frame handlers.
type Frame struct {
	Number    uint64
	Committed bool
	Objects   int
}

type SceneOptions struct {
	FrameDuration time.Duration

	// Stops frames from committing pending changes. Changes are then only
	// committed by queries and explicit commits.
	DisableFrameCommit bool

	Pruner pruner.Options
}

// Scene is a set of objects indexed by a pruner. It is safe for concurrent
// use: every access to the pruner is serialized and pending changes are
// committed before queries run.
type Scene struct {
	ID        uint32
	SceneUUID string
	CreatedAt time.Time

	opts SceneOptions

	mutex     sync.Mutex
	pruner    *pruner.Pruner[uint32]
	objectIDs SequentialIDGenerator
	objects   map[uint32]Object
	commits   uint64

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameCount      uint64
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func(Frame)
	frameMutex      sync.RWMutex

	clientMutex     sync.Mutex
	clients         int
	removeWhenEmpty bool

	closeOnce sync.Once
}

func NewScene(id uint32, opts SceneOptions) *Scene {
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = time.Millisecond * 15
	}

	return &Scene{
		ID:             id,
		SceneUUID:      uuid.New().String(),
		CreatedAt:      time.Now(),
		opts:           opts,
		pruner:         pruner.New[uint32](opts.Pruner),
		objects:        make(map[uint32]Object),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(opts.FrameDuration),
		frameHandlers:  make(map[uint32]func(Frame)),
	}
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}

		s.mutex.Lock()
		instrumentObjectGauge(-float64(len(s.objects)))
		s.mutex.Unlock()
	})
}

// AddClient registers a client using the scene.
func (s *Scene) AddClient() {
	s.clientMutex.Lock()
	defer s.clientMutex.Unlock()

	s.clients++
}

// RemoveClient unregisters a client and returns the number of clients left.
func (s *Scene) RemoveClient() int {
	s.clientMutex.Lock()
	defer s.clientMutex.Unlock()

	if s.clients > 0 {
		s.clients--
	}
	return s.clients
}

func (s *Scene) ClientCount() int {
	s.clientMutex.Lock()
	defer s.clientMutex.Unlock()

	return s.clients
}

// AddObjects stores the given objects with new ids. Their ID field is
// ignored. Objects that can be added are kept even when others fail; the
// returned error wraps the first failure.
func (s *Scene) AddObjects(objects ...Object) ([]Object, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	added := make([]Object, 0, len(objects))
	var first error

	for _, o := range objects {
		o.ID = s.objectIDs.New()
		if err := s.pruner.AddObject(o.ID, o.Box); err != nil {
			s.objectIDs.Reuse(o.ID)
			if first == nil {
				first = err
			}
			continue
		}

		s.objects[o.ID] = o
		added = append(added, o)
	}

	instrumentObjectGauge(float64(len(added)))
	if first != nil {
		return added, errors.New("adding objects failed").
			WithType(errors.Type(first)).
			WithTag("scene_id", s.ID).
			WithTag("added", len(added)).
			WithTag("count", len(objects)).
			Wrap(first)
	}
	return added, nil
}

// UpdateObjects moves objects to new boxes and replaces their tags. Unknown
// objects are reported by the returned error while the others are updated.
func (s *Scene) UpdateObjects(objects ...Object) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var first error
	for _, o := range objects {
		if _, ok := s.objects[o.ID]; !ok {
			if first == nil {
				first = errors.New("object not found").
					WithType(ErrTypeObjectNotFound).
					WithTag("scene_id", s.ID).
					WithTag("object_id", o.ID)
			}
			continue
		}

		if _, err := s.pruner.UpdateObject(o.ID, o.Box); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		s.objects[o.ID] = o
	}
	return first
}

// RemoveObjects removes the given objects and returns how many were
// removed. Unknown ids are ignored.
func (s *Scene) RemoveObjects(ids ...uint32) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var removed int
	for _, id := range ids {
		if !s.pruner.RemoveObject(id) {
			continue
		}

		delete(s.objects, id)
		s.objectIDs.Reuse(id)
		removed++
	}

	instrumentObjectGauge(-float64(removed))
	return removed
}

func (s *Scene) Object(id uint32) (Object, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	o, ok := s.objects[id]
	return o, ok
}

// Objects returns the objects of the scene ordered by id.
func (s *Scene) Objects() []Object {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	objects := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		objects = append(objects, o)
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].ID < objects[j].ID
	})
	return objects
}

func (s *Scene) ObjectCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.objects)
}

// Commit rebuilds the pruner when it has pending changes. It reports whether
// a rebuild happened.
func (s *Scene) Commit() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.commit()
}

func (s *Scene) commit() bool {
	if !s.pruner.Dirty() {
		return false
	}

	s.pruner.Commit()
	s.commits++
	return true
}

// Commits returns the number of pruner rebuilds.
func (s *Scene) Commits() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.commits
}

// Raycast returns the objects hit by the ray ordered by distance. A zero or
// negative maxDist means no limit. When closest is set, only the closest hit
// is returned.
func (s *Scene) Raycast(origin, dir mgl32.Vec3, maxDist float32, closest bool) ([]Hit, error) {
	dir, err := normalize(dir)
	if err != nil {
		return nil, err
	}

	return s.cast(maxDist, closest, func(budget *float32, fn pruner.RayFunc[uint32]) error {
		_, err := s.pruner.Raycast(origin, dir, budget, fn)
		return err
	})
}

// Sweep returns the objects hit by the bounds of volume moved along dir,
// ordered by distance. It follows the Raycast conventions.
func (s *Scene) Sweep(volume geom.Volume, dir mgl32.Vec3, maxDist float32, closest bool) ([]Hit, error) {
	dir, err := normalize(dir)
	if err != nil {
		return nil, err
	}

	return s.cast(maxDist, closest, func(budget *float32, fn pruner.RayFunc[uint32]) error {
		_, err := s.pruner.Sweep(volume, dir, budget, fn)
		return err
	})
}

func (s *Scene) cast(maxDist float32, closest bool, query func(*float32, pruner.RayFunc[uint32]) error) ([]Hit, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.commit()

	if maxDist <= 0 {
		maxDist = math32.Inf(1)
	}

	var hits []Hit
	err := query(&maxDist, func(hit pruner.RayHit[uint32], budget float32) (float32, bool) {
		h := Hit{
			ID:       hit.Payload,
			Distance: hit.Distance,
			Tag:      s.objects[hit.Payload].Tag,
		}

		if !closest {
			hits = append(hits, h)
			return budget, true
		}

		if len(hits) == 0 {
			hits = append(hits, h)
		} else if h.Distance < hits[0].Distance {
			hits[0] = h
		}
		return h.Distance, true
	})
	if err != nil {
		return nil, errors.New("querying scene failed").
			WithTag("scene_id", s.ID).
			Wrap(err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	return hits, nil
}

// Overlap returns the ids of the objects overlapping volume, in ascending
// order. A positive limit caps the number of returned ids.
func (s *Scene) Overlap(volume geom.Volume, limit int) ([]uint32, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.commit()

	var ids []uint32
	_, err := s.pruner.Overlap(volume, func(id uint32) bool {
		ids = append(ids, id)
		return limit <= 0 || len(ids) < limit
	})
	if err != nil {
		return nil, errors.New("querying scene failed").
			WithTag("scene_id", s.ID).
			Wrap(err)
	}

	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids, nil
}

// ShiftOrigin moves the scene origin to the given position. Every object box
// is expressed relative to the new origin afterwards.
func (s *Scene) ShiftOrigin(origin mgl32.Vec3) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pruner.ShiftOrigin(origin)
	for id, o := range s.objects {
		o.Box = o.Box.Translate(origin.Mul(-1))
		s.objects[id] = o
	}
}

func (s *Scene) DebugInfo() pruner.DebugInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.pruner.DebugInfo()
}

func (s *Scene) Validate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.pruner.Len() != len(s.objects) {
		return errors.New("scene objects and pruner differ").
			WithType(pruner.ErrTypeCorrupted).
			WithTag("scene_id", s.ID).
			WithTag("objects", len(s.objects)).
			WithTag("pruner_objects", s.pruner.Len())
	}
	return s.pruner.Validate()
}

// HandleFrame registers a handler called at every frame, after pending
// changes were committed. The returned function unregisters it.
func (s *Scene) HandleFrame(h func(Frame)) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs the frame loop until the scene is closed.
func (s *Scene) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.dispatchFrame()
			}
		}
	})
}

func (s *Scene) dispatchFrame() {
	s.mutex.Lock()
	var committed bool
	if !s.opts.DisableFrameCommit {
		committed = s.commit()
	}
	s.frameCount++
	frame := Frame{
		Number:    s.frameCount,
		Committed: committed,
		Objects:   len(s.objects),
	}
	s.mutex.Unlock()

	if committed {
		logs.WithTag("scene_id", s.ID).
			WithTag("frame", frame.Number).
			WithTag("objects", frame.Objects).
			Debug("scene committed")
	}

	s.frameMutex.RLock()
	defer s.frameMutex.RUnlock()

	for _, h := range s.frameHandlers {
		h(frame)
	}
}

func normalize(dir mgl32.Vec3) (mgl32.Vec3, error) {
	l := dir.Len()
	if l == 0 || math32.IsNaN(l) || math32.IsInf(l, 0) {
		return dir, errors.New("invalid direction").
			WithType(pruner.ErrTypeInvalidBox).
			WithTag("direction", dir)
	}
	return dir.Mul(1 / l), nil
}
