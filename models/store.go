package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// SceneStore holds the scenes served by the current server.
type SceneStore struct {
	// The id attributed to the current server. Defaults to "sq".
	ServerID string

	// The options given to the scenes created with Create.
	SceneOptions SceneOptions

	initOnce sync.Once
	mutex    sync.RWMutex
	scenes   map[string]*Scene
	ids      SequentialIDGenerator
}

func (s *SceneStore) init() {
	s.scenes = map[string]*Scene{}

	if s.ServerID == "" {
		s.ServerID = "sq"
	}
}

func (s *SceneStore) NewID() uint32 {
	return s.ids.New()
}

// Create creates a scene, adds it to the store and starts its frame loop.
func (s *SceneStore) Create() *Scene {
	return s.create(false)
}

// CreateForClient creates a scene joined by the calling client. The scene is
// removed once its last client leaves.
func (s *SceneStore) CreateForClient() *Scene {
	scene := s.create(true)
	scene.AddClient()
	return scene
}

func (s *SceneStore) create(removeWhenEmpty bool) *Scene {
	s.initOnce.Do(s.init)

	scene := NewScene(s.NewID(), s.SceneOptions)
	scene.removeWhenEmpty = removeWhenEmpty
	s.Add(scene)
	go scene.StartDispatchFrames()
	return scene
}

// Leave unregisters a client from the scene. Scenes created with
// CreateForClient are removed when no client is left.
func (s *SceneStore) Leave(scene *Scene) {
	if scene.RemoveClient() == 0 && scene.removeWhenEmpty {
		s.Remove(scene)
	}
}

func (s *SceneStore) Add(scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.scenes[s.GlobalSceneID(scene.ID)] = scene

	instrumentIncreaseSceneGauge()
	instrumentCountScene()
}

// Remove closes the scene and removes it from the store.
func (s *SceneStore) Remove(scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.GlobalSceneID(scene.ID)
	if existing, ok := s.scenes[id]; !ok || existing != scene {
		return
	}

	delete(s.scenes, id)
	scene.Close()
	s.ids.Reuse(scene.ID)

	instrumentDecreaseSceneGauge()
}

func (s *SceneStore) GetByGlobalID(v string) (*Scene, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scene, ok := s.scenes[v]
	return scene, ok
}

// Get returns the scene with the given global id or an error typed
// ErrTypeSceneNotFound.
func (s *SceneStore) Get(v string) (*Scene, error) {
	scene, ok := s.GetByGlobalID(v)
	if !ok {
		return nil, errors.New("scene not found").
			WithType(ErrTypeSceneNotFound).
			WithTag("scene_id", v)
	}
	return scene, nil
}

// Scenes returns the global ids of the stored scenes in ascending order.
func (s *SceneStore) Scenes() []string {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.scenes))
	for id := range s.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *SceneStore) Len() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.scenes)
}

// Close removes every scene.
func (s *SceneStore) Close() {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, scene := range s.scenes {
		delete(s.scenes, id)
		scene.Close()
		s.ids.Reuse(scene.ID)
		instrumentDecreaseSceneGauge()
	}
}

func (s *SceneStore) GlobalSceneID(sceneID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, sceneID)
}
