package models

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/geom"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func unitBox(x, y, z float32) geom.AABB {
	return geom.NewAABB(mgl32.Vec3{x, y, z}, mgl32.Vec3{x + 1, y + 1, z + 1})
}

func newLineScene(t *testing.T) *Scene {
	scene := NewScene(42, SceneOptions{FrameDuration: time.Hour})
	t.Cleanup(scene.Close)

	added, err := scene.AddObjects(
		Object{Box: unitBox(0, 0, 0), Tag: "a"},
		Object{Box: unitBox(5, 0, 0), Tag: "b"},
		Object{Box: unitBox(10, 0, 0), Tag: "c"},
	)
	require.NoError(t, err)
	require.Len(t, added, 3)
	return scene
}

func TestSceneAddObjects(t *testing.T) {
	t.Run("ids are attributed", func(t *testing.T) {
		scene := newLineScene(t)

		objects := scene.Objects()
		require.Len(t, objects, 3)
		require.Equal(t, uint32(1), objects[0].ID)
		require.Equal(t, "a", objects[0].Tag)
		require.Equal(t, uint32(3), objects[2].ID)
		require.Equal(t, 3, scene.ObjectCount())
		require.NoError(t, scene.Validate())
	})

	t.Run("invalid boxes are skipped", func(t *testing.T) {
		scene := newLineScene(t)

		invalid := geom.AABB{Min: mgl32.Vec3{1, 1, 1}}
		added, err := scene.AddObjects(
			Object{Box: invalid},
			Object{Box: unitBox(20, 0, 0), Tag: "d"},
		)
		require.Error(t, err)
		require.True(t, errors.IsType(err, pruner.ErrTypeInvalidBox))
		require.Len(t, added, 1)
		require.Equal(t, "d", added[0].Tag)
		require.Equal(t, 4, scene.ObjectCount())
		require.NoError(t, scene.Validate())
	})

	t.Run("capacity", func(t *testing.T) {
		scene := NewScene(1, SceneOptions{Pruner: pruner.Options{MaxObjects: 2}})
		defer scene.Close()

		added, err := scene.AddObjects(
			Object{Box: unitBox(0, 0, 0)},
			Object{Box: unitBox(1, 0, 0)},
			Object{Box: unitBox(2, 0, 0)},
		)
		require.True(t, errors.IsType(err, pruner.ErrTypeCapacityExceeded))
		require.Len(t, added, 2)
	})
}

func TestSceneUpdateObjects(t *testing.T) {
	scene := newLineScene(t)

	err := scene.UpdateObjects(
		Object{ID: 2, Box: unitBox(5, 5, 0), Tag: "moved"},
		Object{ID: 99, Box: unitBox(0, 0, 0)},
	)
	require.True(t, errors.IsType(err, ErrTypeObjectNotFound))

	o, ok := scene.Object(2)
	require.True(t, ok)
	require.Equal(t, "moved", o.Tag)
	require.Equal(t, unitBox(5, 5, 0), o.Box)

	hits, err := scene.Raycast(mgl32.Vec3{-1, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 0, false)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, uint32(1), hits[0].ID)
	require.Equal(t, uint32(3), hits[1].ID)
	require.NoError(t, scene.Validate())
}

func TestSceneRemoveObjects(t *testing.T) {
	scene := newLineScene(t)

	require.Equal(t, 2, scene.RemoveObjects(1, 3, 99))
	require.Equal(t, 1, scene.ObjectCount())

	_, ok := scene.Object(1)
	require.False(t, ok)

	added, err := scene.AddObjects(Object{Box: unitBox(0, 0, 0)})
	require.NoError(t, err)
	require.Equal(t, uint32(1), added[0].ID)
	require.NoError(t, scene.Validate())
}

func TestSceneRaycast(t *testing.T) {
	origin := mgl32.Vec3{-1, 0.5, 0.5}
	dir := mgl32.Vec3{2, 0, 0}

	t.Run("all", func(t *testing.T) {
		scene := newLineScene(t)

		hits, err := scene.Raycast(origin, dir, 0, false)
		require.NoError(t, err)
		require.Equal(t, []Hit{
			{ID: 1, Distance: 1, Tag: "a"},
			{ID: 2, Distance: 6, Tag: "b"},
			{ID: 3, Distance: 11, Tag: "c"},
		}, hits)
	})

	t.Run("closest", func(t *testing.T) {
		scene := newLineScene(t)

		hits, err := scene.Raycast(origin, dir, 0, true)
		require.NoError(t, err)
		require.Equal(t, []Hit{{ID: 1, Distance: 1, Tag: "a"}}, hits)
	})

	t.Run("max distance", func(t *testing.T) {
		scene := newLineScene(t)

		hits, err := scene.Raycast(origin, dir, 7, false)
		require.NoError(t, err)
		require.Len(t, hits, 2)
	})

	t.Run("invalid direction", func(t *testing.T) {
		scene := newLineScene(t)

		_, err := scene.Raycast(origin, mgl32.Vec3{}, 0, false)
		require.Error(t, err)
	})

	t.Run("commits pending changes", func(t *testing.T) {
		scene := NewScene(1, SceneOptions{
			FrameDuration: time.Hour,
			Pruner:        pruner.Options{DisableFreeBuffer: true},
		})
		defer scene.Close()

		_, err := scene.AddObjects(Object{Box: unitBox(0, 0, 0)})
		require.NoError(t, err)
		require.True(t, scene.DebugInfo().Dirty)

		hits, err := scene.Raycast(origin, dir, 0, false)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, uint64(1), scene.Commits())
		require.False(t, scene.DebugInfo().Dirty)
	})
}

func TestSceneSweep(t *testing.T) {
	scene := newLineScene(t)

	sphere := geom.Sphere{Center: mgl32.Vec3{-3, 2, 0.5}, Radius: 1}
	hits, err := scene.Sweep(sphere, mgl32.Vec3{1, 0, 0}, 0, false)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, float32(2), hits[0].Distance)
	require.Equal(t, float32(12), hits[2].Distance)
}

func TestSceneOverlap(t *testing.T) {
	scene := newLineScene(t)

	volume := geom.NewAABB(mgl32.Vec3{0.5, 0, 0}, mgl32.Vec3{5.5, 1, 1})
	ids, err := scene.Overlap(volume, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, ids)

	ids, err = scene.Overlap(geom.NewAABB(mgl32.Vec3{-100, -100, -100}, mgl32.Vec3{100, 100, 100}), 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestSceneShiftOrigin(t *testing.T) {
	scene := newLineScene(t)
	scene.Commit()

	scene.ShiftOrigin(mgl32.Vec3{5, 0, 0})
	require.NoError(t, scene.Validate())

	o, ok := scene.Object(2)
	require.True(t, ok)
	require.Equal(t, unitBox(0, 0, 0), o.Box)

	hits, err := scene.Raycast(mgl32.Vec3{-1, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, 0, true)
	require.NoError(t, err)
	require.Equal(t, uint32(2), hits[0].ID)
	require.Equal(t, float32(1), hits[0].Distance)
}

func TestSceneFrames(t *testing.T) {
	t.Run("frames commit pending changes", func(t *testing.T) {
		scene := NewScene(1, SceneOptions{
			FrameDuration: time.Millisecond,
			Pruner:        pruner.Options{DisableFreeBuffer: true},
		})
		defer scene.Close()

		frames := make(chan Frame, 1)
		cancel := scene.HandleFrame(func(f Frame) {
			if f.Committed {
				select {
				case frames <- f:
				default:
				}
			}
		})
		defer cancel()

		go scene.StartDispatchFrames()

		_, err := scene.AddObjects(Object{Box: unitBox(0, 0, 0)})
		require.NoError(t, err)

		select {
		case f := <-frames:
			require.Equal(t, 1, f.Objects)
			require.NotZero(t, f.Number)
		case <-time.After(time.Second * 5):
			t.Fatal("no committed frame")
		}
		require.False(t, scene.DebugInfo().Dirty)
	})

	t.Run("frame commit disabled", func(t *testing.T) {
		scene := NewScene(1, SceneOptions{
			FrameDuration:      time.Millisecond,
			DisableFrameCommit: true,
			Pruner:             pruner.Options{DisableFreeBuffer: true},
		})
		defer scene.Close()

		_, err := scene.AddObjects(Object{Box: unitBox(0, 0, 0)})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		var count int
		var committed atomic.Bool
		cancel := scene.HandleFrame(func(f Frame) {
			if f.Committed {
				committed.Store(true)
			}
			if count < 3 {
				count++
				wg.Done()
			}
		})
		defer cancel()

		go scene.StartDispatchFrames()
		wg.Wait()
		require.False(t, committed.Load())
		require.True(t, scene.DebugInfo().Dirty)
	})
}
