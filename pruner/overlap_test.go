package pruner

import (
	"testing"

	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestOverlap(t *testing.T) {
	p := New[int](Options{})
	payloads, boxes := gridBoxes(100)
	require.NoError(t, p.AddObjects(payloads, boxes))
	p.Commit()

	tests := []struct {
		name   string
		volume geom.Volume
		hits   []int
	}{
		{
			name:   "box",
			volume: box(1, 0, 1, 2, 1, 2),
			hits:   []int{0, 1, 10, 11},
		},
		{
			name:   "box between objects",
			volume: box(1.25, 0, 1.25, 1.75, 1, 1.75),
		},
		{
			name:   "sphere",
			volume: geom.Sphere{Center: mgl32.Vec3{4.5, 0.5, 4.5}, Radius: 0.5},
			hits:   []int{22},
		},
		{
			name: "oriented box",
			volume: geom.OrientedBox{
				Center:   mgl32.Vec3{0.5, 0.5, 0.5},
				Extents:  mgl32.Vec3{4, 0.1, 0.1},
				Rotation: mgl32.QuatRotate(-math32.Pi/4, mgl32.Vec3{0, 1, 0}),
			},
			hits: []int{0, 11},
		},
		{
			name:   "capsule",
			volume: geom.Capsule{P0: mgl32.Vec3{0.5, 0.5, 0.5}, P1: mgl32.Vec3{0.5, 0.5, 4.5}, Radius: 0.2},
			hits:   []int{0, 10, 20},
		},
		{
			name:   "outside",
			volume: geom.Sphere{Center: mgl32.Vec3{100, 100, 100}, Radius: 10},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hits := overlapAll(t, p, test.volume)
			if len(test.hits) == 0 {
				require.Empty(t, hits)
				return
			}
			require.Equal(t, test.hits, hits)
		})
	}
}

func TestOverlapStop(t *testing.T) {
	p := New[int](Options{})
	payloads, boxes := gridBoxes(100)
	require.NoError(t, p.AddObjects(payloads, boxes))
	p.Commit()
	require.NoError(t, p.AddObject(100, box(0, 0, 0, 1, 1, 1)))

	var count int
	again, err := p.Overlap(box(-100, -100, -100, 100, 100, 100), func(int) bool {
		count++
		return count < 3
	})
	require.NoError(t, err)
	require.False(t, again)
	require.Equal(t, 3, count)
}
