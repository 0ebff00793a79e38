package pruner

import (
	"testing"

	"github.com/aukilabs/scenequery/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func box(x0, y0, z0, x1, y1, z1 float32) geom.AABB {
	return geom.AABB{
		Min: mgl32.Vec3{x0, y0, z0},
		Max: mgl32.Vec3{x1, y1, z1},
	}
}

func TestSplitPlanesBucket(t *testing.T) {
	split := splitPlanes{
		axes:   [2]int{0, 1},
		values: [2]float32{0, 0},
	}

	tests := []struct {
		name   string
		box    geom.AABB
		cross  bool
		bucket int
	}{
		{
			name:   "left below",
			box:    box(-2, -2, 0, -1, -1, 1),
			bucket: 0,
		},
		{
			name:   "right below",
			box:    box(1, -2, 0, 2, -1, 1),
			bucket: 1,
		},
		{
			name:   "left above",
			box:    box(-2, 1, 0, -1, 2, 1),
			bucket: 2,
		},
		{
			name:   "right above",
			box:    box(1, 1, 0, 2, 2, 1),
			bucket: 3,
		},
		{
			name:   "straddles first plane",
			box:    box(-1, 1, 0, 1, 2, 1),
			bucket: 4,
		},
		{
			name:   "straddles second plane",
			box:    box(1, -1, 0, 2, 1, 1),
			bucket: 4,
		},
		{
			name:   "touches first plane",
			box:    box(-1, 1, 0, 0, 2, 1),
			bucket: 4,
		},
		{
			name:   "flat on second plane",
			box:    box(1, 0, 0, 2, 0, 1),
			bucket: 4,
		},
		{
			name:   "cross input",
			box:    box(1, 1, 0, 2, 2, 1),
			cross:  true,
			bucket: 4,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newCompactBox(test.box, 2)
			require.Equal(t, test.bucket, split.bucket(&c, test.cross))
		})
	}
}

func TestBucketNodeClassify(t *testing.T) {
	boxes := []geom.AABB{
		box(1, 1, 0, 2, 2, 1),     // 3
		box(-2, -2, 0, -1, -1, 1), // 0
		box(-1, -1, 0, 1, 1, 1),   // 4
		box(1, 1, 1, 3, 3, 2),     // 3
		box(-3, -3, 2, -2, -2, 3), // 0
		box(1, -3, 0, 2, -2, 1),   // 1
	}

	src := make([]CompactBox, len(boxes))
	srcRanks := make([]uint32, len(boxes))
	for i, b := range boxes {
		src[i] = newCompactBox(b, 2)
		srcRanks[i] = uint32(i)
	}
	dst := make([]CompactBox, len(boxes))
	dstRanks := make([]uint32, len(boxes))
	scratch := make([]uint8, len(boxes))

	var n BucketNode
	n.classify(src, srcRanks, dst, dstRanks, scratch, splitPlanes{axes: [2]int{0, 1}}, false, 10)

	require.Equal(t, [5]uint32{2, 1, 0, 2, 1}, n.Counts)
	require.Equal(t, [5]uint32{0, 2, 3, 3, 5}, n.Offsets)
	require.Equal(t, uint32(6), n.Len())
	require.Equal(t, []uint32{1, 4, 5, 0, 3, 2}, dstRanks)

	require.Equal(t, box(-3, -3, 0, -1, -1, 3), n.Bounds[0])
	require.True(t, n.Bounds[2].IsEmpty())
	require.Equal(t, box(1, 1, 0, 3, 3, 2), n.Bounds[3])

	lo, hi := n.childRange(3)
	require.Equal(t, uint32(13), lo)
	require.Equal(t, uint32(15), hi)

	for i := range dst {
		require.Equal(t, boxes[dstRanks[i]], dst[i].AABB())
	}
}

func TestRadixSort(t *testing.T) {
	keys := []uint32{
		EncodeFloat(3),
		EncodeFloat(-1),
		EncodeFloat(3),
		EncodeFloat(0),
		EncodeFloat(-7.5),
		EncodeFloat(1e9),
		EncodeFloat(-1),
	}

	ranks, spare := radixSort(keys, make([]uint32, len(keys)), make([]uint32, len(keys)))
	require.Equal(t, []uint32{4, 1, 6, 3, 0, 2, 5}, ranks)
	require.Len(t, spare, len(keys))

	ranks, _ = radixSort(nil, nil, nil)
	require.Empty(t, ranks)
}

func TestChooseAxes(t *testing.T) {
	axis, split := chooseAxes(box(0, 0, 0, 100, 5, 1), false)
	require.Equal(t, 1, axis)
	require.Equal(t, [2]int{0, 2}, split)

	axis, split = chooseAxes(box(0, 0, 0, 100, 1, 5), false)
	require.Equal(t, 2, axis)
	require.Equal(t, [2]int{0, 1}, split)

	axis, split = chooseAxes(box(0, 0, 0, 100, 1, 5), true)
	require.Equal(t, 0, axis)
	require.Equal(t, [2]int{1, 2}, split)
}
