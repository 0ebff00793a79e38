package pruner

import (
	"github.com/aukilabs/scenequery/geom"
)

const (
	bucketCount = 5
	crossBucket = 4
)

// bucketTable maps a classification code to a bucket. The code bits are, from
// low to high: right of the first split, left of the first split, above the
// second split, below the second split, input run is a cross bucket.
var bucketTable = [32]uint8{
	4, 4, 4, 4,
	4, 3, 2, 4,
	4, 1, 0, 4,
	4, 4, 4, 4,
	4, 4, 4, 4,
	4, 4, 4, 4,
	4, 4, 4, 4,
	4, 4, 4, 4,
}

// BucketNode splits a contiguous run of sorted boxes into five contiguous
// sub-runs. Buckets 0 to 3 are the quadrants around the two split planes,
// bucket 4 holds the boxes that straddle a plane.
type BucketNode struct {
	Counts  [bucketCount]uint32
	Offsets [bucketCount]uint32
	Bounds  [bucketCount]geom.AABB

	// start is the index of the node run in the sorted arrays.
	start uint32
}

// Len returns the number of boxes in the node run.
func (n *BucketNode) Len() uint32 {
	var sum uint32
	for _, c := range n.Counts {
		sum += c
	}
	return sum
}

// merged returns the union of the bucket bounds.
func (n *BucketNode) merged() geom.AABB {
	bounds := geom.InvertedAABB()
	for _, b := range n.Bounds {
		bounds = bounds.Merge(b)
	}
	return bounds
}

// childRange returns the sorted array range covered by bucket b.
func (n *BucketNode) childRange(b int) (uint32, uint32) {
	start := n.start + n.Offsets[b]
	return start, start + n.Counts[b]
}

// splitPlanes holds the two axis aligned planes a node classifies against.
type splitPlanes struct {
	axes   [2]int
	values [2]float32
}

func newSplitPlanes(b geom.AABB, axes [2]int) splitPlanes {
	c := b.Center()
	return splitPlanes{
		axes:   axes,
		values: [2]float32{c[axes[0]], c[axes[1]]},
	}
}

func (s splitPlanes) bucket(c *CompactBox, cross bool) int {
	var code uint8
	if c.min(s.axes[0]) > s.values[0] {
		code |= 1
	}
	if c.max(s.axes[0]) < s.values[0] {
		code |= 2
	}
	if c.min(s.axes[1]) > s.values[1] {
		code |= 4
	}
	if c.max(s.axes[1]) < s.values[1] {
		code |= 8
	}
	if cross {
		code |= 16
	}
	return int(bucketTable[code])
}

// classify partitions src into dst by bucket. The partition is stable: boxes
// keep their relative order within a bucket, so a run sorted along the sort
// axis yields sorted sub-runs. ranks travel along with the boxes. scratch
// must be at least as long as src.
func (n *BucketNode) classify(
	src []CompactBox,
	srcRanks []uint32,
	dst []CompactBox,
	dstRanks []uint32,
	scratch []uint8,
	split splitPlanes,
	cross bool,
	start uint32,
) {
	*n = BucketNode{start: start}
	for i := range n.Bounds {
		n.Bounds[i] = geom.InvertedAABB()
	}

	for i := range src {
		b := split.bucket(&src[i], cross)
		scratch[i] = uint8(b)
		n.Counts[b]++
		n.Bounds[b] = n.Bounds[b].Merge(src[i].AABB())
	}

	var offset uint32
	for i, c := range n.Counts {
		n.Offsets[i] = offset
		offset += c
	}

	cursor := n.Offsets
	for i := range src {
		b := scratch[i]
		dst[cursor[b]] = src[i]
		dstRanks[cursor[b]] = srcRanks[i]
		cursor[b]++
	}
}
