package pruner

import (
	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
)

const (
	levelCount = 3
	leafCount  = bucketCount * bucketCount * bucketCount
)

// sortedTree is the queryable form of the pruner built by Commit. It holds
// the sorted arrays and the three levels of bucket nodes partitioning them.
type sortedTree[P comparable] struct {
	axis   int
	split  [2]int
	bounds geom.AABB

	root   BucketNode
	level1 [bucketCount]BucketNode
	level2 [bucketCount * bucketCount]BucketNode

	boxes    []CompactBox
	payloads []P
	slots    map[P]uint32
	removed  int
}

// buildScratch holds the buffers reused between builds.
type buildScratch struct {
	keys    []uint32
	ranks   []uint32
	ranksB  []uint32
	boxes   []CompactBox
	classes []uint8
}

func (s *buildScratch) grow(n int) {
	s.keys = resize(s.keys, n)
	s.ranks = resize(s.ranks, n)
	s.ranksB = resize(s.ranksB, n)
	s.boxes = resize(s.boxes, n)
	s.classes = resize(s.classes, n)
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// chooseAxes returns the sort axis and the two axes the nodes classify
// against. Only Y and Z compete for the sort axis unless anyDimension is set.
func chooseAxes(b geom.AABB, anyDimension bool) (int, [2]int) {
	ext := b.Extents()
	if anyDimension {
		axis := 0
		for i := 1; i < 3; i++ {
			if math32.Abs(ext[i]) > math32.Abs(ext[axis]) {
				axis = i
			}
		}
		return axis, splitAxes(axis)
	}

	if math32.Abs(ext[1]) > math32.Abs(ext[2]) {
		return 1, splitAxes(1)
	}
	return 2, splitAxes(2)
}

func splitAxes(sortAxis int) [2]int {
	switch sortAxis {
	case 0:
		return [2]int{1, 2}
	case 1:
		return [2]int{0, 2}
	default:
		return [2]int{0, 1}
	}
}

// buildTree rebuilds t from the core arrays. The slices of t and s are reused
// when large enough.
func buildTree[P comparable](t *sortedTree[P], s *buildScratch, boxes []geom.AABB, payloads []P, anyDimension bool) {
	n := len(boxes)

	t.bounds = geom.InvertedAABB()
	for _, b := range boxes {
		t.bounds = t.bounds.Merge(b)
	}
	t.axis, t.split = chooseAxes(t.bounds, anyDimension)
	t.removed = 0

	s.grow(n)
	t.boxes = resize(t.boxes, n)
	t.payloads = resize(t.payloads, n)

	unsorted := s.boxes
	for i, b := range boxes {
		unsorted[i] = newCompactBox(b, t.axis)
		s.keys[i] = unsorted[i].Data0
	}

	ranksA, ranksB := radixSort(s.keys, s.ranks, s.ranksB)
	boxesA, boxesB := t.boxes, unsorted
	for i, r := range ranksA {
		boxesA[i] = boxesB[r]
	}

	t.root.classify(boxesA, ranksA, boxesB, ranksB, s.classes, newSplitPlanes(t.bounds, t.split), false, 0)

	for i := range t.level1 {
		lo, hi := t.root.childRange(i)
		t.level1[i].classify(
			boxesB[lo:hi], ranksB[lo:hi],
			boxesA[lo:hi], ranksA[lo:hi],
			s.classes[lo:hi],
			newSplitPlanes(t.root.Bounds[i], t.split),
			i == crossBucket,
			lo,
		)
	}

	for i := range t.level1 {
		parent := &t.level1[i]
		for j := 0; j < bucketCount; j++ {
			lo, hi := parent.childRange(j)
			t.level2[i*bucketCount+j].classify(
				boxesA[lo:hi], ranksA[lo:hi],
				boxesB[lo:hi], ranksB[lo:hi],
				s.classes[lo:hi],
				newSplitPlanes(parent.Bounds[j], t.split),
				j == crossBucket,
				lo,
			)
		}
	}

	// The final level wrote into the scratch buffer, which becomes the sorted
	// array while the previous one becomes scratch.
	t.boxes, s.boxes = boxesB, boxesA

	if t.slots == nil {
		t.slots = make(map[P]uint32, n)
	} else {
		clear(t.slots)
	}
	for i, r := range ranksB {
		t.payloads[i] = payloads[r]
		t.slots[payloads[r]] = uint32(i)
	}
}

// radixSort returns the permutation sorting keys in ascending order along
// with a free buffer of the same size. The sort is stable. ranks and tmp must
// have the length of keys.
func radixSort(keys, ranks, tmp []uint32) ([]uint32, []uint32) {
	for i := range ranks {
		ranks[i] = uint32(i)
	}
	if len(keys) == 0 {
		return ranks, tmp
	}

	var counts [256]uint32
	for shift := 0; shift < 32; shift += 8 {
		counts = [256]uint32{}
		for _, k := range keys {
			counts[(k>>shift)&0xff]++
		}
		if counts[(keys[0]>>shift)&0xff] == uint32(len(keys)) {
			continue
		}

		var sum uint32
		for i, c := range counts {
			counts[i] = sum
			sum += c
		}
		for _, r := range ranks {
			d := (keys[r] >> shift) & 0xff
			tmp[counts[d]] = r
			counts[d]++
		}
		ranks, tmp = tmp, ranks
	}
	return ranks, tmp
}

// leaf returns the sorted array range of leaf i, i in [0, leafCount).
func (t *sortedTree[P]) leaf(i int) (uint32, uint32) {
	return t.level2[i/bucketCount].childRange(i % bucketCount)
}

func (t *sortedTree[P]) remove(payload P) {
	slot, ok := t.slots[payload]
	if !ok {
		return
	}

	// Keys are kept so that the leaf stays sorted.
	d0, d1 := t.boxes[slot].Data0, t.boxes[slot].Data1
	t.boxes[slot] = emptyCompactBox()
	t.boxes[slot].Data0 = d0
	t.boxes[slot].Data1 = d1

	var zero P
	t.payloads[slot] = zero
	delete(t.slots, payload)
	t.removed++
}

func (t *sortedTree[P]) live() int {
	return len(t.boxes) - t.removed
}
