package pruner

import (
	"github.com/aukilabs/scenequery/geom"
)

// OverlapFunc receives the payloads whose box overlaps the query volume. It
// returns whether the query goes on.
type OverlapFunc[P comparable] func(payload P) bool

// Overlap reports the objects whose box overlaps volume. It returns false
// when fn stopped the query.
func (p *Pruner[P]) Overlap(volume geom.Volume, fn OverlapFunc[P]) (bool, error) {
	t, err := p.readTree()
	if err != nil {
		return true, err
	}

	q := overlapQuery[P]{
		volume: volume,
		fn:     fn,
	}

	again := q.run(p, t)
	instrumentQuery(queryOverlap, q.hits)
	return again, nil
}

type overlapQuery[P comparable] struct {
	volume geom.Volume
	fn     OverlapFunc[P]
	hits   int
}

func (q *overlapQuery[P]) run(p *Pruner[P], t *sortedTree[P]) bool {
	for i := 0; i < p.freeCount; i++ {
		if !q.volume.Overlaps(p.free[i].box) {
			continue
		}
		if !q.report(p.free[i].payload) {
			return false
		}
	}

	if t == nil || len(t.boxes) == 0 || !q.volume.Overlaps(t.bounds) {
		return true
	}
	return q.descend(t, &t.root, 0, 0)
}

func (q *overlapQuery[P]) report(payload P) bool {
	q.hits++
	return q.fn(payload)
}

func (q *overlapQuery[P]) descend(t *sortedTree[P], n *BucketNode, level, index int) bool {
	for b := 0; b < bucketCount; b++ {
		if n.Counts[b] == 0 || !q.volume.Overlaps(n.Bounds[b]) {
			continue
		}

		var again bool
		switch level {
		case 0:
			again = q.descend(t, &t.level1[b], 1, b)
		case 1:
			child := index*bucketCount + b
			again = q.descend(t, &t.level2[child], 2, child)
		default:
			lo, hi := n.childRange(b)
			again = q.scanLeaf(t, lo, hi)
		}
		if !again {
			return false
		}
	}
	return true
}

func (q *overlapQuery[P]) scanLeaf(t *sortedTree[P], lo, hi uint32) bool {
	for i := lo; i < hi; i++ {
		c := &t.boxes[i]
		if c.IsEmpty() || !q.volume.Overlaps(c.AABB()) {
			continue
		}
		if !q.report(t.payloads[i]) {
			return false
		}
	}
	return true
}
