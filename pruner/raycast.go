package pruner

import (
	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// clipSlack grows the distance a ray is clipped to when no explicit limit is
// given, so boxes touching the far side of the bounds are still reached.
const clipSlack = 1e-4

// RayHit is a candidate reported by a raycast or a sweep. Distance is the
// entry distance along the query direction to the payload box, inflated by
// the swept volume extents for sweeps.
type RayHit[P comparable] struct {
	Payload  P
	Distance float32
}

// RayFunc receives the hits of a raycast or a sweep along with the current
// distance budget. It returns the new budget, which only shrinks the query
// when smaller than the current one, and whether the query goes on.
type RayFunc[P comparable] func(hit RayHit[P], maxDist float32) (float32, bool)

// Raycast reports the objects whose box is hit by the ray starting at origin
// along the normalized direction dir, within *maxDist. A nil or infinite
// maxDist is clipped to the bounds of the pruner. The final budget is written
// back to *maxDist when maxDist is not nil. It returns false when fn stopped
// the query.
func (p *Pruner[P]) Raycast(origin, dir mgl32.Vec3, maxDist *float32, fn RayFunc[P]) (bool, error) {
	return p.cast(queryRaycast, geom.NewRay(origin, dir), mgl32.Vec3{}, maxDist, fn)
}

// Sweep reports the objects whose box is hit by the bounds of volume moved
// along the normalized direction dir, within *maxDist. It follows the
// Raycast contract.
func (p *Pruner[P]) Sweep(volume geom.Volume, dir mgl32.Vec3, maxDist *float32, fn RayFunc[P]) (bool, error) {
	bounds := volume.Bounds()
	return p.cast(querySweep, geom.NewRay(bounds.Center(), dir), bounds.Extents(), maxDist, fn)
}

func (p *Pruner[P]) cast(query string, ray geom.Ray, inflate mgl32.Vec3, maxDist *float32, fn RayFunc[P]) (bool, error) {
	t, err := p.readTree()
	if err != nil {
		return true, err
	}

	budget := math32.Inf(1)
	if maxDist != nil {
		budget = *maxDist
	}

	q := rayQuery[P]{
		ray:       ray,
		inflate:   inflate,
		maxDist:   budget,
		fn:        fn,
		reorder:   !p.opts.DisableReorder,
		threshold: uint32(p.opts.ReorderThreshold),
	}

	again := q.run(p, t)
	if maxDist != nil {
		*maxDist = q.maxDist
	}
	instrumentQuery(query, q.hits)
	return again, nil
}

type rayQuery[P comparable] struct {
	ray     geom.Ray
	inflate mgl32.Vec3
	maxDist float32
	fn      RayFunc[P]
	hits    int

	axis   int
	keyMin uint32
	keyMax uint32

	reorder   bool
	threshold uint32
}

func (q *rayQuery[P]) run(p *Pruner[P], t *sortedTree[P]) bool {
	hasTree := t != nil && len(t.boxes) != 0
	if p.freeCount == 0 && !hasTree {
		return true
	}

	if math32.IsInf(q.maxDist, 1) || q.maxDist >= math32.MaxFloat32 {
		bounds := p.freeBounds()
		if hasTree {
			bounds = bounds.Merge(t.bounds)
		}
		exit, ok := q.ray.ExitDistance(bounds.Inflate(q.inflate))
		if !ok {
			return true
		}
		q.maxDist = exit + clipSlack*(1+exit)
	}

	for i := 0; i < p.freeCount; i++ {
		dist, ok := q.test(p.free[i].box)
		if !ok {
			continue
		}
		if !q.report(p.free[i].payload, dist) {
			return false
		}
	}

	if !hasTree {
		return true
	}
	if _, ok := q.test(t.bounds); !ok {
		return true
	}

	q.axis = t.axis
	q.updateKeys()
	return q.descend(t, &t.root, 0, 0)
}

func (q *rayQuery[P]) test(b geom.AABB) (float32, bool) {
	return q.ray.IntersectBox(b.Inflate(q.inflate), q.maxDist)
}

// updateKeys encodes the interval the ray covers along the sort axis within
// the current budget.
func (q *rayQuery[P]) updateKeys() {
	o := q.ray.Origin[q.axis]
	e := o + q.ray.Dir[q.axis]*q.maxDist
	lo := math32.Min(o, e) - q.inflate[q.axis]
	hi := math32.Max(o, e) + q.inflate[q.axis]
	q.keyMin = EncodeFloat(lo)
	q.keyMax = EncodeFloat(hi)
}

func (q *rayQuery[P]) report(payload P, dist float32) bool {
	q.hits++
	budget, again := q.fn(RayHit[P]{Payload: payload, Distance: dist}, q.maxDist)
	if budget < q.maxDist {
		q.maxDist = budget
		q.updateKeys()
	}
	return again
}

func (q *rayQuery[P]) descend(t *sortedTree[P], n *BucketNode, level, index int) bool {
	order := [bucketCount]int{0, 1, 2, 3, 4}
	if q.reorder && n.Len() >= q.threshold {
		sortBuckets(&order, n, q.ray.Dir)
	}

	for _, b := range order {
		if n.Counts[b] == 0 {
			continue
		}
		if _, ok := q.test(n.Bounds[b]); !ok {
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

// scanLeaf tests the boxes of a leaf. Leaf boxes are sorted by their min
// along the sort axis, so the scan stops at the first box starting past the
// ray interval.
func (q *rayQuery[P]) scanLeaf(t *sortedTree[P], lo, hi uint32) bool {
	for i := lo; i < hi; i++ {
		c := &t.boxes[i]
		if c.Data1 < q.keyMin {
			continue
		}
		if c.Data0 > q.keyMax {
			break
		}
		if c.IsEmpty() {
			continue
		}

		dist, ok := q.test(c.AABB())
		if !ok {
			continue
		}
		if !q.report(t.payloads[i], dist) {
			return false
		}
	}
	return true
}

// sortBuckets orders the buckets of n by ascending projection of their
// center on dir.
func sortBuckets(order *[bucketCount]int, n *BucketNode, dir mgl32.Vec3) {
	var keys [bucketCount]float32
	for i := range keys {
		keys[i] = dir.Dot(n.Bounds[i].Center())
	}

	for i := 1; i < bucketCount; i++ {
		for j := i; j > 0 && keys[order[j]] < keys[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}
