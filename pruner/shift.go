package pruner

import (
	"github.com/aukilabs/scenequery/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// ShiftOrigin moves the origin of the pruner space to origin, expressed in
// the current space. Every stored box is translated by -origin and the order
// keys are encoded again. The hierarchy is kept as is.
func (p *Pruner[P]) ShiftOrigin(origin mgl32.Vec3) {
	delta := origin.Mul(-1)

	for i := 0; i < p.freeCount; i++ {
		p.free[i].box = p.free[i].box.Translate(delta)
	}
	for i := range p.coreBoxes {
		p.coreBoxes[i] = p.coreBoxes[i].Translate(delta)
	}

	if p.tree != nil {
		p.tree.shift(delta)
	}
}

func (t *sortedTree[P]) shift(delta mgl32.Vec3) {
	for l := 0; l < leafCount; l++ {
		lo, hi := t.leaf(l)
		var prev uint32
		for i := lo; i < hi; i++ {
			c := &t.boxes[i]
			if c.IsEmpty() {
				// Empty slots take the key of the previous box so the leaf
				// stays sorted.
				c.Data0 = prev
				c.Data1 = 0
				continue
			}

			c.Center = c.Center.Add(delta)
			c.encode(t.axis)

			// Translation rounding can swap boxes whose mins were within an
			// ulp of each other.
			if c.Data0 < prev {
				lowerKeys(t.boxes[lo:i], c.Data0)
			}
			prev = c.Data0
		}
	}

	t.refit()
}

// lowerKeys lowers the min keys of the sorted boxes that are above key,
// starting from the last one. Lowered keys only widen the range a leaf scan
// visits.
func lowerKeys(boxes []CompactBox, key uint32) {
	for i := len(boxes) - 1; i >= 0 && boxes[i].Data0 > key; i-- {
		boxes[i].Data0 = key
	}
}

// refit recomputes the bucket bounds from the sorted boxes.
func (t *sortedTree[P]) refit() {
	for i := range t.level2 {
		n := &t.level2[i]
		for b := 0; b < bucketCount; b++ {
			bounds := geom.InvertedAABB()
			lo, hi := n.childRange(b)
			for j := lo; j < hi; j++ {
				if !t.boxes[j].IsEmpty() {
					bounds = bounds.Merge(t.boxes[j].AABB())
				}
			}
			n.Bounds[b] = bounds
		}
	}

	for i := range t.level1 {
		for b := 0; b < bucketCount; b++ {
			t.level1[i].Bounds[b] = t.level2[i*bucketCount+b].merged()
		}
	}
	for b := 0; b < bucketCount; b++ {
		t.root.Bounds[b] = t.level1[b].merged()
	}
	t.bounds = t.root.merged()
}
