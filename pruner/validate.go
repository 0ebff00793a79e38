package pruner

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Validate checks the internal invariants of the pruner and returns the first
// violation found.
func (p *Pruner[P]) Validate() error {
	if len(p.coreIndex) != len(p.coreBoxes) || len(p.corePayloads) != len(p.coreBoxes) {
		return errors.New("core arrays and index sizes differ").
			WithType(ErrTypeCorrupted).
			WithTag("boxes", len(p.coreBoxes)).
			WithTag("payloads", len(p.corePayloads)).
			WithTag("index", len(p.coreIndex))
	}
	for i, payload := range p.corePayloads {
		if j, ok := p.coreIndex[payload]; !ok || j != i {
			return errors.New("core index does not match core arrays").
				WithType(ErrTypeCorrupted).
				WithTag("payload", payload).
				WithTag("slot", i)
		}
	}

	if p.dirty && p.freeCount != 0 {
		return errors.New("dirty pruner has a non-empty free buffer").
			WithType(ErrTypeCorrupted).
			WithTag("free", p.freeCount)
	}
	if p.dirty || p.tree == nil {
		return nil
	}
	return p.tree.validate(len(p.coreBoxes))
}

func (t *sortedTree[P]) validate(live int) error {
	if t.live() != live || len(t.slots) != live {
		return errors.New("sorted arrays do not hold the core objects").
			WithType(ErrTypeCorrupted).
			WithTag("core", live).
			WithTag("sorted", t.live()).
			WithTag("slots", len(t.slots))
	}

	if err := checkNode(&t.root, 0, uint32(len(t.boxes)), 0, 0); err != nil {
		return err
	}
	for i := range t.level1 {
		lo, hi := t.root.childRange(i)
		if err := checkNode(&t.level1[i], lo, hi, 1, i); err != nil {
			return err
		}
	}
	for i := range t.level2 {
		lo, hi := t.level1[i/bucketCount].childRange(i % bucketCount)
		if err := checkNode(&t.level2[i], lo, hi, 2, i); err != nil {
			return err
		}
	}

	var total uint32
	for l := 0; l < leafCount; l++ {
		lo, hi := t.leaf(l)
		total += hi - lo

		for i := lo; i < hi; i++ {
			c := &t.boxes[i]
			if i > lo && c.Data0 < t.boxes[i-1].Data0 {
				return errors.New("leaf is not sorted").
					WithType(ErrTypeCorrupted).
					WithTag("leaf", l).
					WithTag("slot", i)
			}
			if c.IsEmpty() {
				continue
			}

			if slot, ok := t.slots[t.payloads[i]]; !ok || slot != i {
				return errors.New("slot index does not match sorted arrays").
					WithType(ErrTypeCorrupted).
					WithTag("payload", t.payloads[i]).
					WithTag("slot", i)
			}

			b := c.AABB()
			i1 := l / (bucketCount * bucketCount)
			i2 := (l / bucketCount) % bucketCount
			i3 := l % bucketCount
			if !t.root.Bounds[i1].Contains(b) ||
				!t.level1[i1].Bounds[i2].Contains(b) ||
				!t.level2[i1*bucketCount+i2].Bounds[i3].Contains(b) {
				return errors.New("box is outside of its buckets").
					WithType(ErrTypeCorrupted).
					WithTag("leaf", l).
					WithTag("slot", i)
			}
		}
	}

	if total != uint32(len(t.boxes)) {
		return errors.New("leaves do not cover the sorted arrays").
			WithType(ErrTypeCorrupted).
			WithTag("leaves", total).
			WithTag("sorted", len(t.boxes))
	}
	return nil
}

func checkNode(n *BucketNode, lo, hi uint32, level, index int) error {
	if n.start != lo || n.Len() != hi-lo {
		return errors.New("node does not cover its parent bucket").
			WithType(ErrTypeCorrupted).
			WithTag("level", level).
			WithTag("node", index).
			WithTag("start", n.start).
			WithTag("count", n.Len()).
			WithTag("expected_start", lo).
			WithTag("expected_count", hi-lo)
	}

	var offset uint32
	for i, c := range n.Counts {
		if n.Offsets[i] != offset {
			return errors.New("bucket offsets are not a prefix sum").
				WithType(ErrTypeCorrupted).
				WithTag("level", level).
				WithTag("node", index).
				WithTag("bucket", i)
		}
		offset += c
	}
	return nil
}
