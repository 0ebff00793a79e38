package pruner

import (
	"github.com/aukilabs/scenequery/geom"
)

// DebugInfo describes the state of a pruner.
type DebugInfo struct {
	Objects      int       `json:"objects"`
	FreeObjects  int       `json:"free_objects"`
	Sorted       int       `json:"sorted"`
	Removed      int       `json:"removed"`
	Dirty        bool      `json:"dirty"`
	Built        bool      `json:"built"`
	SortAxis     int       `json:"sort_axis"`
	Bounds       geom.AABB `json:"bounds"`
	RootCounts   []uint32  `json:"root_counts,omitempty"`
	Level1Counts []uint32  `json:"level1_counts,omitempty"`

	// LeafCounts holds the number of sorted slots of each of the 125 leaves,
	// ordered by root bucket, then child bucket, then leaf bucket.
	LeafCounts []uint32 `json:"leaf_counts,omitempty"`
}

func (p *Pruner[P]) DebugInfo() DebugInfo {
	info := DebugInfo{
		Objects:     p.Len(),
		FreeObjects: p.freeCount,
		Dirty:       p.dirty,
		Bounds:      p.Bounds(),
	}

	t := p.tree
	if t == nil {
		return info
	}

	info.Built = true
	info.Sorted = len(t.boxes)
	info.Removed = t.removed
	info.SortAxis = t.axis
	info.RootCounts = append(info.RootCounts, t.root.Counts[:]...)
	for i := range t.level1 {
		info.Level1Counts = append(info.Level1Counts, t.level1[i].Counts[:]...)
	}

	info.LeafCounts = make([]uint32, leafCount)
	for l := range info.LeafCounts {
		lo, hi := t.leaf(l)
		info.LeafCounts[l] = hi - lo
	}
	return info
}
