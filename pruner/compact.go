package pruner

import (
	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CompactBox is the center/extents form of a box stored in the sorted
// arrays. Data0 and Data1 hold the order keys of the box min and max along
// the sort axis.
type CompactBox struct {
	Center  mgl32.Vec3
	Extents mgl32.Vec3
	Data0   uint32
	Data1   uint32
}

func newCompactBox(b geom.AABB, axis int) CompactBox {
	c := CompactBox{
		Center:  b.Center(),
		Extents: b.Extents(),
	}
	c.encode(axis)
	return c
}

// emptyCompactBox returns a box that no query can match: its extents are
// negative so its min lies above its max on every axis.
func emptyCompactBox() CompactBox {
	return CompactBox{
		Extents: mgl32.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

func (c CompactBox) IsEmpty() bool {
	return c.Extents[0] < 0
}

func (c CompactBox) AABB() geom.AABB {
	return geom.NewAABBFromCenter(c.Center, c.Extents)
}

func (c CompactBox) min(axis int) float32 {
	return c.Center[axis] - c.Extents[axis]
}

func (c CompactBox) max(axis int) float32 {
	return c.Center[axis] + c.Extents[axis]
}

func (c *CompactBox) encode(axis int) {
	c.Data0 = EncodeFloat(c.min(axis))
	c.Data1 = EncodeFloat(c.max(axis))
}
