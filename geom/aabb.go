package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box given by its min and max corners.
type AABB struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

// NewAABB returns the box spanning the two given corners. The corners may be
// given in any order.
func NewAABB(a, b mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])},
		Max: mgl32.Vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])},
	}
}

// NewAABBFromCenter returns the box with the given center and half-extents.
func NewAABBFromCenter(center, extents mgl32.Vec3) AABB {
	return AABB{
		Min: center.Sub(extents),
		Max: center.Add(extents),
	}
}

// InvertedAABB returns a box that contains nothing and that any merge
// replaces.
func InvertedAABB() AABB {
	return AABB{
		Min: mgl32.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: mgl32.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half-extents of the box.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// IsEmpty reports whether the box contains no point, i.e. min > max on at
// least one axis.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// IsValid reports whether the box has finite coordinates and min <= max.
func (b AABB) IsValid() bool {
	for i := 0; i < 3; i++ {
		if !isFinite(b.Min[i]) || !isFinite(b.Max[i]) || b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Merge returns the smallest box containing both boxes.
func (b AABB) Merge(o AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{math32.Min(b.Min[0], o.Min[0]), math32.Min(b.Min[1], o.Min[1]), math32.Min(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{math32.Max(b.Max[0], o.Max[0]), math32.Max(b.Max[1], o.Max[1]), math32.Max(b.Max[2], o.Max[2])},
	}
}

// Inflate grows the box by the given half-extents on each side.
func (b AABB) Inflate(extents mgl32.Vec3) AABB {
	return AABB{
		Min: b.Min.Sub(extents),
		Max: b.Max.Add(extents),
	}
}

func (b AABB) Translate(v mgl32.Vec3) AABB {
	return AABB{
		Min: b.Min.Add(v),
		Max: b.Max.Add(v),
	}
}

// Overlaps reports whether the boxes intersect. Touching boxes overlap.
func (b AABB) Overlaps(o AABB) bool {
	return b.Max[0] >= o.Min[0] && b.Min[0] <= o.Max[0] &&
		b.Max[1] >= o.Min[1] && b.Min[1] <= o.Max[1] &&
		b.Max[2] >= o.Min[2] && b.Min[2] <= o.Max[2]
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	return o.Min[0] >= b.Min[0] && o.Max[0] <= b.Max[0] &&
		o.Min[1] >= b.Min[1] && o.Max[1] <= b.Max[1] &&
		o.Min[2] >= b.Min[2] && o.Max[2] <= b.Max[2]
}

func (b AABB) ContainsPoint(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Bounds makes AABB usable as an overlap volume.
func (b AABB) Bounds() AABB {
	return b
}

func isFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
