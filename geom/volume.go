package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Volume is a query shape placed in world space. Overlaps is the exact (or
// conservative) shape-vs-box predicate used to prune candidate boxes; Bounds
// returns the world box of the shape.
type Volume interface {
	Overlaps(b AABB) bool
	Bounds() AABB
}

type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s Sphere) Overlaps(b AABB) bool {
	if b.IsEmpty() {
		return false
	}

	var d2 float32
	for i := 0; i < 3; i++ {
		v := s.Center[i]
		if v < b.Min[i] {
			d2 += (b.Min[i] - v) * (b.Min[i] - v)
		} else if v > b.Max[i] {
			d2 += (v - b.Max[i]) * (v - b.Max[i])
		}
	}
	return d2 <= s.Radius*s.Radius
}

func (s Sphere) Bounds() AABB {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return NewAABBFromCenter(s.Center, r)
}

// OrientedBox is a box with half-extents Extents rotated by Rotation around
// Center.
type OrientedBox struct {
	Center   mgl32.Vec3
	Extents  mgl32.Vec3
	Rotation mgl32.Quat
}

func (o OrientedBox) axes() [3]mgl32.Vec3 {
	q := o.Rotation
	if q.W == 0 && q.V.Len() == 0 {
		q = mgl32.QuatIdent()
	}
	return [3]mgl32.Vec3{
		q.Rotate(mgl32.Vec3{1, 0, 0}),
		q.Rotate(mgl32.Vec3{0, 1, 0}),
		q.Rotate(mgl32.Vec3{0, 0, 1}),
	}
}

// Overlaps runs the 15 axis separating test between the oriented box and the
// axis-aligned box.
func (o OrientedBox) Overlaps(b AABB) bool {
	if b.IsEmpty() {
		return false
	}

	const epsilon = 1e-6

	axes := o.axes()
	ea := b.Extents()
	eb := o.Extents
	t := o.Center.Sub(b.Center())

	// r[i][j] expresses obb axis j in the aabb frame.
	var r, absR [3][3]float32
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = axes[j][i]
			absR[i][j] = math32.Abs(r[i][j]) + epsilon
		}
	}

	for i := 0; i < 3; i++ {
		ra := ea[i]
		rb := eb[0]*absR[i][0] + eb[1]*absR[i][1] + eb[2]*absR[i][2]
		if math32.Abs(t[i]) > ra+rb {
			return false
		}
	}

	for j := 0; j < 3; j++ {
		ra := ea[0]*absR[0][j] + ea[1]*absR[1][j] + ea[2]*absR[2][j]
		rb := eb[j]
		d := t[0]*r[0][j] + t[1]*r[1][j] + t[2]*r[2][j]
		if math32.Abs(d) > ra+rb {
			return false
		}
	}

	for i := 0; i < 3; i++ {
		i1, i2 := (i+1)%3, (i+2)%3
		for j := 0; j < 3; j++ {
			j1, j2 := (j+1)%3, (j+2)%3
			ra := ea[i1]*absR[i2][j] + ea[i2]*absR[i1][j]
			rb := eb[j1]*absR[i][j2] + eb[j2]*absR[i][j1]
			d := t[i2]*r[i1][j] - t[i1]*r[i2][j]
			if math32.Abs(d) > ra+rb {
				return false
			}
		}
	}
	return true
}

func (o OrientedBox) Bounds() AABB {
	axes := o.axes()
	var ext mgl32.Vec3
	for i := 0; i < 3; i++ {
		ext[i] = math32.Abs(axes[0][i])*o.Extents[0] +
			math32.Abs(axes[1][i])*o.Extents[1] +
			math32.Abs(axes[2][i])*o.Extents[2]
	}
	return NewAABBFromCenter(o.Center, ext)
}

// Capsule is the set of points within Radius of the segment P0-P1.
type Capsule struct {
	P0     mgl32.Vec3
	P1     mgl32.Vec3
	Radius float32
}

// Overlaps tests the segment against the box grown by the radius. It is
// conservative near the box edges and corners, where the grown box is larger
// than the true Minkowski sum.
func (c Capsule) Overlaps(b AABB) bool {
	if b.IsEmpty() {
		return false
	}

	grown := b.Inflate(mgl32.Vec3{c.Radius, c.Radius, c.Radius})
	d := c.P1.Sub(c.P0)
	length := d.Len()
	if length == 0 {
		return grown.ContainsPoint(c.P0)
	}

	_, ok := NewRay(c.P0, d.Mul(1/length)).IntersectBox(grown, length)
	return ok
}

func (c Capsule) Bounds() AABB {
	r := mgl32.Vec3{c.Radius, c.Radius, c.Radius}
	return NewAABB(c.P0, c.P1).Inflate(r)
}
