package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// parallelEpsilon is the direction component below which a ray is treated as
// parallel to a slab.
const parallelEpsilon = 1e-9

// Ray is a half line starting at Origin. Dir is expected to be normalized so
// that distances are expressed in world units.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
}

func NewRay(origin, dir mgl32.Vec3) Ray {
	return Ray{
		Origin: origin,
		Dir:    dir,
	}
}

// IntersectBox runs a slab test of the ray against the box, limited to
// [0, maxDist]. It returns the entry distance, which is 0 when the origin is
// inside the box.
func (r Ray) IntersectBox(b AABB, maxDist float32) (float32, bool) {
	tMin, _, ok := r.slabs(b, maxDist)
	if !ok {
		return -1, false
	}
	return tMin, true
}

// ExitDistance returns the distance at which the ray leaves the box. It
// returns false when the ray never touches the box.
func (r Ray) ExitDistance(b AABB) (float32, bool) {
	_, tMax, ok := r.slabs(b, math32.MaxFloat32)
	return tMax, ok
}

func (r Ray) slabs(b AABB, maxDist float32) (float32, float32, bool) {
	if b.IsEmpty() {
		return 0, 0, false
	}

	tMin := float32(0)
	tMax := maxDist
	for a := 0; a < 3; a++ {
		if math32.Abs(r.Dir[a]) < parallelEpsilon {
			if r.Origin[a] < b.Min[a] || r.Origin[a] > b.Max[a] {
				return 0, 0, false
			}
			continue
		}

		inv := 1 / r.Dir[a]
		t1 := (b.Min[a] - r.Origin[a]) * inv
		t2 := (b.Max[a] - r.Origin[a]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		tMin = math32.Max(tMin, t1)
		tMax = math32.Min(tMax, t2)
		if tMin > tMax {
			return 0, 0, false
		}
	}
	return tMin, tMax, true
}
