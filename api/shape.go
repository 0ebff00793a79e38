package api

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ShapeBox     = "box"
	ShapeSphere  = "sphere"
	ShapeOBB     = "obb"
	ShapeCapsule = "capsule"
)

// Shape is a query volume as found in requests. Which fields are read depends
// on Type:
//   - box: Min, Max
//   - sphere: Center, Radius
//   - obb: Center, Extents, Rotation (x, y, z, w; identity when zero)
//   - capsule: P0, P1, Radius
type Shape struct {
	Type     string     `json:"type"`
	Min      mgl32.Vec3 `json:"min,omitempty"`
	Max      mgl32.Vec3 `json:"max,omitempty"`
	Center   mgl32.Vec3 `json:"center,omitempty"`
	Extents  mgl32.Vec3 `json:"extents,omitempty"`
	Rotation [4]float32 `json:"rotation,omitempty"`
	P0       mgl32.Vec3 `json:"p0,omitempty"`
	P1       mgl32.Vec3 `json:"p1,omitempty"`
	Radius   float32    `json:"radius,omitempty"`
}

// Volume converts the shape into a geom.Volume.
func (s Shape) Volume() (geom.Volume, error) {
	switch s.Type {
	case ShapeBox:
		b := geom.AABB{Min: s.Min, Max: s.Max}
		if !b.IsValid() {
			return nil, invalidShape(s, "invalid box")
		}
		return b, nil

	case ShapeSphere:
		if !validRadius(s.Radius) || !validVec(s.Center) {
			return nil, invalidShape(s, "invalid sphere")
		}
		return geom.Sphere{Center: s.Center, Radius: s.Radius}, nil

	case ShapeOBB:
		if !validVec(s.Center) || !validVec(s.Extents) {
			return nil, invalidShape(s, "invalid oriented box")
		}
		for i := 0; i < 3; i++ {
			if s.Extents[i] < 0 {
				return nil, invalidShape(s, "negative oriented box extents")
			}
		}

		q := mgl32.Quat{
			W: s.Rotation[3],
			V: mgl32.Vec3{s.Rotation[0], s.Rotation[1], s.Rotation[2]},
		}
		if q.Len() == 0 {
			q = mgl32.QuatIdent()
		}
		return geom.OrientedBox{
			Center:   s.Center,
			Extents:  s.Extents,
			Rotation: q.Normalize(),
		}, nil

	case ShapeCapsule:
		if !validRadius(s.Radius) || !validVec(s.P0) || !validVec(s.P1) {
			return nil, invalidShape(s, "invalid capsule")
		}
		return geom.Capsule{P0: s.P0, P1: s.P1, Radius: s.Radius}, nil

	default:
		return nil, invalidShape(s, "unknown shape type")
	}
}

func invalidShape(s Shape, msg string) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidRequest).
		WithTag("shape_type", s.Type)
}

func validRadius(r float32) bool {
	return r >= 0 && !math32.IsInf(r, 0) && !math32.IsNaN(r)
}

func validVec(v mgl32.Vec3) bool {
	for _, f := range v {
		if math32.IsInf(f, 0) || math32.IsNaN(f) {
			return false
		}
	}
	return true
}
