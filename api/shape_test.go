package api

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/geom"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestShapeVolume(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		want  geom.Volume
		fails bool
	}{
		{
			name: "box",
			json: `{"type":"box","min":[0,0,0],"max":[1,2,3]}`,
			want: geom.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 2, 3}},
		},
		{
			name:  "inverted box",
			json:  `{"type":"box","min":[1,0,0],"max":[0,2,3]}`,
			fails: true,
		},
		{
			name: "sphere",
			json: `{"type":"sphere","center":[1,2,3],"radius":4}`,
			want: geom.Sphere{Center: mgl32.Vec3{1, 2, 3}, Radius: 4},
		},
		{
			name:  "negative radius",
			json:  `{"type":"sphere","center":[1,2,3],"radius":-1}`,
			fails: true,
		},
		{
			name: "obb without rotation",
			json: `{"type":"obb","center":[1,2,3],"extents":[1,1,1]}`,
			want: geom.OrientedBox{
				Center:   mgl32.Vec3{1, 2, 3},
				Extents:  mgl32.Vec3{1, 1, 1},
				Rotation: mgl32.QuatIdent(),
			},
		},
		{
			name: "obb",
			json: `{"type":"obb","center":[0,0,0],"extents":[1,1,1],"rotation":[0,0,0,2]}`,
			want: geom.OrientedBox{
				Extents:  mgl32.Vec3{1, 1, 1},
				Rotation: mgl32.QuatIdent(),
			},
		},
		{
			name:  "negative extents",
			json:  `{"type":"obb","center":[0,0,0],"extents":[1,-1,1]}`,
			fails: true,
		},
		{
			name: "capsule",
			json: `{"type":"capsule","p0":[0,0,0],"p1":[0,5,0],"radius":0.5}`,
			want: geom.Capsule{P1: mgl32.Vec3{0, 5, 0}, Radius: 0.5},
		},
		{
			name:  "unknown",
			json:  `{"type":"cone"}`,
			fails: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var s Shape
			require.NoError(t, json.Unmarshal([]byte(test.json), &s))

			v, err := s.Volume()
			if test.fails {
				require.Error(t, err)
				require.True(t, errors.IsType(err, ErrTypeInvalidRequest))
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, v)
		})
	}
}

func TestShapeVolumeNaN(t *testing.T) {
	s := Shape{
		Type:   ShapeSphere,
		Center: mgl32.Vec3{math32.NaN(), 0, 0},
		Radius: 1,
	}
	_, err := s.Volume()
	require.True(t, errors.IsType(err, ErrTypeInvalidRequest))
}
