package websocket

import (
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/api"
	"github.com/aukilabs/scenequery/geom"
	"github.com/aukilabs/scenequery/models"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func unitBox(x, y, z float32) geom.AABB {
	return geom.NewAABB(mgl32.Vec3{x, y, z}, mgl32.Vec3{x + 1, y + 1, z + 1})
}

func newTestScenes(t *testing.T, opts models.SceneOptions) *models.SceneStore {
	scenes := &models.SceneStore{
		ServerID:     "ted",
		SceneOptions: opts,
	}
	t.Cleanup(scenes.Close)
	return scenes
}

func TestHandlerSendSyncClock(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(newTestScenes(t, models.SceneOptions{})))
	defer close()

	msg, err := clientA.Receive(time.Second*5, MsgTypeSyncClock, 0)
	require.NoError(t, err)

	var res syncClock
	require.NoError(t, msg.DataTo(&res))
	require.NotZero(t, res.ServerTime)
}

func TestHandlerHandlePing(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(newTestScenes(t, models.SceneOptions{})))
	defer close()

	require.NoError(t, clientA.Request(MsgTypePing, 1, nil, nil))
}

func TestHandlerUnknownMessage(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(newTestScenes(t, models.SceneOptions{})))
	defer close()

	err := clientA.Request("teleport", 1, nil, nil)
	require.True(t, errors.IsType(err, ErrTypeUnknownMsg))

	// The connection is still usable.
	require.NoError(t, clientA.Request(MsgTypePing, 2, nil, nil))
}

func TestHandlerSceneNotJoined(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(newTestScenes(t, models.SceneOptions{})))
	defer close()

	err := clientA.Request(MsgTypeRaycast, 1, api.RaycastRequest{
		Direction: mgl32.Vec3{1, 0, 0},
	}, nil)
	require.True(t, errors.IsType(err, ErrTypeSceneNotJoined))

	err = clientA.Request(MsgTypeSceneJoin, 2, sceneJoinRequest{SceneID: "tedx42"}, nil)
	require.True(t, errors.IsType(err, models.ErrTypeSceneNotFound))
}

func TestHandlerSceneQueries(t *testing.T) {
	scenes := newTestScenes(t, models.SceneOptions{FrameDuration: time.Millisecond * 10})
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(scenes))
	defer close()

	var scene api.SceneResponse
	require.NoError(t, clientA.Request(MsgTypeSceneJoin, 1, nil, &scene))
	require.Equal(t, "tedx1", scene.ID)

	var joined api.SceneResponse
	require.NoError(t, clientB.Request(MsgTypeSceneJoin, 1, sceneJoinRequest{SceneID: scene.ID}, &joined))
	require.Equal(t, scene.UUID, joined.UUID)

	var added api.ObjectsResponse
	require.NoError(t, clientA.Request(MsgTypeObjectsAdd, 2, api.ObjectsRequest{
		Objects: []models.Object{
			{Box: unitBox(0, 0, 0), Tag: "a"},
			{Box: unitBox(5, 0, 0), Tag: "b"},
			{Box: unitBox(10, 0, 0), Tag: "c"},
		},
	}, &added))
	require.Len(t, added.Objects, 3)

	var hits api.HitsResponse
	require.NoError(t, clientB.Request(MsgTypeRaycast, 2, api.RaycastRequest{
		Origin:    mgl32.Vec3{-1, 0.5, 0.5},
		Direction: mgl32.Vec3{1, 0, 0},
	}, &hits))
	require.Equal(t, []models.Hit{
		{ID: 1, Distance: 1, Tag: "a"},
		{ID: 2, Distance: 6, Tag: "b"},
		{ID: 3, Distance: 11, Tag: "c"},
	}, hits.Hits)

	hits = api.HitsResponse{}
	require.NoError(t, clientB.Request(MsgTypeSweep, 3, api.SweepRequest{
		Shape:     api.Shape{Type: api.ShapeSphere, Center: mgl32.Vec3{-3, 2, 0.5}, Radius: 1},
		Direction: mgl32.Vec3{1, 0, 0},
		Closest:   true,
	}, &hits))
	require.Len(t, hits.Hits, 1)
	require.Equal(t, float32(2), hits.Hits[0].Distance)

	var overlap api.OverlapResponse
	require.NoError(t, clientA.Request(MsgTypeOverlap, 3, api.OverlapRequest{
		Shape: api.Shape{Type: api.ShapeBox, Min: mgl32.Vec3{4, 0, 0}, Max: mgl32.Vec3{12, 1, 1}},
	}, &overlap))
	require.Equal(t, []uint32{2, 3}, overlap.IDs)

	require.NoError(t, clientA.Request(MsgTypeObjectsUpdate, 4, api.ObjectsRequest{
		Objects: []models.Object{{ID: 3, Box: unitBox(10, 10, 0)}},
	}, nil))

	var removed api.RemoveResponse
	require.NoError(t, clientA.Request(MsgTypeObjectsRemove, 5, api.RemoveRequest{IDs: []uint32{1}}, &removed))
	require.Equal(t, 1, removed.Removed)

	var commit api.CommitResponse
	require.NoError(t, clientA.Request(MsgTypeCommit, 6, nil, &commit))

	require.NoError(t, clientA.Request(MsgTypeShift, 7, api.ShiftRequest{Origin: mgl32.Vec3{5, 0, 0}}, nil))

	var debug api.DebugResponse
	require.NoError(t, clientA.Request(MsgTypeDebug, 8, nil, &debug))
	require.True(t, debug.Valid)
	require.Equal(t, 2, debug.Objects)

	err := clientA.Request(MsgTypeObjectsUpdate, 9, api.ObjectsRequest{
		Objects: []models.Object{{ID: 1, Box: unitBox(0, 0, 0)}},
	}, nil)
	require.True(t, errors.IsType(err, models.ErrTypeObjectNotFound))
}

func TestHandlerFrameNotifications(t *testing.T) {
	scenes := newTestScenes(t, models.SceneOptions{
		FrameDuration: time.Millisecond * 10,
		Pruner:        pruner.Options{DisableFreeBuffer: true},
	})
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(scenes))
	defer close()

	var scene api.SceneResponse
	require.NoError(t, clientA.Request(MsgTypeSceneJoin, 1, nil, &scene))
	require.NoError(t, clientB.Request(MsgTypeSceneJoin, 1, sceneJoinRequest{SceneID: scene.ID}, nil))

	require.NoError(t, clientA.Request(MsgTypeObjectsAdd, 2, api.ObjectsRequest{
		Objects: []models.Object{{Box: unitBox(0, 0, 0)}},
	}, nil))

	msg, err := clientB.Receive(time.Second*5, MsgTypeFrame, 0)
	require.NoError(t, err)

	var frame frameNotification
	require.NoError(t, msg.DataTo(&frame))
	require.Equal(t, scene.ID, frame.SceneID)
	require.Equal(t, 1, frame.Objects)
	require.NotZero(t, frame.Number)
}

func TestHandlerDeletedScene(t *testing.T) {
	scenes := newTestScenes(t, models.SceneOptions{})
	clientA, _, close := NewTestingEnv(t, newTestHandler(scenes))
	defer close()

	var scene api.SceneResponse
	require.NoError(t, clientA.Request(MsgTypeSceneJoin, 1, nil, &scene))

	s, err := scenes.Get(scene.ID)
	require.NoError(t, err)
	scenes.Remove(s)

	err = clientA.Request(MsgTypeCommit, 2, nil, nil)
	require.True(t, errors.IsType(err, models.ErrTypeSceneNotFound))
}

func TestHandlerSceneLifetime(t *testing.T) {
	scenes := newTestScenes(t, models.SceneOptions{})
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(scenes))
	defer close()

	var created api.SceneResponse
	require.NoError(t, clientA.Request(MsgTypeSceneJoin, 1, nil, &created))

	var joined api.SceneResponse
	require.NoError(t, clientB.Request(MsgTypeSceneJoin, 1, sceneJoinRequest{SceneID: created.ID}, &joined))
	require.Equal(t, created.UUID, joined.UUID)

	// Joining the current scene again keeps it.
	require.NoError(t, clientA.Request(MsgTypeSceneJoin, 2, sceneJoinRequest{SceneID: created.ID}, nil))

	s, err := scenes.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, 2, s.ClientCount())

	clientA.Close()
	require.Eventually(t, func() bool {
		return s.ClientCount() == 1
	}, time.Second*5, time.Millisecond*10)
	require.Equal(t, 1, scenes.Len())

	clientB.Close()
	require.Eventually(t, func() bool {
		return scenes.Len() == 0
	}, time.Second*5, time.Millisecond*10)

	_, err = scenes.Get(created.ID)
	require.True(t, errors.IsType(err, models.ErrTypeSceneNotFound))
}
