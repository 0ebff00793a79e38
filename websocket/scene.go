package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/api"
	"github.com/aukilabs/scenequery/featureflag"
	"github.com/aukilabs/scenequery/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnknownMsg     = "unknown-msg"
	ErrTypeSceneNotJoined = "scene-not-joined"

	// HeaderClientID is the request header that identifies a client. A random
	// id is used when it is missing.
	HeaderClientID = "X-Client-ID"
)

// SceneHandler serves the operations of one scene over a WebSocket
// connection. A client joins a scene before querying it and is then notified
// of every frame where the scene committed changes.
type SceneHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server scenes.
	Scenes *models.SceneStore

	FeatureFlags featureflag.FeatureFlag

	conn         *websocket.Conn
	clientID     string
	mutex        sync.Mutex
	currentScene *models.Scene
	sceneID      string

	stopFrameHandling func()
}

func (h *SceneHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	if req := conn.Request(); req != nil {
		h.clientID = req.Header.Get(HeaderClientID)
	}
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *SceneHandler) HandleDisconnect(_ error) {
	h.leaveScene()
}

func (h *SceneHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	return respondTo(respond, msg, nil)
}

type sceneJoinRequest struct {
	SceneID string `json:"scene_id,omitempty"`
}

func (h *SceneHandler) HandleSceneJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req sceneJoinRequest
	if len(msg.Data) != 0 {
		if err := msg.DataTo(&req); err != nil {
			return respondError(respond, msg, invalidRequest(err))
		}
	}

	var scene *models.Scene
	if req.SceneID == "" {
		scene = h.Scenes.CreateForClient()
		req.SceneID = h.Scenes.GlobalSceneID(scene.ID)
	} else {
		s, err := h.Scenes.Get(req.SceneID)
		if err != nil {
			return respondError(respond, msg, err)
		}
		scene = s
		scene.AddClient()
	}

	// The new scene is counted before leaving the current one so that
	// joining the same scene again does not remove it.
	h.leaveScene()

	h.mutex.Lock()
	h.currentScene = scene
	h.sceneID = req.SceneID
	if !h.FeatureFlags.IsSet(featureflag.FlagDisableCommitBroadcast) {
		h.stopFrameHandling = scene.HandleFrame(func(f models.Frame) {
			h.notifyFrame(respond, f)
		})
	}
	h.mutex.Unlock()

	return respondTo(respond, msg, api.NewSceneResponse(req.SceneID, scene, false))
}

type frameNotification struct {
	SceneID string `json:"scene_id"`
	Number  uint64 `json:"number"`
	Objects int    `json:"objects"`
}

func (h *SceneHandler) notifyFrame(respond ResponseSender, f models.Frame) {
	if !f.Committed {
		return
	}

	h.mutex.Lock()
	sceneID := h.sceneID
	h.mutex.Unlock()

	msg, err := NewMsg(MsgTypeFrame, 0, frameNotification{
		SceneID: sceneID,
		Number:  f.Number,
		Objects: f.Objects,
	})
	if err != nil {
		logs.WithTag(logs.ClientIDTag, h.clientID).Debug(err)
		return
	}

	if !respond.TrySendMsg(msg) {
		logs.WithTag(logs.ClientIDTag, h.clientID).
			WithTag("scene_id", sceneID).
			WithTag("frame", f.Number).
			Debug("frame notification dropped")
	}
}

func (h *SceneHandler) HandleObjectsAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.ObjectsRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return req.Add(s)
	})
}

func (h *SceneHandler) HandleObjectsUpdate(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.ObjectsRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return nil, req.Update(s)
	})
}

func (h *SceneHandler) HandleObjectsRemove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.RemoveRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return req.Remove(s), nil
	})
}

func (h *SceneHandler) HandleCommit(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		return api.Commit(s), nil
	})
}

func (h *SceneHandler) HandleRaycast(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.RaycastRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return req.Raycast(s)
	})
}

func (h *SceneHandler) HandleSweep(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.SweepRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return req.Sweep(s)
	})
}

func (h *SceneHandler) HandleOverlap(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.OverlapRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return req.Overlap(s)
	})
}

func (h *SceneHandler) HandleShift(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		var req api.ShiftRequest
		if err := msg.DataTo(&req); err != nil {
			return nil, invalidRequest(err)
		}
		return nil, req.Shift(s)
	})
}

func (h *SceneHandler) HandleDebug(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.handle(respond, msg, func(s *models.Scene) (any, error) {
		return api.Debug(s), nil
	})
}

// handle runs fn on the joined scene and answers msg with its result. Request
// errors are sent to the client and do not end the connection.
func (h *SceneHandler) handle(respond ResponseSender, msg Msg, fn func(*models.Scene) (any, error)) error {
	scene, err := h.joinedScene()
	if err != nil {
		return respondError(respond, msg, err)
	}

	res, err := fn(scene)
	if err != nil {
		return respondErrorWithResult(respond, msg, err, res)
	}
	return respondTo(respond, msg, res)
}

// joinedScene returns the joined scene while it is still in the store.
func (h *SceneHandler) joinedScene() (*models.Scene, error) {
	h.mutex.Lock()
	scene := h.currentScene
	sceneID := h.sceneID
	h.mutex.Unlock()

	if scene == nil {
		return nil, errors.New("no scene joined").
			WithType(ErrTypeSceneNotJoined)
	}

	s, err := h.Scenes.Get(sceneID)
	if err != nil {
		return nil, err
	}
	if s != scene {
		return nil, errors.New("joined scene was deleted").
			WithType(models.ErrTypeSceneNotFound).
			WithTag("scene_id", sceneID)
	}
	return scene, nil
}

type syncClock struct {
	ServerTime time.Time `json:"server_time"`
}

func (h *SceneHandler) SendSyncClock(ctx context.Context, respond ResponseSender) error {
	msg, err := NewMsg(MsgTypeSyncClock, 0, syncClock{ServerTime: time.Now()})
	if err != nil {
		return err
	}

	respond.SendMsg(msg)
	return nil
}

func (h *SceneHandler) Receiver() Receiver {
	return NewReceiver(h.conn)
}

func (h *SceneHandler) Sender() Sender {
	return NewSender(h.conn)
}

func (h *SceneHandler) Close() {
	h.leaveScene()
}

func (h *SceneHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *SceneHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *SceneHandler) GetScenes() *models.SceneStore {
	return h.Scenes
}

func (h *SceneHandler) CurrentScene() *models.Scene {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.currentScene
}

func (h *SceneHandler) GetClientID() string {
	return h.clientID
}

func (h *SceneHandler) leaveScene() {
	h.mutex.Lock()
	stop := h.stopFrameHandling
	scene := h.currentScene
	h.stopFrameHandling = nil
	h.currentScene = nil
	h.sceneID = ""
	h.mutex.Unlock()

	if stop != nil {
		stop()
	}
	if scene != nil {
		h.Scenes.Leave(scene)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`

	// The partial result of requests that failed after changing the scene,
	// such as the objects added before an invalid one.
	Result any `json:"result,omitempty"`
}

func respondTo(respond ResponseSender, req Msg, data any) error {
	msg, err := NewMsg(ResponseType(req.Type), req.RequestID, data)
	if err != nil {
		return err
	}

	respond.SendMsg(msg)
	return nil
}

func respondError(respond ResponseSender, req Msg, err error) error {
	return respondErrorWithResult(respond, req, err, nil)
}

func respondErrorWithResult(respond ResponseSender, req Msg, err error, result any) error {
	msg, merr := NewMsg(MsgTypeError, req.RequestID, errorResponse{
		Error:  err.Error(),
		Type:   errors.Type(err),
		Result: result,
	})
	if merr != nil {
		return merr
	}

	respond.SendMsg(msg)
	return nil
}

func invalidRequest(err error) error {
	return errors.New("invalid request").
		WithType(api.ErrTypeInvalidRequest).
		Wrap(err)
}
