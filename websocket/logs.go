package websocket

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	sceneMutex sync.Mutex
	sceneID    string
	sceneUUID  string
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	h.originalRequest = conn.Request()

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID())
	if h.originalRequest != nil {
		entry = entry.WithTag("http_headers", httpHeaders{
			UserAgent:     h.originalRequest.UserAgent(),
			XForwardedFor: h.originalRequest.Header.Get("X-Forwarded-For"),
		})
	}
	entry.Info("new client is connected")
}

func (h *handlerWithLogs) HandleSceneJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	if err := h.Handler.HandleSceneJoin(ctx, respond, msg); err != nil {
		return err
	}

	scene := h.CurrentScene()
	if scene == nil {
		logs.WithTag(logs.ClientIDTag, h.GetClientID()).
			WithTag("request_id", msg.RequestID).
			Info("client failed to join a scene")
		return nil
	}

	sceneID := h.GetScenes().GlobalSceneID(scene.ID)

	h.sceneMutex.Lock()
	h.sceneID = sceneID
	h.sceneUUID = scene.SceneUUID
	h.sceneMutex.Unlock()

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", sceneID).
		WithTag("scene_uuid", scene.SceneUUID).
		WithTag("request_id", msg.RequestID).
		Info("client joined a scene")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	sceneID, sceneUUID := h.scene()
	reason := ""
	if err != nil && !stderrors.Is(err, context.Canceled) {
		reason = err.Error()
	}

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", sceneID).
		WithTag("scene_uuid", sceneUUID).
		WithTag("reason", reason).
		Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		sceneID, sceneUUID := h.scene()

		if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", sceneID).
				WithTag("scene_uuid", sceneUUID).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", sceneID).
				WithTag("scene_uuid", sceneUUID).
				WithTag("msg_type", msg.TypeString()).
				WithTag("request_id", msg.RequestID).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		sceneID, sceneUUID := h.scene()

		if err != nil && !stderrors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", sceneID).
				WithTag("scene_uuid", sceneUUID).
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("scene_id", sceneID).
				WithTag("scene_uuid", sceneUUID).
				WithTag("msg_type", msgType).
				WithTag("request_id", msg.RequestID).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) scene() (id, uuid string) {
	h.sceneMutex.Lock()
	defer h.sceneMutex.Unlock()

	return h.sceneID, h.sceneUUID
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	sceneID, sceneUUID := h.scene()
	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("scene_id", sceneID).
		WithTag("scene_uuid", sceneUUID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
