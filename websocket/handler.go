package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a scene connection handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to join a scene. A scene is created when the request
	// does not name one.
	HandleSceneJoin(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to add objects to the joined scene.
	HandleObjectsAdd(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to move objects of the joined scene.
	HandleObjectsUpdate(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to remove objects from the joined scene.
	HandleObjectsRemove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to commit pending changes.
	HandleCommit(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleRaycast(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleSweep(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleOverlap(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to shift the origin of the joined scene.
	HandleShift(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleDebug(ctx context.Context, respond ResponseSender, msg Msg) error

	// Sends a sync clock message to the client.
	SendSyncClock(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The interval between each sync clock message sent to the connected
	// client.
	SyncClockInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the scene store.
	GetScenes() *models.SceneStore

	// The currently joined scene.
	CurrentScene() *models.Scene

	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The scene handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	syncClockTicker := time.NewTicker(h.Handler.SyncClockInterval())
	defer syncClockTicker.Stop()

	responder := responseSender{
		sendMsg:    h.sendMsg,
		trySendMsg: h.trySendMsg,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-syncClockTicker.C:
			if err := h.Handler.SendSyncClock(ctx, responder); err != nil {
				h.disconnect(errors.New("sending sync clock failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) sendMsg(msg Msg) {
	h.sendChan <- msg
}

func (h *handler) trySendMsg(msg Msg) bool {
	select {
	case h.sendChan <- msg:
		return true
	default:
		return false
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case h.receiveChan <- msg:
			}
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypePing:
		return h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeSceneJoin:
		return h.Handler.HandleSceneJoin(ctx, responder, msg)

	case MsgTypeObjectsAdd:
		return h.Handler.HandleObjectsAdd(ctx, responder, msg)

	case MsgTypeObjectsUpdate:
		return h.Handler.HandleObjectsUpdate(ctx, responder, msg)

	case MsgTypeObjectsRemove:
		return h.Handler.HandleObjectsRemove(ctx, responder, msg)

	case MsgTypeCommit:
		return h.Handler.HandleCommit(ctx, responder, msg)

	case MsgTypeRaycast:
		return h.Handler.HandleRaycast(ctx, responder, msg)

	case MsgTypeSweep:
		return h.Handler.HandleSweep(ctx, responder, msg)

	case MsgTypeOverlap:
		return h.Handler.HandleOverlap(ctx, responder, msg)

	case MsgTypeShift:
		return h.Handler.HandleShift(ctx, responder, msg)

	case MsgTypeDebug:
		return h.Handler.HandleDebug(ctx, responder, msg)

	default:
		return respondError(responder, msg, errors.New("unknown message type").
			WithType(ErrTypeUnknownMsg).
			WithTag("msg_type", msg.Type))
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	sendMsg    func(Msg)
	trySendMsg func(Msg) bool
}

func (r responseSender) SendMsg(msg Msg) {
	r.sendMsg(msg)
}

func (r responseSender) TrySendMsg(msg Msg) bool {
	return r.trySendMsg(msg)
}
