package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/models"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Creates a testing environement to unit test handlers.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*TestClient, *TestClient, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*TestClient, *TestClient, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *TestClient {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set("X-Forwarded-for", "192.0.0.0")
		config.Header.Set(HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return &TestClient{
			Conn:    conn,
			receive: NewReceiver(conn),
			send:    NewSender(conn),
		}
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

// TestClient is a WebSocket client that exchanges JSON messages with a
// handler under test.
type TestClient struct {
	*websocket.Conn

	receive Receiver
	send    Sender
}

// Send sends a message with data encoded as JSON.
func (c *TestClient) Send(msgType string, requestID uint32, data any) error {
	msg, err := NewMsg(msgType, requestID, data)
	if err != nil {
		return err
	}

	_, err = c.send(msg)
	return err
}

// Receive returns the first received message with the given type and
// request id. Other messages are discarded.
func (c *TestClient) Receive(timeout time.Duration, msgType string, requestID uint32) (Msg, error) {
	if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Msg{}, err
	}
	defer c.SetReadDeadline(time.Time{})

	for {
		msg, _, err := c.receive()
		if err != nil {
			return Msg{}, errors.New("receiving message failed").
				WithTag("msg_type", msgType).
				WithTag("request_id", requestID).
				Wrap(err)
		}

		if msg.Type == msgType && msg.RequestID == requestID {
			return msg, nil
		}
	}
}

// Request sends a request and decodes its response into res. A received
// error message is returned as an error typed with the received type.
func (c *TestClient) Request(msgType string, requestID uint32, data any, res any) error {
	if err := c.Send(msgType, requestID, data); err != nil {
		return err
	}

	if err := c.SetReadDeadline(time.Now().Add(time.Second * 5)); err != nil {
		return err
	}
	defer c.SetReadDeadline(time.Time{})

	for {
		msg, _, err := c.receive()
		if err != nil {
			return err
		}
		if msg.RequestID != requestID {
			continue
		}

		switch msg.Type {
		case ResponseType(msgType):
			if res == nil || len(msg.Data) == 0 {
				return nil
			}
			return msg.DataTo(res)

		case MsgTypeError:
			var e errorResponse
			if err := msg.DataTo(&e); err != nil {
				return err
			}
			return errors.New(e.Error).WithType(e.Type)
		}
	}
}

func newTestHandler(scenes *models.SceneStore) func() Handler {
	return func() Handler {
		var h Handler = &SceneHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       time.Minute,
			Scenes:                  scenes,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://scenequery-test.com")
		return h
	}
}
