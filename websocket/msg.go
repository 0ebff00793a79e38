package websocket

import (
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMsgDecode = "msg-decode"
	ErrTypeMsgEncode = "msg-encode"
)

const (
	MsgTypePing           = "ping"
	MsgTypeSyncClock      = "sync_clock"
	MsgTypeError          = "error"
	MsgTypeFrame          = "frame"
	MsgTypeSceneJoin      = "scene_join"
	MsgTypeObjectsAdd     = "objects_add"
	MsgTypeObjectsUpdate  = "objects_update"
	MsgTypeObjectsRemove  = "objects_remove"
	MsgTypeCommit         = "commit"
	MsgTypeRaycast        = "raycast"
	MsgTypeSweep          = "sweep"
	MsgTypeOverlap        = "overlap"
	MsgTypeShift          = "shift"
	MsgTypeDebug          = "debug"
	responseMsgTypeSuffix = "_response"
)

// Msg is a JSON frame exchanged with clients. Responses carry the type of
// their request suffixed with "_response" and the same request id.
type Msg struct {
	Type      string          `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Time      time.Time       `json:"time,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMsg creates a message with data encoded as JSON.
func NewMsg(msgType string, requestID uint32, data any) (Msg, error) {
	msg := Msg{
		Type:      msgType,
		RequestID: requestID,
		Time:      time.Now(),
	}

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Msg{}, errors.New("encoding message data failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", msgType).
				Wrap(err)
		}
		msg.Data = b
	}
	return msg, nil
}

// DataTo decodes the message data into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data").
			WithType(ErrTypeMsgDecode).
			WithTag("msg_type", m.Type)
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeMsgDecode).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

var knownMsgTypes = map[string]struct{}{
	MsgTypePing:          {},
	MsgTypeSyncClock:     {},
	MsgTypeError:         {},
	MsgTypeFrame:         {},
	MsgTypeSceneJoin:     {},
	MsgTypeObjectsAdd:    {},
	MsgTypeObjectsUpdate: {},
	MsgTypeObjectsRemove: {},
	MsgTypeCommit:        {},
	MsgTypeRaycast:       {},
	MsgTypeSweep:         {},
	MsgTypeOverlap:       {},
	MsgTypeShift:         {},
	MsgTypeDebug:         {},
}

// TypeString returns the message type for logs and metric labels. Types sent
// by clients that the server does not know are reported as "unknown".
func (m Msg) TypeString() string {
	t := strings.TrimSuffix(m.Type, responseMsgTypeSuffix)
	if _, ok := knownMsgTypes[t]; !ok {
		return "unknown"
	}
	return m.Type
}

func ResponseType(msgType string) string {
	return msgType + responseMsgTypeSuffix
}

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to the client of a connection.
type ResponseSender interface {
	// Queues msg and blocks while the send queue is full.
	SendMsg(msg Msg)

	// Queues msg unless the send queue is full. It reports whether msg was
	// queued.
	TrySendMsg(msg Msg) bool
}

// NewReceiver returns a receiver that reads JSON frames from conn.
func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecode).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

// NewSender returns a sender that writes messages to conn as JSON text
// frames.
func NewSender(conn *websocket.Conn) Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}
