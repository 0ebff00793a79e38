package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/models"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&SceneHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&SceneHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test-1")
	h.incCounter("test-1")
	h.incCounter("test-2")

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	clientIDTag := fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID)
	require.Contains(t, logString, `"test-1":2`)
	require.Contains(t, logString, `"test-2":1`)
	require.Contains(t, logString, clientIDTag)
	t.Log(b.String())
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&SceneHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// This is to avoid the test block since no summary is sent if no counter is
	// incremented.
	h.incCounter("test-1")

	wg.Wait()

	mutex.Lock()
	out := b.String()
	mutex.Unlock()

	require.NotEmpty(t, out)
	t.Log(out)
}

type recordSender struct {
	mutex sync.Mutex
	msgs  []Msg
}

func (s *recordSender) SendMsg(msg Msg) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordSender) TrySendMsg(msg Msg) bool {
	s.SendMsg(msg)
	return true
}

func TestHandlerWithLogsSceneTags(t *testing.T) {
	scenes := models.SceneStore{ServerID: "logs"}
	defer scenes.Close()

	h := HandlerWithLogs(&SceneHandler{
		clientID: "test-client",
		Scenes:   &scenes,
	}, time.Minute).(*handlerWithLogs)
	defer h.Close()

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})

	var respond recordSender
	err := h.HandleSceneJoin(context.Background(), &respond, Msg{
		Type:      MsgTypeSceneJoin,
		RequestID: 1,
	})
	require.NoError(t, err)
	require.Len(t, respond.msgs, 1)
	require.Equal(t, ResponseType(MsgTypeSceneJoin), respond.msgs[0].Type)

	sceneID, sceneUUID := h.scene()
	require.Equal(t, "logsx1", sceneID)
	require.NotEmpty(t, sceneUUID)

	h.incCounter(MsgTypeRaycast)
	h.logSummary()

	mutex.Lock()
	out := b.String()
	mutex.Unlock()
	require.Contains(t, out, `"scene_id":"logsx1"`)
	require.Contains(t, out, `"raycast":1`)
}
