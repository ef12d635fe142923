package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

// dialTestServer spins up an httptest server that accepts one WS connection
// per request, registers it with hub, subscribes it to subscribeTopic (if
// non-empty), and returns a connected client *websocket.Conn.
func dialTestServer(t *testing.T, hub *Hub, subscribeTopic string) (*websocket.Conn, *Session) {
	t.Helper()
	sessionCh := make(chan *Session, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s := hub.Accept(conn)
		if subscribeTopic != "" {
			s.Subscribe(subscribeTopic)
		}
		sessionCh <- s
		s.ReadLoop(r.Context(), func([]byte) {})
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	var s *Session
	select {
	case s = <-sessionCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never registered a session")
	}
	return conn, s
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHubBroadcastLogDeliversToSubscriber(t *testing.T) {
	hub := New(nil)
	conn, _ := dialTestServer(t, hub, "task.logs.t1")

	hub.BroadcastLog(types.LogRecord{TaskID: "t1", Message: "hello", Seq: 1})

	frame := readFrame(t, conn)
	assert.Equal(t, "log", frame["type"])
	assert.Equal(t, "hello", frame["message"])
}

func TestHubBroadcastLogSkipsUnsubscribedSession(t *testing.T) {
	hub := New(nil)
	conn, _ := dialTestServer(t, hub, "task.logs.other-task")

	hub.BroadcastLog(types.LogRecord{TaskID: "t1", Message: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "unsubscribed session should receive nothing before the read times out")
}

func TestHubBroadcastEventMatchesRunScopedTopic(t *testing.T) {
	hub := New(nil)
	conn, _ := dialTestServer(t, hub, "task.events.t1.run1")

	hub.BroadcastEvent("t1", "run1", "started", map[string]string{"k": "v"})

	frame := readFrame(t, conn)
	assert.Equal(t, "event", frame["type"])
	assert.Equal(t, "started", frame["event"])
}

func TestHubBroadcastAllIgnoresSubscriptions(t *testing.T) {
	hub := New(nil)
	conn, _ := dialTestServer(t, hub, "")

	hub.BroadcastAll("dag_finished", map[string]string{"run_id": "r1"})

	frame := readFrame(t, conn)
	assert.Equal(t, "dag_finished", frame["event"])
}

func TestApplyCommandPingReturnsPong(t *testing.T) {
	reply := ApplyCommand(&Session{}, CommandFrame{Op: "ping"})
	assert.Equal(t, map[string]string{"type": "pong"}, reply)
}

func TestApplyCommandSubscribeUpdatesSessionTopics(t *testing.T) {
	hub := New(nil)
	_, s := dialTestServer(t, hub, "")

	reply := ApplyCommand(s, CommandFrame{Op: "subscribe", Topic: "task_logs", TaskID: "t1"})
	assert.Nil(t, reply)
	assert.True(t, s.subscribed("task.logs.t1"))

	ApplyCommand(s, CommandFrame{Op: "unsubscribe", Topic: "task_logs", TaskID: "t1"})
	assert.False(t, s.subscribed("task.logs.t1"))
}

func TestApplyCommandEventsTopicUsesEventPrefix(t *testing.T) {
	hub := New(nil)
	_, s := dialTestServer(t, hub, "")

	ApplyCommand(s, CommandFrame{Op: "subscribe", Topic: "task_events", TaskID: "t1", RunID: "r1"})
	assert.True(t, s.subscribed("task.events.t1.r1"))
}
