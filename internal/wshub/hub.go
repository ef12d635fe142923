package wshub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/types"
)

// Hub fans log records and events out to every subscribed Session. It holds
// its session set behind one mutex, held only for the duration of
// iteration (spec §5); dead sessions are pruned on walk.
type Hub struct {
	log logger.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// New builds an empty Hub.
func New(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Default
	}
	return &Hub{log: log, sessions: make(map[*Session]struct{})}
}

// Accept upgrades conn into a tracked Session and returns it. The caller is
// expected to drive Session.ReadLoop.
func (h *Hub) Accept(conn *websocket.Conn) *Session {
	s := newSession(conn, h.log)
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Remove stops tracking a session (called once its read loop exits).
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// logTopics returns the log-record topics a record fans out to: the
// task-scoped topic, plus a run-scoped topic when RunID is present.
func logTopics(rec types.LogRecord) []string {
	topics := []string{"task.logs." + rec.TaskID}
	if rec.RunID != "" {
		topics = append(topics, fmt.Sprintf("task.logs.%s.%s", rec.TaskID, rec.RunID))
	}
	return topics
}

func eventTopics(taskID, runID string) []string {
	topics := []string{"task.events." + taskID}
	if runID != "" {
		topics = append(topics, fmt.Sprintf("task.events.%s.%s", taskID, runID))
	}
	return topics
}

// logFrame mirrors the WS log-push schema from spec §6.
type logFrame struct {
	Type       string            `json:"type"`
	TaskID     string            `json:"task_id"`
	RunID      string            `json:"run_id,omitempty"`
	Seq        uint64            `json:"seq"`
	TsMs       int64             `json:"ts_ms"`
	Level      int               `json:"level"`
	Stream     int               `json:"stream"`
	Message    string            `json:"message"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Attempt    int               `json:"attempt,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// eventFrame mirrors the WS event-push schema from spec §6.
type eventFrame struct {
	Type   string            `json:"type"`
	TaskID string            `json:"task_id"`
	RunID  string            `json:"run_id,omitempty"`
	Event  string            `json:"event"`
	TsMs   int64             `json:"ts_ms"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// BroadcastLog implements tasklog.Streamer: pushes rec to every session
// subscribed to its task/run topics.
func (h *Hub) BroadcastLog(rec types.LogRecord) {
	frame := logFrame{
		Type:       "log",
		TaskID:     rec.TaskID,
		RunID:      rec.RunID,
		Seq:        rec.Seq,
		TsMs:       rec.Timestamp.UnixMilli(),
		Level:      int(rec.Level),
		Stream:     int(rec.Stream),
		Message:    rec.Message,
		DurationMs: rec.DurationMs,
		Attempt:    rec.Attempt,
		Fields:     rec.Fields,
	}
	h.broadcast(logTopics(rec), frame)
}

// BroadcastEvent implements tasklog.Streamer: pushes an event to every
// session subscribed to its task/run event topics.
func (h *Hub) BroadcastEvent(taskID, runID, event string, extra map[string]string) {
	frame := eventFrame{
		Type:   "event",
		TaskID: taskID,
		RunID:  runID,
		Event:  event,
		TsMs:   time.Now().UnixMilli(),
		Extra:  extra,
	}
	h.broadcast(eventTopics(taskID, runID), frame)
}

// broadcastFrame is the no-subscription envelope for task lifecycle
// changes ("Broadcast envelopes (no subscription) carry {event, data}").
type broadcastFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// BroadcastAll pushes {event, data} to every tracked session regardless of
// subscription, used for unscoped lifecycle notifications.
func (h *Hub) BroadcastAll(event string, data any) {
	frame := broadcastFrame{Event: event, Data: data}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if s.isClosed() {
			delete(h.sessions, s)
			continue
		}
		s.sendJSON(frame)
	}
}

func (h *Hub) broadcast(topics []string, frame any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if s.isClosed() {
			delete(h.sessions, s)
			continue
		}
		for _, topic := range topics {
			if s.subscribed(topic) {
				s.sendJSON(frame)
				break
			}
		}
	}
}

// AuthFrame/CommandFrame describe the client->server control protocol from
// spec §6.
type AuthFrame struct {
	Token string `json:"token"`
}

type CommandFrame struct {
	Op     string `json:"op"`
	Topic  string `json:"topic"`
	TaskID string `json:"task_id"`
	RunID  string `json:"run_id,omitempty"`
}

// ApplyCommand mutates s's subscription set per cmd and returns the reply
// frame to send, if any (ping -> pong; subscribe/unsubscribe -> nil).
func ApplyCommand(s *Session, cmd CommandFrame) any {
	switch cmd.Op {
	case "ping":
		return map[string]string{"type": "pong"}
	case "subscribe":
		s.Subscribe(topicName(cmd))
		return nil
	case "unsubscribe":
		s.Unsubscribe(topicName(cmd))
		return nil
	default:
		return nil
	}
}

func topicName(cmd CommandFrame) string {
	prefix := "task.logs."
	if cmd.Topic == "task_events" {
		prefix = "task.events."
	}
	topic := prefix + cmd.TaskID
	if cmd.RunID != "" {
		topic += "." + cmd.RunID
	}
	return topic
}

// AcceptAndServe upgrades r into a WS connection, completes the
// {"token":...}/{"type":"authed"} handshake (verified by authenticate), and
// serves the session's read loop until the connection closes.
func (h *Hub) AcceptAndServe(ctx context.Context, conn *websocket.Conn, authenticate func(token string) bool) {
	defer conn.CloseNow()

	var first AuthFrame
	if err := readJSON(ctx, conn, &first); err != nil || !authenticate(first.Token) {
		_ = conn.Close(websocket.StatusPolicyViolation, "unauthenticated")
		return
	}

	s := h.Accept(conn)
	defer h.Remove(s)
	writeJSON(ctx, conn, map[string]string{"type": "authed"})

	s.ReadLoop(ctx, func(raw []byte) {
		var cmd CommandFrame
		if err := unmarshalCommand(raw, &cmd); err != nil {
			return
		}
		if reply := ApplyCommand(s, cmd); reply != nil {
			s.sendJSON(reply)
		}
	})
}
