// Package wshub implements the WebSocket hub and session (C14): per-session
// topic subscriptions, a serialized outbound queue with backpressure, and
// hub-wide fan-out with dead-session pruning.
package wshub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taskhub/taskhub/internal/logger"
)

// kMaxPendingMessages bounds a session's outbound queue; once exceeded the
// session is closed with reason "backpressure" (spec §4.9).
const kMaxPendingMessages = 512

// Session is one authenticated WebSocket connection. Writes are serialized
// through outbox so concurrent broadcasters never race on the underlying
// stream.
type Session struct {
	conn *websocket.Conn
	log  logger.Logger

	mu     sync.Mutex
	topics map[string]bool
	closed bool

	outbox    chan []byte
	stopWrite chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, log logger.Logger) *Session {
	s := &Session{
		conn:   conn,
		log:    log,
		topics:    make(map[string]bool),
		outbox:    make(chan []byte, kMaxPendingMessages),
		stopWrite: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Subscribe adds topic to the session's subscription set.
func (s *Session) Subscribe(topic string) {
	s.mu.Lock()
	s.topics[topic] = true
	s.mu.Unlock()
}

// Unsubscribe removes topic from the session's subscription set.
func (s *Session) Unsubscribe(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// subscribed reports whether the session is subscribed to topic.
func (s *Session) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics[topic]
}

// isClosed reports whether the session's write loop has exited.
func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// enqueue queues a frame for delivery. If the queue is already full the
// session is closed for backpressure and the frame is dropped. Enqueues
// after close are no-ops since the write loop has already stopped draining.
func (s *Session) enqueue(frame []byte) {
	if s.isClosed() {
		return
	}
	select {
	case s.outbox <- frame:
	default:
		s.closeFor("backpressure")
	}
}

// sendJSON marshals v and enqueues it.
func (s *Session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.enqueue(b)
}

func (s *Session) writeLoop() {
	defer close(s.done)
	for {
		select {
		case frame := <-s.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.closeFor("write error: " + err.Error())
				return
			}
		case <-s.stopWrite:
			return
		}
	}
}

func (s *Session) closeFor(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.log.Warn("closing websocket session", "reason", reason)
	_ = s.conn.Close(websocket.StatusPolicyViolation, reason)
	s.stopOnce.Do(func() { close(s.stopWrite) })
}

// ReadLoop blocks reading client frames and dispatching them to handle,
// until the connection closes or ctx is done.
func (s *Session) ReadLoop(ctx context.Context, handle func(raw []byte)) {
	defer func() {
		s.mu.Lock()
		alreadyClosed := s.closed
		s.closed = true
		s.mu.Unlock()
		if !alreadyClosed {
			_ = s.conn.Close(websocket.StatusNormalClosure, "")
		}
		s.stopOnce.Do(func() { close(s.stopWrite) })
	}()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		handle(data)
	}
}
