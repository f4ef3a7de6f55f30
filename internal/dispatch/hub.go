// Package dispatch owns the live websocket sessions and the fan-out path.
// Sends are fire-and-forget: a slow or dead session drops frames instead of
// blocking the caller.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-bidding/internal/observability"
)

const sendBuffer = 32

// Conn is the subset of *websocket.Conn the hub writes to; tests substitute
// an in-memory pipe.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one connected client with a dedicated writer goroutine, so
// concurrent broadcasts never interleave frames on the wire. The mutex
// serializes enqueue against close: the send channel is only closed while no
// sender holds the lock, so a broadcast racing a disconnect lands on the
// closed flag instead of a closed channel.
type Session struct {
	ID   string
	conn Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newSession(id string, conn Conn) *Session {
	return &Session{ID: id, conn: conn, send: make(chan []byte, sendBuffer)}
}

// sendResult classifies what happened to an enqueued frame.
type sendResult int

const (
	sendQueued sendResult = iota
	sendDropped
	sendClosed
)

func (s *Session) enqueue(msg []byte) sendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sendClosed
	}
	select {
	case s.send <- msg:
		return sendQueued
	default:
		return sendDropped
	}
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	s.mu.Unlock()
	_ = s.conn.Close()
}

func (s *Session) writePump(logger *slog.Logger) {
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debug("ws_write_failed", "conn_id", s.ID, "error", err)
			return
		}
	}
}

// Hub maps connection ids to sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{sessions: make(map[string]*Session), logger: logger}
}

// Add registers a session and starts its writer.
func (h *Hub) Add(connID string, conn Conn) {
	s := newSession(connID, conn)
	h.mu.Lock()
	old, ok := h.sessions[connID]
	h.sessions[connID] = s
	h.mu.Unlock()
	if ok {
		old.close()
	}
	observability.SessionsOnline.Inc()
	go s.writePump(h.logger)
}

// Remove tears down a session. Safe to call for unknown ids.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	s, ok := h.sessions[connID]
	if ok {
		delete(h.sessions, connID)
	}
	h.mu.Unlock()
	if ok {
		s.close()
		observability.SessionsOnline.Dec()
	}
}

// Send queues a frame for one connection. Full buffers drop the frame; the
// periodic reconciler and client resync handle anything a client missed.
func (h *Hub) Send(connID string, msg []byte) {
	h.mu.RLock()
	s, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if s.enqueue(msg) == sendDropped {
		observability.DroppedOutbound.Inc()
		h.logger.Warn("ws_send_dropped", "conn_id", connID)
	}
}

// SendAll fans one frame out to many connections.
func (h *Hub) SendAll(connIDs []string, msg []byte) {
	for _, id := range connIDs {
		h.Send(id, msg)
	}
}
