package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/worker"
)

// Options bounds session behavior.
type Options struct {
	// IdleTimeout closes sessions with no inbound traffic. Clients keep the
	// session alive with {"action": "ping"} roughly every 20 seconds.
	IdleTimeout time.Duration

	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration

	// SendBufferSize is the per-session outbound queue length.
	SendBufferSize int
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 32
	}
	return o
}

// Session is one connected WebSocket client.
type Session struct {
	id      string
	conn    *websocket.Conn
	options Options

	send chan []byte

	mu            sync.Mutex
	closed        bool
	subscriptions map[string]bool
}

// clientMessage is the inbound protocol frame.
type clientMessage struct {
	Action        string `json:"action"`
	ApplicationID string `json:"application_id"`
}

// Serve runs a session to completion: registers it on the hub, sends the
// welcome message, pumps writes through pools, and reads client frames
// until disconnect or idle timeout. Blocks until the session ends.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, pools *worker.Pools, options Options) {
	options = options.withDefaults()
	s := &Session{
		id:            "ws-" + uuid.NewString()[:8],
		conn:          conn,
		options:       options,
		send:          make(chan []byte, options.SendBufferSize),
		subscriptions: make(map[string]bool),
	}

	h.register(s)
	defer func() {
		h.unregister(s)
		_ = conn.Close()
	}()

	if err := pools.Broadcast.Submit(ctx, func(ctx context.Context) {
		s.writePump(ctx)
	}); err != nil {
		logger.Warn("Failed to start session write pump",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		return
	}

	s.sendJSON(map[string]interface{}{
		"type":       domain.MessageWelcome,
		"session_id": s.id,
		"message":    "Connected to Credit Core",
	})

	s.readLoop(ctx)
}

// readLoop consumes client frames until error, idle timeout or ctx end.
func (s *Session) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.options.IdleTimeout))

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read ended",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendJSON(map[string]interface{}{
				"type":    domain.MessageError,
				"message": "invalid message format",
			})
			continue
		}
		s.handle(msg)
	}
}

// handle processes one client action.
func (s *Session) handle(msg clientMessage) {
	switch msg.Action {
	case domain.ActionPing:
		s.sendJSON(map[string]interface{}{"type": domain.MessagePong})

	case domain.ActionSubscribe:
		if msg.ApplicationID == "" {
			s.sendJSON(map[string]interface{}{
				"type":    domain.MessageError,
				"message": "subscribe requires application_id",
			})
			return
		}
		s.mu.Lock()
		s.subscriptions[msg.ApplicationID] = true
		s.mu.Unlock()
		s.sendJSON(map[string]interface{}{
			"type":           domain.MessageSubscribed,
			"application_id": msg.ApplicationID,
		})

	case domain.ActionUnsubscribe:
		s.mu.Lock()
		delete(s.subscriptions, msg.ApplicationID)
		s.mu.Unlock()
		s.sendJSON(map[string]interface{}{
			"type":           domain.MessageUnsubscribed,
			"application_id": msg.ApplicationID,
		})

	default:
		s.sendJSON(map[string]interface{}{
			"type":    domain.MessageError,
			"message": "unknown action",
		})
	}
}

// wants reports whether the session should receive updates for
// applicationID: everything when unsubscribed, only matches otherwise.
func (s *Session) wants(applicationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscriptions) == 0 {
		return true
	}
	return s.subscriptions[applicationID]
}

// trySend queues payload without blocking. False means the session is
// closed or its queue is full and the caller should drop it.
func (s *Session) trySend(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) sendJSON(v map[string]interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !s.trySend(payload) {
		logger.Debug("Session send queue full, dropping frame",
			zap.String("session_id", s.id),
		)
	}
}

// writePump drains the send queue onto the wire.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("WebSocket write failed",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// closeSend closes the outbound queue exactly once.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
