// Package ws implements the WebSocket session hub for real-time updates.
//
// Delivery is best-effort: a session that cannot keep up is dropped; there
// are no per-message acknowledgments and clients must tolerate reordering
// across applications.
package ws

import (
	"sync"

	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
)

// Hub tracks the process-local sessions and routes updates to them.
type Hub struct {
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// register adds a session to the routing table.
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	count := len(h.sessions)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebSocketConnections.Set(float64(count))
	}
	logger.Debug("WebSocket session connected",
		zap.String("session_id", s.id),
		zap.Int("total_sessions", count),
	)
}

// unregister removes a session. Idempotent.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	count := len(h.sessions)
	h.mu.Unlock()

	s.closeSend()
	if h.metrics != nil {
		h.metrics.WebSocketConnections.Set(float64(count))
	}
	logger.Debug("WebSocket session disconnected",
		zap.String("session_id", s.id),
		zap.Int("total_sessions", count),
	)
}

// Broadcast routes an application update to the matching sessions: sessions
// without subscriptions receive the whole stream, subscribed sessions only
// their applications.
func (h *Hub) Broadcast(message domain.UpdateMessage) {
	payload, err := message.Encode()
	if err != nil {
		logger.Error("Failed to encode broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.wants(message.Data.ID) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.trySend(payload) {
			// Session cannot keep up; drop it rather than block the fan-out.
			h.unregister(s)
		}
	}
}

// SessionCount reports the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
