package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mazeforge/mazeforge/internal/logger"
)

// progressEvent is one step of a running batch, streamed to every
// connected WebSocket client.
type progressEvent struct {
	Type           string  `json:"type"`
	RunID          string  `json:"runId"`
	Seed           int64   `json:"seed"`
	Kind           string  `json:"kind,omitempty"`
	CompletedSteps int     `json:"completedSteps"`
	TotalSteps     int     `json:"totalSteps"`
	Fraction       float64 `json:"fraction"`
}

// summaryEvent closes out a run on the stream.
type summaryEvent struct {
	Type          string `json:"type"`
	RunID         string `json:"runId"`
	ArtifactCount int    `json:"artifactCount"`
	ErrorCount    int    `json:"errorCount"`
	Summary       string `json:"summary"`
	ArchiveName   string `json:"archiveName,omitempty"`
}

// Hub fans batch events out to the connected WebSocket clients. The
// stream is one-way; incoming frames are drained and dropped.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// broadcast sends one JSON event to every client. A client that fails
// its write is dropped; the hub mutex doubles as the per-connection
// write lock gorilla requires.
func (h *Hub) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

// handleWebSocketUpgrade upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	// Get the real client IP (supports X-Forwarded-For from reverse proxies)
	clientIP := getRealIP(r)

	// Check connection limits before upgrading
	if s.connLimiter != nil && !s.connLimiter.TryAcquire(clientIP) {
		logger.Warning("WebSocket connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}

	// Create upgrader with origin check based on server config
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			cfg := s.GetServerConfig()
			allowed := cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		// Release the connection slot since upgrade failed
		if s.connLimiter != nil {
			s.connLimiter.Release(clientIP)
		}
		return
	}

	s.serveWebSocket(wsConn, clientIP)
}

// serveWebSocket keeps one client subscribed until it disconnects.
func (s *Server) serveWebSocket(wsConn *websocket.Conn, clientIP string) {
	defer func() {
		if s.connLimiter != nil {
			s.connLimiter.Release(clientIP)
		}
		s.hub.remove(wsConn)
		wsConn.Close()
		logger.Info("WebSocket client disconnected", "client_ip", clientIP)
	}()

	if max := s.GetServerConfig().WebSocket.MaxMessageSize; max > 0 {
		wsConn.SetReadLimit(max)
	}

	s.hub.add(wsConn)
	logger.Info("WebSocket client connected", "client_ip", clientIP, "clients", s.hub.count())

	// Drain frames until the peer closes. Events only flow outward.
	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			return
		}
	}
}
