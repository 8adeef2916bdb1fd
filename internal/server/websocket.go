package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainsmith/chasm/internal/usecase"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return u.Host == r.Host || host == "localhost" || host == "127.0.0.1"
	},
}

// WebSocketHub streams dashboard events to connected clients
type WebSocketHub struct {
	dashboard *usecase.Dashboard
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]func()
	stopped bool
}

// NewWebSocketHub creates a hub fed by dashboard
func NewWebSocketHub(dashboard *usecase.Dashboard, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		dashboard: dashboard,
		logger:    logger,
		clients:   make(map[*websocket.Conn]func()),
	}
}

// Handler upgrades the connection and streams events until either side closes
func (h *WebSocketHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", "error", err)
			return
		}

		events, cancel := h.dashboard.Subscribe()
		if !h.register(conn, cancel) {
			cancel()
			_ = conn.Close()
			return
		}
		defer h.unregister(conn)

		done := make(chan struct{})
		go h.readLoop(conn, done)
		h.writeLoop(conn, events, done)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop disconnects every client
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for conn, cancel := range h.clients {
		cancel()
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

func (h *WebSocketHub) register(conn *websocket.Conn, cancel func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[conn] = cancel
	h.logger.Debug("websocket client connected", "clients", len(h.clients))
	return true
}

func (h *WebSocketHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	cancel, ok := h.clients[conn]
	delete(h.clients, conn)
	remaining := len(h.clients)
	h.mu.Unlock()

	if ok {
		cancel()
		_ = conn.Close()
	}
	h.logger.Debug("websocket client disconnected", "clients", remaining)
}

// readLoop discards client messages and signals done on close
func (h *WebSocketHub) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writeLoop(conn *websocket.Conn, events <-chan usecase.DashboardEvent, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
