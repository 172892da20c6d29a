package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cwsl/ka9q_rtty/audio_extensions/rtty"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// wsMessage is the JSON message sent to text feed clients
type wsMessage struct {
	Type      string      `json:"type"` // text, mode, level or status
	Timestamp int64       `json:"timestamp"`
	Text      string      `json:"text,omitempty"`
	Mode      string      `json:"mode,omitempty"`
	Mark      float64     `json:"mark,omitempty"`
	Space     float64     `json:"space,omitempty"`
	Status    interface{} `json:"status,omitempty"`
}

// TextWebSocketHandler broadcasts decoded text to all websocket clients
type TextWebSocketHandler struct {
	clients   map[*websocket.Conn]*sync.Mutex // Each connection has its own write mutex
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	metrics   *PrometheusMetrics
	logger    *log.Logger

	// Recent text replayed to new connections
	recent    []wsMessage
	recentMu  sync.RWMutex
	maxRecent int
	mode      string
}

// NewTextWebSocketHandler creates a handler keeping maxRecent text messages for replay
func NewTextWebSocketHandler(maxRecent int, metrics *PrometheusMetrics, logger *log.Logger) *TextWebSocketHandler {
	return &TextWebSocketHandler{
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		metrics:   metrics,
		logger:    logger,
		maxRecent: maxRecent,
		mode:      rtty.ModeLAT.String(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				return true // Read-only feed
			},
		},
	}
}

// HandleWebSocket upgrades the connection and keeps it registered until it fails
func (h *TextWebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	writeMu := &sync.Mutex{}

	// Replay before registering so broadcasts cannot interleave with the backlog
	h.recentMu.RLock()
	replay := make([]wsMessage, 0, len(h.recent)+1)
	replay = append(replay, wsMessage{Type: "mode", Timestamp: time.Now().Unix(), Mode: h.mode})
	replay = append(replay, h.recent...)
	h.recentMu.RUnlock()

	for _, msg := range replay {
		if err := h.write(conn, writeMu, msg); err != nil {
			conn.Close()
			return
		}
	}

	h.clientsMu.Lock()
	h.clients[conn] = writeMu
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.metrics.SetWSClients(count)
	h.logger.Debugf("Client connected from %s (%d total)", r.RemoteAddr, count)

	done := make(chan struct{})
	defer func() {
		close(done)
		h.removeClient(conn)
		h.logger.Debugf("Client %s disconnected", r.RemoteAddr)
	}()

	go h.pingLoop(conn, writeMu, done)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Inbound messages are ignored; reading drives pong handling and close detection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func (h *TextWebSocketHandler) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *TextWebSocketHandler) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.metrics.SetWSClients(count)
}

func (h *TextWebSocketHandler) write(conn *websocket.Conn, writeMu *sync.Mutex, msg wsMessage) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	h.metrics.RecordWSMessageSent(msg.Type)
	return nil
}

// broadcast sends msg to every client, dropping clients whose write fails
func (h *TextWebSocketHandler) broadcast(msg wsMessage) {
	h.clientsMu.RLock()
	type client struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	clients := make([]client, 0, len(h.clients))
	for conn, mu := range h.clients {
		clients = append(clients, client{conn, mu})
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		if err := h.write(c.conn, c.mu, msg); err != nil {
			h.logger.Debugf("Write failed, dropping client: %v", err)
			h.removeClient(c.conn)
		}
	}
}

// HandleMessage implements ResultSink
func (h *TextWebSocketHandler) HandleMessage(msg rtty.Message) {
	switch msg.Type {
	case rtty.MessageText:
		out := wsMessage{Type: "text", Timestamp: msg.Timestamp.Unix(), Text: msg.Text}
		h.recentMu.Lock()
		h.recent = append(h.recent, out)
		if len(h.recent) > h.maxRecent {
			h.recent = h.recent[len(h.recent)-h.maxRecent:]
		}
		h.recentMu.Unlock()
		h.broadcast(out)

	case rtty.MessageMode:
		h.recentMu.Lock()
		h.mode = msg.Mode.String()
		h.recentMu.Unlock()
		h.broadcast(wsMessage{Type: "mode", Timestamp: time.Now().Unix(), Mode: msg.Mode.String()})

	case rtty.MessageLevel:
		h.broadcast(wsMessage{Type: "level", Timestamp: time.Now().Unix(), Mark: msg.MarkEnergy, Space: msg.SpaceEnergy})
	}
}

// BroadcastStatus sends a status snapshot to every client
func (h *TextWebSocketHandler) BroadcastStatus(status interface{}) {
	h.broadcast(wsMessage{Type: "status", Timestamp: time.Now().Unix(), Status: status})
}

// ClientCount returns the number of connected clients
func (h *TextWebSocketHandler) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *TextWebSocketHandler) Close() {
	h.clientsMu.Lock()
	for conn, mu := range h.clients {
		mu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		mu.Unlock()
		conn.Close()
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	h.metrics.SetWSClients(0)
}

// recentJSON returns the replay buffer for the status API
func (h *TextWebSocketHandler) recentJSON() json.RawMessage {
	h.recentMu.RLock()
	defer h.recentMu.RUnlock()
	data, _ := json.Marshal(h.recent)
	return data
}
