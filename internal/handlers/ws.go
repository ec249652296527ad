package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"nurse-handover/backend/internal/auth"
	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
	"nurse-handover/backend/internal/services"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers are gated by the bearer token, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSMessage struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"clientId,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

type wsClient struct {
	conn     *websocket.Conn
	clientID string
	userID   int64
	send     chan WSMessage
	done     chan struct{}
	once     sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans handover status events out to connected dashboards.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	metrics *services.Metrics
	log     zerolog.Logger
}

func NewHub(metrics *services.Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		metrics: metrics,
		log:     log.With().Str("component", "ws").Logger(),
	}
}

// Publish broadcasts ev to every client. A client whose buffer is full
// misses the event rather than stalling the pipeline.
func (h *Hub) Publish(_ context.Context, ev models.StatusEvent) error {
	msg := WSMessage{Type: "HANDOVER_STATUS", Timestamp: time.Now().UnixMilli(), Payload: ev}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.metrics.IncrementWebSocketErrors()
			h.log.Warn().Str("client", id).Int64("handover_id", ev.HandoverID).Msg("client buffer full, event dropped")
		}
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.clientID] = c
	h.mu.Unlock()
	h.metrics.IncrementWebSocketConnections()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.clientID]
	delete(h.clients, c.clientID)
	h.mu.Unlock()
	if ok {
		h.metrics.DecrementWebSocketConnections()
	}
	c.stop()
}

// Close sends every client a close frame. The write pumps close the
// connections, which ends the read loops.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for id, c := range clients {
		c.stop()
		h.metrics.DecrementWebSocketConnections()
		h.log.Debug().Str("client", id).Msg("connection closed")
	}
}

// handleWebSocket authenticates with ?token= (browsers cannot set headers on
// the upgrade request) or a bearer header, then streams status events.
func (s *Server) handleWebSocket(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		raw = auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	}
	if raw == "" {
		return errs.Auth("Access token required")
	}
	id, err := s.Tokens.Verify(c.Request().Context(), raw)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.Metrics.IncrementWebSocketErrors()
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := &wsClient{
		conn:     conn,
		clientID: "client-" + uuid.NewString(),
		userID:   id.UserID,
		send:     make(chan WSMessage, wsSendBuffer),
		done:     make(chan struct{}),
	}
	s.Hub.register(client)
	s.log.Info().Str("client", client.clientID).Int64("user", id.UserID).Msg("websocket client connected")

	client.send <- WSMessage{
		Type:      "WELCOME",
		ClientID:  client.clientID,
		Timestamp: time.Now().UnixMilli(),
		Payload: map[string]interface{}{
			"message": "Connected to handover updates",
			"version": s.Version,
		},
	}

	go s.writePump(client)
	s.readPump(client)

	s.Hub.unregister(client)
	_ = conn.Close()
	s.log.Info().Str("client", client.clientID).Msg("websocket client disconnected")
	return nil
}

func (s *Server) readPump(client *wsClient) {
	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.Metrics.IncrementWebSocketErrors()
				s.log.Warn().Err(err).Str("client", client.clientID).Msg("websocket read failed")
			}
			return
		}
		s.Metrics.IncrementWebSocketMessages()

		switch msg.Type {
		case "PING":
			reply := WSMessage{Type: "PONG", ClientID: client.clientID, Timestamp: time.Now().UnixMilli()}
			select {
			case client.send <- reply:
			case <-client.done:
				return
			}
		default:
			s.log.Debug().Str("client", client.clientID).Str("type", msg.Type).Msg("unknown message type")
		}
	}
}

func (s *Server) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = client.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
