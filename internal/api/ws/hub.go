package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/hostelpass/internal/capture"
	"github.com/your-org/hostelpass/internal/observability"
	"github.com/your-org/hostelpass/internal/vision"
	"github.com/your-org/hostelpass/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // display UI is served from a different local port
	},
}

// Client represents a connected display client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans capture status transitions and overlay detections out to every
// connected display.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws display connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				// Force-disconnected clients already left the gauge.
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			slog.Debug("ws display disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full — disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					observability.WSConnections.Dec()
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastStatus pushes one capture status transition to all displays.
func (h *Hub) BroadcastStatus(st capture.Status) {
	resp := StatusResponse(st)
	h.send(dto.WSMessage{Type: "status", Status: &resp})
}

// BroadcastDetections pushes one overlay frame's face boxes to all displays.
func (h *Hub) BroadcastDetections(detections []vision.Detection) {
	boxes := make([]dto.Detection, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, dto.Detection{
			X1:         d.BBox[0],
			Y1:         d.BBox[1],
			X2:         d.BBox[2],
			Y2:         d.BBox[3],
			Confidence: d.Confidence,
		})
	}
	h.send(dto.WSMessage{Type: "detections", Detections: boxes})
}

func (h *Hub) send(msg dto.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal ws message", "error", err)
		return
	}
	h.broadcast <- data
}

// StatusResponse converts a capture status snapshot to its wire shape.
func StatusResponse(st capture.Status) dto.CaptureStatusResponse {
	return dto.CaptureStatusResponse{
		SessionID:   st.SessionID,
		Flow:        string(st.Flow),
		Phase:       st.PhaseName,
		Message:     st.Message,
		Category:    string(st.Category),
		Kind:        st.KindName,
		HasFrame:    st.HasFrame,
		HasFix:      st.HasFix,
		StudentName: st.StudentName,
		Terminal:    st.Terminal,
	}
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// We don't process incoming messages from displays.
		// This loop exists to detect disconnection.
	}
}
