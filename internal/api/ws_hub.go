package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
)

// WSMessage is a JSON message sent to WebSocket clients. Type is the
// journal entry kind (draw_created, bid_placed, draw_settled, ...).
type WSMessage struct {
	Type         string `json:"type"`
	Seq          int64  `json:"seq"`
	DrawID       uint64 `json:"draw_id,omitempty"`
	TargetDrawID uint64 `json:"target_draw_id,omitempty"`
	Ticker       string `json:"ticker,omitempty"`
	Account      string `json:"account,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Shares       string `json:"shares,omitempty"`
	City         string `json:"city,omitempty"`
	ActualTemp   string `json:"actual_temp_c,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// messageFor converts a committed journal entry into a client event.
func messageFor(e model.LedgerEntry) WSMessage {
	msg := WSMessage{
		Type:         string(e.Kind),
		Seq:          e.Seq,
		DrawID:       e.DrawID,
		TargetDrawID: e.TargetDrawID,
		Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.Account != (common.Address{}) {
		msg.Account = e.Account.Hex()
	}
	if !e.Amount.IsZero() {
		msg.Amount = e.Amount.String()
	}
	if !e.Shares.IsZero() {
		msg.Shares = e.Shares.String()
	}
	switch e.Kind {
	case model.KindBidPlaced:
		msg.Ticker = contract.FormatTicker(e.DrawID, e.Threshold)
	case model.KindDrawCreated:
		msg.City = e.CityID.Name()
	case model.KindDrawSettled:
		msg.ActualTemp = contract.FormatCelsius(e.Temperature)
	}
	return msg
}

// WSHub manages WebSocket connections and broadcasts engine events to all
// connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called
// in a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// Publish implements engine.Publisher.
func (h *WSHub) Publish(entry model.LedgerEntry) {
	h.Broadcast(messageFor(entry))
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking the engine.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}()
}
