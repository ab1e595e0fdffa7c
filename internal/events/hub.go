package events

import (
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subscription is a client's view of the stream. An empty type set means
// the full stream.
type subscription struct {
	types map[Type]struct{}
}

func newSubscription(types []Type) *subscription {
	s := &subscription{}
	if len(types) > 0 {
		s.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	return s
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Hub fans events out to the UI shell over raw TCP (line JSON) and
// WebSocket connections. Clients receive the full stream until they
// subscribe to specific event types.
type Hub struct {
	mu  sync.Mutex
	tcp map[net.Conn]*subscription
	ws  map[*websocket.Conn]*subscription
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub() *Hub {
	return &Hub{
		tcp: make(map[net.Conn]*subscription),
		ws:  make(map[*websocket.Conn]*subscription),
	}
}

func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	h.tcp[conn] = newSubscription(nil)
	h.mu.Unlock()
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.tcp, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	h.ws[ws] = newSubscription(nil)
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.ws, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Subscribe narrows conn's stream to the given types. An empty list
// resets it to the full stream. Unknown connections are ignored so a
// late command cannot resurrect a removed client.
func (h *Hub) Subscribe(conn net.Conn, types []Type) {
	h.mu.Lock()
	if _, ok := h.tcp[conn]; ok {
		h.tcp[conn] = newSubscription(types)
	}
	h.mu.Unlock()
}

func (h *Hub) SubscribeWS(ws *websocket.Conn, types []Type) {
	h.mu.Lock()
	if _, ok := h.ws[ws]; ok {
		h.ws[ws] = newSubscription(types)
	}
	h.mu.Unlock()
}

// Broadcast delivers evt to every connected client whose subscription
// matches its type. Clients that fail a write are dropped; delivery is
// fire-and-forget.
func (h *Hub) Broadcast(evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	for c, sub := range h.tcp {
		if !sub.wants(evt.Type) {
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if _, err := c.Write(b); err != nil {
			_ = c.Close()
			delete(h.tcp, c)
		}
	}

	for ws, sub := range h.ws {
		if !sub.wants(evt.Type) {
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.ws, ws)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.tcp),
		WSClients:  len(h.ws),
	}
}

// welcomeEvent is the first frame every client receives, in the same
// schema as the rest of the stream.
func (h *Hub) welcomeEvent(transport string) Event {
	stats := h.Stats()
	return Event{
		ID:      uuid.NewString(),
		Type:    ClientWelcome,
		Message: "connected",
		Data: map[string]string{
			"transport":   transport,
			"tcp_clients": strconv.Itoa(stats.TCPClients),
			"ws_clients":  strconv.Itoa(stats.WSClients),
		},
		At: time.Now().UTC(),
	}
}

func (h *Hub) Welcome(conn net.Conn) {
	b, err := json.Marshal(h.welcomeEvent("tcp"))
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write(append(b, '\n'))
}

func (h *Hub) WelcomeWS(ws *websocket.Conn) {
	b, err := json.Marshal(h.welcomeEvent("websocket"))
	if err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.TextMessage, append(b, '\n'))
}
