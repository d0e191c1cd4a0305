// Package realtime – websocket hub.
//
// The hub keeps an in-process registry of connected clients and their room
// memberships. Membership changes and broadcasts take a single mutex; the
// per-client buffered send channel decouples fan-out from socket writes, and
// a client that cannot keep up is dropped rather than allowed to stall the
// hub. There is no cross-node fan-out: the registry is local to this
// process.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/palettehub/commission-backend/internal/utils"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings go out at pingPeriod.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-client outbound queue. Overflow drops the client.
	sendBuffer = 64
	// maxFrameBytes caps inbound control frames; clients only send tiny
	// join/leave commands.
	maxFrameBytes = 512
)

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Current number of connected websocket clients.",
	})
	wsRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_rooms",
		Help: "Current number of rooms with at least one member.",
	})
	wsEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_total",
		Help: "Total events fanned out, by event name.",
	}, []string{"event"})
	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_clients_dropped_total",
		Help: "Clients disconnected because their send queue overflowed.",
	})
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsEvents, wsDropped)
}

// command is the client→server frame: join or leave a room.
type command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// client is one websocket connection with its room memberships.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64
	rooms  map[string]struct{}
}

// Hub implements Broadcaster over gorilla/websocket connections.
// The zero value is not usable; construct with NewHub.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
}

// NewHub constructs an empty hub. Origin checking is left to the CORS layer
// in front of the upgrade endpoint.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// HandleWS upgrades an HTTP request to a websocket connection and runs the
// client's read/write pumps. The caller's identity arrives as the user_id
// query parameter (set by the excluded auth layer's session).
func (h *Hub) HandleWS(c *gin.Context) {
	userID := int64(utils.AtoiDefault(c.Query("user_id"), 0))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		rooms:  make(map[string]struct{}),
	}
	h.register(cl)

	go cl.writePump()
	go cl.readPump()
}

// ToRoom implements Broadcaster.
func (h *Hub) ToRoom(room, event string, payload any) {
	msg, ok := marshalEnvelope(event, payload)
	if !ok {
		return
	}
	wsEvents.WithLabelValues(event).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.rooms[room] {
		h.deliverLocked(cl, msg)
	}
}

// ToAll implements Broadcaster.
func (h *Hub) ToAll(event string, payload any) {
	msg, ok := marshalEnvelope(event, payload)
	if !ok {
		return
	}
	wsEvents.WithLabelValues(event).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.deliverLocked(cl, msg)
	}
}

// Close disconnects every client; used during graceful shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		h.unregister(cl)
	}
}

// deliverLocked enqueues msg for one client; callers hold h.mu. A full queue
// means the client stopped draining: close its channel and forget it, the
// write pump will tear the socket down.
func (h *Hub) deliverLocked(cl *client, msg []byte) {
	select {
	case cl.send <- msg:
	default:
		wsDropped.Inc()
		h.removeLocked(cl)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl] = struct{}{}
	wsConnections.Set(float64(len(h.clients)))
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	h.removeLocked(cl)
	h.mu.Unlock()
}

// removeLocked detaches a client from the registry and all rooms and closes
// its send channel exactly once. Callers hold h.mu.
func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	for room := range cl.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, cl)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(cl.send)
	wsConnections.Set(float64(len(h.clients)))
	wsRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) join(cl *client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[cl] = struct{}{}
	cl.rooms[room] = struct{}{}
	wsRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) leave(cl *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(cl.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, cl)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	wsRooms.Set(float64(len(h.rooms)))
}

// RoomSize reports the current member count of a room (used by tests and
// the health surface).
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// readPump consumes join/leave commands until the connection dies. Liveness
// is tracked with the standard ping/pong deadline dance instead of
// application-level heartbeat frames.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Debug().Int64("user_id", c.userID).Msg("ignoring malformed ws frame")
			continue
		}
		switch cmd.Action {
		case "join":
			c.hub.join(c, cmd.Room)
		case "leave":
			c.hub.leave(c, cmd.Room)
		default:
			// Unknown actions are ignored; the protocol is join/leave only.
		}
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel (drop or shutdown).
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// marshalEnvelope serializes an event frame; marshal failures are logged and
// swallowed, mirroring the best-effort delivery contract.
func marshalEnvelope(event string, payload any) ([]byte, bool) {
	msg, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal websocket event")
		return nil, false
	}
	return msg, true
}
