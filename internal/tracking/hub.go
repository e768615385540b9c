package tracking

import (
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"dispatch-service/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Presence is told when a rider's live session opens or closes.
type Presence interface {
	SetConnected(riderID string, connected bool)
}

// Hub manages one WebSocket session per rider. A reconnect replaces the
// previous session.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*safeConn
	presence Presence
}

// NewHub creates a rider session hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*safeConn)}
}

// SetPresence binds the presence sink. The hub pushes to the rider service
// and the service reports presence back, so one side binds after
// construction. Call before serving.
func (h *Hub) SetPresence(p Presence) { h.presence = p }

// Routes returns a chi.Router for the /ws mount point. The token travels as
// a query parameter because browser WebSocket clients cannot set headers.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleWS)
	return r
}

// HandleWS authenticates the token, upgrades the connection, and binds it
// to the rider until disconnect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.Validate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	riderID := claims.UserID

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	conn := &safeConn{ws: ws}

	h.mu.Lock()
	if prev, ok := h.conns[riderID]; ok {
		prev.close()
	}
	h.conns[riderID] = conn
	h.mu.Unlock()

	h.presence.SetConnected(riderID, true)
	log.Printf("[ws] rider %s connected", riderID)

	// Block until the client disconnects. Inbound frames are ignored;
	// all rider requests go over HTTP.
	for {
		if _, _, err := conn.readMessage(); err != nil {
			break
		}
	}

	h.removeConn(riderID, conn)
	conn.close()
	h.presence.SetConnected(riderID, false)
	log.Printf("[ws] rider %s disconnected", riderID)
}

// Send pushes a message to the rider's live session. A rider without a
// session drops the message silently; HTTP polling catches them up.
func (h *Hub) Send(riderID string, msg any) {
	h.mu.RLock()
	conn := h.conns[riderID]
	h.mu.RUnlock()

	if conn == nil {
		return
	}
	if err := conn.writeJSON(msg); err != nil {
		log.Printf("[ws] write to %s failed: %v", riderID, err)
	}
}

func (h *Hub) removeConn(riderID string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[riderID] == conn {
		delete(h.conns, riderID)
	}
}
