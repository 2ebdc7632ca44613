package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	logx "sgdqbot/pkg/logx"
)

const writeWait = 5 * time.Second

// hub tracks websocket clients and pushes the same message to all of them.
// Writes are serialized by mu; a client that fails a write is dropped.
type hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	log      logx.Logger
}

func newHub(log logx.Logger) *hub {
	return &hub{
		clients: map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			// The feed is read-only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// serve upgrades the request, sends initial and then blocks reading until
// the client goes away.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, initial)
	if err == nil {
		h.clients[conn] = struct{}{}
	}
	n := len(h.clients)
	h.mu.Unlock()
	if err != nil {
		h.log.Debug("websocket initial write failed", logx.String("remote", conn.RemoteAddr().String()), logx.Err(err))
		return
	}
	h.log.Debug("websocket client connected", logx.String("remote", conn.RemoteAddr().String()), logx.Int("clients", n))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	n = len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket client gone", logx.String("remote", conn.RemoteAddr().String()), logx.Int("clients", n))
}

func (h *hub) broadcast(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("websocket write failed", logx.String("remote", c.RemoteAddr().String()), logx.Err(err))
			delete(h.clients, c)
			_ = c.Close()
			continue
		}
		sent++
	}
	return sent
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll sends a close frame to every client and forgets them.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
		delete(h.clients, c)
	}
}
