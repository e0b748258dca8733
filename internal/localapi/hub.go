package localapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"pixsync/internal/protocol"
)

// maxInboundFrame caps what a dashboard client may send. Clients are
// listeners; anything beyond a control-sized frame is a protocol violation.
const maxInboundFrame = 512

// Hub fans events out to connected dashboard clients. The stream is
// one-way: a client that sends a data frame is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[*websocket.Conn]struct{}{}}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The dashboard is served off the same loopback listener.
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		return
	}
	conn.SetReadLimit(maxInboundFrame)

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// CloseRead rejects inbound data frames and resolves when the peer
	// goes away.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// Publish sends the event to every connected client, best-effort with a
// short per-client write timeout.
func (h *Hub) Publish(msg protocol.Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		_ = c.Write(ctx, websocket.MessageText, raw)
		cancel()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
