package transport

import (
	"log/slog"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"
)

const peerSendSize = 256

// Hub relays every frame a peer sends to all other connected peers. It is the
// server side of an owner that sends to the server, which forwards to
// everyone else.
type Hub struct {
	upgrader ws.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	peers  map[*hubPeer]struct{}
	closed bool
}

type hubPeer struct {
	conn *ws.Conn
	send chan []byte
	once sync.Once
}

func (p *hubPeer) stop() {
	p.once.Do(func() { close(p.send) })
}

// NewHub creates an empty relay hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
		peers:    make(map[*hubPeer]struct{}),
	}
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request and relays the peer's frames until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	p := &hubPeer{conn: conn, send: make(chan []byte, peerSendSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Peer connected", "remote", r.RemoteAddr, "peers", h.Peers())

	go h.writeLoop(p)
	h.readLoop(p)

	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	p.stop()
	_ = conn.Close()
	h.logger.Info("Peer disconnected", "remote", r.RemoteAddr, "peers", h.Peers())
}

func (h *Hub) readLoop(p *hubPeer) {
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != ws.BinaryMessage {
			continue
		}
		var m Message
		if err := m.UnmarshalBinary(data); err != nil {
			h.logger.Debug("Dropping undecodable frame", "len", len(data), "error", err)
			continue
		}
		h.broadcast(p, data)
	}
}

func (h *Hub) broadcast(from *hubPeer, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- data:
		default:
			h.logger.Warn("Peer send channel full, dropping frame")
		}
	}
}

func (h *Hub) writeLoop(p *hubPeer) {
	for data := range p.send {
		if err := p.conn.WriteMessage(ws.BinaryMessage, data); err != nil {
			h.logger.Warn("WebSocket write error", "error", err)
			_ = p.conn.Close()
			return
		}
	}
}

// Close disconnects every peer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for p := range h.peers {
		_ = p.conn.Close()
	}
}
