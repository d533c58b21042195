package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Peer is a connected live client.
type Peer struct {
	ID   string
	Conn *websocket.Conn

	frames atomic.Uint64
	mu     sync.Mutex // serializes writes
}

// Send writes a reply to the peer.
func (p *Peer) Send(msg Reply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.Conn.WriteJSON(msg)
}

// Close sends a close frame with code and reason. The read loop ends when
// the client answers or the connection drops.
func (p *Peer) Close(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return p.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// Hub tracks the connected peers.
type Hub struct {
	peers map[string]*Peer
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*Peer)}
}

// Add registers a peer.
func (h *Hub) Add(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID] = p
}

// Remove unregisters a peer.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

// Count returns the number of connected peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll sends a close frame to every peer.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		_ = p.Close(code, reason)
	}
}
