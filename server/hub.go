package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub is the connection registry. It tracks every connected client by id,
// hands joins and leaves to the SessionManager, and implements Transport so
// matches can push messages to their participants.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	events     chan clientEvent // registrations and unregistrations, in order
	sessions   *SessionManager
	stats      *Stats
	closed     chan struct{}
	closeOnce  sync.Once
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

var _ Transport = (*Hub)(nil)

// clientEvent shares one channel between connects and disconnects so a client
// that drops right after connecting is never joined after it has left.
type clientEvent struct {
	client *Client
	joined bool
}

// NewHub creates a Hub whose matches all use profile
func NewHub(profile Profile, stats *Stats) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		events:  make(chan clientEvent, 128),
		stats:   stats,
		closed:  make(chan struct{}),
		ipConns: make(map[string]int),
	}
	h.sessions = NewSessionManager(h, profile, stats)
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			if ev.joined {
				h.add(ev.client)
			} else {
				h.remove(ev.client)
			}
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.stats.Track(EvtConnOpen, "")
	player := h.sessions.Join(client.id)
	log.Info("client connected", "conn", client.id, "addr", client.remoteAddr, "player", player)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.sessions.Leave(client.id)
	h.stats.Track(EvtConnClose, "")
	log.Info("client disconnected", "conn", client.id)
}

// Register queues a newly upgraded client. It is a no-op after Shutdown.
func (h *Hub) Register(c *Client) {
	select {
	case h.events <- clientEvent{client: c, joined: true}:
	case <-h.closed:
	}
}

// Unregister queues a client whose connection has closed
func (h *Hub) Unregister(c *Client) {
	select {
	case h.events <- clientEvent{client: c}:
	case <-h.closed:
	}
}

// Shutdown tears down every session and closes every client's send queue so
// its WritePump sends a close frame.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.closed) })
	h.sessions.Shutdown()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
}

// Send delivers msg to one connection. Unknown ids are ignored.
func (h *Hub) Send(connID string, msg any) {
	h.SendTo([]string{connID}, msg)
}

// SendTo delivers msg to each listed connection. The message is marshaled once
// per codec in use.
func (h *Hub) SendTo(connIDs []string, msg any) {
	if len(connIDs) == 0 {
		return
	}
	var text, binary []byte

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if _, capable := msg.(binaryCapable); capable && c.binary {
			if binary == nil {
				data, err := msgpack.Marshal(msg)
				if err != nil {
					log.Error("msgpack marshal", "err", err)
					continue
				}
				binary = data
			}
			c.SendBinary(binary)
			continue
		}
		if text == nil {
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error("json marshal", "err", err)
				return
			}
			text = data
		}
		c.SendRaw(text)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
