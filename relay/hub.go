package relay

import (
	"chat-widget/repositories"
	"chat-widget/transport"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Hub fans frames out to every connected client and keeps the presence
// roster. Delivery is at-least-once and best-effort: a slow client gets its
// frames dropped, clients dedup by event id.
type Hub struct {
	log    *slog.Logger
	events repositories.IEventRepository

	mu      sync.Mutex
	clients map[*client]struct{}
	roster  map[string]transport.PresenceRecord
}

func NewHub(log *slog.Logger, events repositories.IEventRepository) *Hub {
	return &Hub{
		log:     log,
		events:  events,
		clients: make(map[*client]struct{}),
		roster:  make(map[string]transport.PresenceRecord),
	}
}

// client is one websocket connection. Writes go through a buffered channel
// drained by a dedicated writer goroutine, reads happen on the handler
// goroutine.
type client struct {
	conn          *websocket.Conn
	send          chan []byte
	participantID string
}

func newClient(conn *websocket.Conn, bufferSize int) *client {
	return &client{conn: conn, send: make(chan []byte, bufferSize)}
}

func (c *client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// remove drops the client and, when no other connection tracks the same
// participant, announces the departure and a fresh roster snapshot.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)

	departed := ""
	if c.participantID != "" && !h.participantStillConnectedLocked(c.participantID) {
		departed = c.participantID
		delete(h.roster, c.participantID)
	}
	h.mu.Unlock()

	if departed != "" {
		h.broadcast(transport.Frame{
			Type:     transport.FrameLeave,
			Presence: []transport.PresenceRecord{{ID: departed}},
		})
		h.broadcastRoster()
	}
}

func (h *Hub) participantStillConnectedLocked(id string) bool {
	for other := range h.clients {
		if other.participantID == id {
			return true
		}
	}
	return false
}

// handle processes one inbound frame from a client.
func (h *Hub) handle(c *client, frame transport.Frame) {
	switch frame.Type {
	case transport.FramePublish:
		h.handlePublish(frame)
	case transport.FrameTrack:
		h.handleTrack(c, frame)
	default:
		h.log.Debug("Ignoring unknown frame from client", "type", frame.Type)
	}
}

// handlePublish validates, persists and broadcasts a chat event. A storage
// failure is logged but does not stop the broadcast: history may miss the
// row, the live stream still delivers it.
func (h *Hub) handlePublish(frame transport.Frame) {
	if frame.Record == nil {
		return
	}
	evt, err := transport.DecodeRecord(*frame.Record)
	if err != nil {
		h.log.Warn("Rejecting malformed publish", "error", err)
		return
	}
	if err := h.events.Store(evt); err != nil {
		h.log.Error("Failed to persist event, broadcasting anyway", "error", err)
	}
	h.broadcast(transport.Frame{Type: transport.FrameInsert, Record: frame.Record})
}

// handleTrack upserts the sender on the presence channel. The first track of
// a participant announces the join to everyone; repeated tracks are heartbeat
// refreshes and only answer the sender with a snapshot.
func (h *Hub) handleTrack(c *client, frame transport.Frame) {
	if len(frame.Presence) == 0 {
		return
	}
	rec := frame.Presence[0]
	if _, err := transport.DecodePresence(rec); err != nil {
		h.log.Warn("Rejecting malformed track frame", "error", err)
		return
	}
	rec.LastHeartbeat = time.Now().UTC()

	h.mu.Lock()
	_, known := h.roster[rec.ID]
	h.roster[rec.ID] = rec
	c.participantID = rec.ID
	h.mu.Unlock()

	if !known {
		h.broadcast(transport.Frame{Type: transport.FrameJoin, Presence: []transport.PresenceRecord{rec}})
		h.broadcastRoster()
		return
	}
	h.sendTo(c, transport.Frame{Type: transport.FrameSync, Presence: h.rosterSnapshot()})
}

func (h *Hub) rosterSnapshot() []transport.PresenceRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo.Values(h.roster)
}

// broadcastRoster pushes the full snapshot to everyone, keeping presence
// eventually consistent even for clients that missed a delta.
func (h *Hub) broadcastRoster() {
	h.broadcast(transport.Frame{Type: transport.FrameSync, Presence: h.rosterSnapshot()})
}

func (h *Hub) broadcast(frame transport.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to marshal frame", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("Client send buffer full, dropping frame", "participant", c.participantID)
		}
	}
}

func (h *Hub) sendTo(c *client, frame transport.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to marshal frame", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		// Already removed, its send channel is closed.
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.Warn("Client send buffer full, dropping frame", "participant", c.participantID)
	}
}
