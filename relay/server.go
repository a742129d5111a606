// Package relay implements the pub/sub backend used by networked sessions:
// a bounded history endpoint, an insert-notification stream for new chat
// events, and a presence channel with track/sync/join/leave semantics.
package relay

import (
	"chat-widget/domain"
	"chat-widget/repositories"
	"chat-widget/transport"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Server struct {
	log          *slog.Logger
	hub          *Hub
	events       repositories.IEventRepository
	historyLimit int
	bufferSize   int
	upgrader     websocket.Upgrader
}

func NewServer(log *slog.Logger, events repositories.IEventRepository, historyLimit, bufferSize int) *Server {
	return &Server{
		log:          log,
		hub:          NewHub(log, events),
		events:       events,
		historyLimit: historyLimit,
		bufferSize:   bufferSize,
		upgrader: websocket.Upgrader{
			// The widget is served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/history", s.handleHistory)
	r.Get("/ws", s.handleWS)
	return r
}

// handleHistory serves the one-time bounded historical fetch, ascending by
// occurrence time. The limit is capped server-side regardless of the query.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	events, err := s.events.Recent(limit)
	if err != nil {
		s.log.Error("History read failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	records := lo.Map(events, func(evt domain.ChatEvent, _ int) transport.Record {
		return transport.EncodeRecord(evt)
	})
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.log.Warn("History write failed", "error", err)
	}
}

// handleWS upgrades the connection and pumps frames between the client and
// the hub until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s.bufferSize)
	s.hub.add(c)
	go c.writePump()
	defer func() {
		s.hub.remove(c)
		_ = conn.Close()
	}()

	for {
		var frame transport.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Client connection dropped", "error", err)
			}
			return
		}
		s.hub.handle(c, frame)
	}
}
