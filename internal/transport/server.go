// Package transport exposes rooms over HTTP and websockets.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/metrics"
	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
)

const DefaultActionTimeout = 2 * time.Second

// Options wire a Server to the rest of the process.
type Options struct {
	Registry      *room.Registry
	Hub           *Hub
	Library       *scenario.Library
	Metrics       *metrics.Collector
	ActionTimeout time.Duration
}

// Server wires HTTP routes to the room registry.
type Server struct {
	reg           *room.Registry
	hub           *Hub
	lib           *scenario.Library
	metrics       *metrics.Collector
	actionTimeout time.Duration
	upgrader      websocket.Upgrader
}

func NewServer(opts Options) *Server {
	s := &Server{
		reg:           opts.Registry,
		hub:           opts.Hub,
		lib:           opts.Library,
		metrics:       opts.Metrics,
		actionTimeout: opts.ActionTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = DefaultActionTimeout
	}
	return s
}

// Hub is the broadcaster rooms should publish to.
func (s *Server) Hub() *Hub { return s.hub }

// Router exposes the handler used for both the portal relay and the optional
// local listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", s.handleWebSocket)
	r.Get("/rooms", s.listRooms)
	r.Get("/rooms/{id}", s.getRoom)
	r.Post("/rooms/{id}/actions", s.postAction)
	r.Get("/scenarios", s.listScenarios)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func (s *Server) do(rm *room.Room, a room.Action) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
	defer cancel()
	return rm.Do(ctx, a)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := q.Get("room")
	role := room.Role(q.Get("role"))
	user := q.Get("user")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if !role.Valid() {
		http.Error(w, "role must be controlling or monitoring", http.StatusBadRequest)
		return
	}
	if user == "" {
		user = "guest-" + uuid.NewString()[:8]
	}
	rm, err := s.reg.CreateOrGet(roomID)
	if err != nil {
		res := resultOf(err)
		http.Error(w, res.Reason, statusOf(res.Code))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("[transport] upgrade websocket")
		return
	}

	client := newClient(s, conn, rm, role, user)
	client.unsubscribe = s.hub.Subscribe(roomID, client)
	if err := s.do(rm, room.Join(role, room.Identity{Kind: room.Human, Name: user})); err != nil {
		client.unsubscribe()
		res := resultOf(err)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(ServerEvent{Type: EventError, Room: roomID, Action: room.ActionJoin, Code: res.Code, Reason: res.Reason})
		_ = conn.Close()
		log.Warn().Err(err).Str("room", roomID).Str("user", user).Msg("[transport] join failed")
		return
	}

	client.push(ServerEvent{Type: EventWelcome, Room: roomID, Role: role, User: user})
	var history []room.ChatLine
	ctx, cancel := context.WithTimeout(r.Context(), s.actionTimeout)
	err = rm.Query(ctx, func(st *room.State) {
		history = append(history, st.Transcript...)
	})
	cancel()
	if err == nil && len(history) > 0 {
		client.push(ServerEvent{Type: EventHistory, Room: roomID, History: history})
	}
	snap := rm.Last()
	client.push(ServerEvent{Type: EventSnapshot, Room: roomID, Snapshot: &snap})

	go client.writeLoop()
	client.readLoop()
}

type roomSummary struct {
	ID          string     `json:"id"`
	Scenario    string     `json:"scenario"`
	Phase       room.Phase `json:"phase"`
	Tick        uint64     `json:"tick"`
	ElapsedTime float64    `json:"elapsedTime"`
	Score       int        `json:"score"`
	Subscribers int        `json:"subscribers"`
}

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	out := make([]roomSummary, 0)
	for _, id := range s.reg.List() {
		rm, ok := s.reg.Get(id)
		if !ok {
			continue
		}
		snap := rm.Last()
		out = append(out, roomSummary{
			ID:          id,
			Scenario:    snap.Scenario,
			Phase:       snap.Phase,
			Tick:        snap.Tick,
			ElapsedTime: snap.ElapsedTime,
			Score:       snap.Score,
			Subscribers: s.hub.Subscribers(id),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.reg.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, resultOf(room.ErrInvalidRoom))
		return
	}
	writeJSON(w, http.StatusOK, rm.Last())
}

// postAction lets automated providers and tools act without a websocket. A
// join creates the room on first use; every other action needs a running
// room.
func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var a room.Action
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err := dec.Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResult{Code: room.CodeInvalidAction, Reason: "invalid json"})
		return
	}

	var rm *room.Room
	var err error
	if a.Kind == room.ActionJoin {
		rm, err = s.reg.CreateOrGet(id)
	} else if found, ok := s.reg.Get(id); ok {
		rm = found
	} else {
		err = room.ErrInvalidRoom
	}
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.actionTimeout)
		err = rm.Do(ctx, a)
		cancel()
	}
	res := resultOf(err)
	writeJSON(w, statusOf(res.Code), res)
}

type scenarioSummary struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Duration    float64 `json:"duration"`
	Events      int     `json:"events"`
	Concurrent  bool    `json:"concurrent,omitempty"`
	WrapUp      bool    `json:"wrapUp,omitempty"`
}

func (s *Server) listScenarios(w http.ResponseWriter, _ *http.Request) {
	out := make([]scenarioSummary, 0)
	if s.lib != nil {
		for _, key := range s.lib.ScenarioKeys() {
			sc, _ := s.lib.Scenario(key)
			out = append(out, scenarioSummary{
				Key:         sc.Key,
				Name:        sc.Name,
				Description: sc.Description,
				Duration:    float64(sc.Duration),
				Events:      len(sc.Events),
				Concurrent:  sc.Concurrent,
				WrapUp:      sc.WrapUp,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": out})
}

func statusOf(code string) int {
	switch code {
	case room.CodeOK:
		return http.StatusOK
	case room.CodeInvalidRoom:
		return http.StatusNotFound
	case room.CodeInvalidAction:
		return http.StatusBadRequest
	case room.CodeClosed:
		return http.StatusGone
	case room.CodeTimeout:
		return http.StatusGatewayTimeout
	case room.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		log.Debug().Err(err).Msg("[transport] write response")
	}
}
