// Package ws is the real-time transport: one WebSocket endpoint per room,
// one for the lobby, and a small REST surface for lobby snapshots. Bearer
// tokens are verified before the upgrade; an unauthenticated request never
// reaches an actor.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"dicee/internal/app"
	"dicee/internal/auth"
	"dicee/internal/config"
	"dicee/internal/domain"
	"dicee/internal/store"
)

// Server owns the actor registry and the HTTP surface.
type Server struct {
	rules    config.Rules
	logger   *slog.Logger
	verifier auth.Verifier
	svc      *app.Service
	store    *store.Store
	lobby    *Lobby
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewServer wires the transport together and starts the lobby actor.
func NewServer(rules config.Rules, verifier auth.Verifier, svc *app.Service, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		rules:    rules,
		logger:   logger,
		verifier: verifier,
		svc:      svc,
		store:    st,
		lobby:    NewLobby(rules, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]*Room),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/lobby", func(r chi.Router) {
		r.Get("/", s.handleLobbySummary)
		r.Get("/rooms", s.handleLobbyRooms)
		r.Get("/online", s.handleLobbyOnline)
	})
	r.Post("/rooms", s.handleCreateRoom)
	r.Get("/rooms/{code}", s.handleRoomSnapshot)

	r.Get("/ws/lobby", s.handleLobbyWS)
	r.Get("/ws/room/{code}", s.handleRoomWS)

	return r
}

// Shutdown stops the lobby actor. Room actors stop themselves when their
// rooms are abandoned; live ones just lose their connections with the process.
func (s *Server) Shutdown() {
	s.lobby.Stop()
}

func (s *Server) handleLobbySummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lobby.Summarize())
}

func (s *Server) handleLobbyRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.lobby.Rooms()})
}

func (s *Server) handleLobbyOnline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.lobby.OnlineUsers()})
}

// handleCreateRoom mints a fresh room code. The room itself comes to life
// when the first WebSocket connection arrives for it.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := domain.NewRoomCode()
		if err != nil {
			http.Error(w, "room code generation failed", http.StatusInternalServerError)
			return
		}
		if _, err := s.store.LoadRoom(r.Context(), code); err == nil {
			continue // collision, extremely unlikely
		}
		writeJSON(w, http.StatusCreated, map[string]string{"code": code})
		return
	}
	http.Error(w, "room code space exhausted", http.StatusServiceUnavailable)
}

func (s *Server) handleRoomSnapshot(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))

	s.mu.Lock()
	room, ok := s.rooms[code]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	snap, ok := room.Snapshot()
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(snap)
}

func (s *Server) handleLobbyWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	conn := s.upgrade(w, r, identity)
	if conn == nil {
		return
	}
	s.lobby.Attach(conn)
}

func (s *Server) handleRoomWS(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !domain.ValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	room, err := s.getOrCreateRoom(code, r)
	if err != nil {
		s.logger.Error("open room", "room", code, "error", err)
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	conn := s.upgrade(w, r, identity)
	if conn == nil {
		return
	}
	room.Attach(conn)
}

// authenticate verifies the bearer token before any upgrade happens. The
// token rides the query string because browser WebSocket clients cannot set
// headers; an Authorization header is honored too.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return Identity{}, false
	}

	claims, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnavailable) {
			http.Error(w, "auth unavailable", http.StatusServiceUnavailable)
		} else {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}
		return Identity{}, false
	}

	return Identity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		AvatarSeed:  r.URL.Query().Get("avatar"),
	}, true
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, identity Identity) *Conn {
	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return nil
	}
	return newConn(wsc, identity, s.logger)
}

// getOrCreateRoom returns the live actor for a code, restoring or creating it
// on first use. Private rooms are opted into with ?private=1 on the creating
// connection; the flag is fixed in the room config from then on.
func (s *Server) getOrCreateRoom(code string, r *http.Request) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[code]; ok {
		return room, nil
	}

	cfg := domain.RoomConfig{
		MaxPlayers:         s.rules.MaxPlayers,
		TurnTimeoutSeconds: s.rules.TurnTimeoutSeconds,
		Public:             r.URL.Query().Get("private") != "1",
		AllowSpectators:    true,
	}
	room, err := NewRoom(code, s.rules, cfg, s.svc, s.store, s.lobby, s.logger, s.removeRoom)
	if err != nil {
		return nil, err
	}
	s.rooms[code] = room
	return room, nil
}

func (s *Server) removeRoom(code string) {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
