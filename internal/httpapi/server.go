package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-bidding/internal/dispatch"
	"github.com/example/ride-bidding/internal/ride"
	"github.com/example/ride-bidding/internal/router"
	"github.com/example/ride-bidding/internal/storage"
)

type Server struct {
	Router *router.Router
	Hub    *dispatch.Hub
	Coord  *ride.Coordinator
	Store  storage.Store

	mux    *mux.Router
	logger *slog.Logger
}

func NewServer(rt *router.Router, hub *dispatch.Hub, coord *ride.Coordinator, store storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Router: rt, Hub: hub, Coord: coord, Store: store, mux: mux.NewRouter(), logger: logger}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/api/v1/rides/{request_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{
	// Mobile clients connect from app schemes, not browser origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and runs its read loop. Identity binding
// happens in-band via the connection.register event, not at upgrade time.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connID := newID()
	s.Hub.Add(connID, conn)
	s.logger.Debug("ws_connected", "conn_id", connID)

	defer func() {
		s.Router.HandleDisconnect(r.Context(), connID)
		s.Hub.Remove(connID)
		s.logger.Debug("ws_disconnected", "conn_id", connID)
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.Router.HandleMessage(r.Context(), connID, raw)
	}
}

// handleGetRide is an ops read of the live copy of an active request.
func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["request_id"]
	req, err := s.Coord.Get(r.Context(), id)
	if err != nil {
		// Fall back to the archive for terminal rides.
		if stored, serr := s.Store.GetRide(r.Context(), id); serr == nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(stored)
			return
		}
		http.Error(w, "ride request not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness means storage answers; the engine refuses to run blind.
	if _, err := s.Store.QueryNonTerminal(r.Context()); err != nil {
		http.Error(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
