// Package server streams simulation events to a front end over WebSocket
// and accepts traffic-injection commands over a small REST surface.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/metrics"
)

var upgrader = websocket.Upgrader{
	// The visualiser runs from file:// during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Injector receives decoded send commands.
type Injector func(from, dest mesh.Addr, payload string)

// Server exposes /ws, /inject and /metrics.
type Server struct {
	bus    *eb.Bus
	coll   *metrics.Collector
	inject Injector
}

func New(bus *eb.Bus, coll *metrics.Collector, inject Injector) *Server {
	return &Server{bus: bus, coll: coll, inject: inject}
}

// wsHandler upgrades the connection and pushes bus events as JSON.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events := s.bus.Subscribe()
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("[server] write error: %v", err)
			return
		}
	}
}

type injectRequest struct {
	From    string `json:"from"`
	Dest    string `json:"dest"`
	Payload string `json:"payload"`
}

// injectHandler accepts {"from": "10.1.1.1", "dest": "10.1.1.3", "payload": "hi"}.
func (s *Server) injectHandler(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := mesh.ParseAddr(req.From)
	if err != nil {
		http.Error(w, "invalid from address", http.StatusBadRequest)
		return
	}
	dest, err := mesh.ParseAddr(req.Dest)
	if err != nil {
		http.Error(w, "invalid dest address", http.StatusBadRequest)
		return
	}
	s.inject(from, dest, req.Payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.coll.Snapshot()); err != nil {
		log.Printf("[server] metrics encode: %v", err)
	}
}

// Start serves on addr in a background goroutine.
func (s *Server) Start(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/inject", s.injectHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)

	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[server] %v", err)
		}
	}()
}
