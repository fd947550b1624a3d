// Package httpapi exposes an introspection server, with pause/resume
// controls, over a scheduler.Scheduler.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/BakaMMGameMaker/event-scheduler/scheduler"
)

// Server exposes a scheduler.Scheduler's read-only state and
// pause/resume controls over HTTP.
type Server struct {
	sched      *scheduler.Scheduler
	portNumber int
}

// NewServer creates a Server for sched.
func NewServer(sched *scheduler.Scheduler) *Server {
	return &Server{sched: sched}
}

// WithPortNumber sets the port to listen on. Ports below 1000 are
// rejected in favor of letting the OS assign one.
func (s *Server) WithPortNumber(portNumber int) *Server {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"port number %d is not allowed for the scheduler http api, "+
				"using a random port instead\n", portNumber)
		portNumber = 0
	}

	s.portNumber = portNumber

	return s
}

// Start opens a listener and serves in a background goroutine,
// returning the address actually bound.
func (s *Server) Start() (net.Addr, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/now", s.now)
	r.HandleFunc("/api/size", s.size)
	r.HandleFunc("/api/fires", s.fireCount)
	r.HandleFunc("/api/peek", s.peek)
	r.HandleFunc("/api/is_alive/{index}/{generation}", s.isAlive)
	r.HandleFunc("/api/pause", s.pause)
	r.HandleFunc("/api/resume", s.resume)

	actualPort := ":0"
	if s.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(s.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return nil, fmt.Errorf("httpapi: listen: %w", err)
	}

	go func() {
		if err := http.Serve(listener, r); err != nil && err != http.ErrServerClosed {
			log.Printf("httpapi: serve: %v", err)
		}
	}()

	return listener.Addr(), nil
}

func (s *Server) now(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]scheduler.TimeMs{"now": s.sched.Now()})
}

func (s *Server) size(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]int{"size": s.sched.Size()})
}

func (s *Server) fireCount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]uint64{"fire_count": s.sched.FireCount()})
}

func (s *Server) peek(w http.ResponseWriter, _ *http.Request) {
	h, nextFire, ok := s.sched.Peek()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, map[string]any{
		"handle_index":      h.Index,
		"handle_generation": h.Generation,
		"next_fire":         nextFire,
	})
}

func (s *Server) isAlive(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	generation, err := strconv.ParseUint(mux.Vars(r)["generation"], 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h := scheduler.EventHandle{Index: uint32(index), Generation: uint32(generation)}
	writeJSON(w, map[string]bool{"alive": s.sched.IsAlive(h)})
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.sched.Pause()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	if err := s.sched.Resume(); err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}
