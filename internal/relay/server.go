package relay

import (
	"encoding/json"
	"net/http"
	"sync"

	"marlin/internal/domain"
)

// Server is an in-memory relay: it accepts published events and answers
// filtered fetches. It intentionally provides no ordering or delivery
// guarantees beyond "what was stored matches the filter", mirroring the
// public relay network the client is written against.
type Server struct {
	mu     sync.RWMutex
	events []domain.Envelope
	byID   map[domain.EnvelopeID]bool
}

// NewServer returns an empty relay.
func NewServer() *Server {
	return &Server{byID: make(map[domain.EnvelopeID]bool)}
}

// Handler exposes the relay's HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/publish", s.handlePublish)
	mux.HandleFunc("/fetch", s.handleFetch)
	return mux
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if env.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	if !s.byID[env.ID] {
		s.byID[env.ID] = true
		s.events = append(s.events, env)
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var f domain.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.RLock()
	out := make([]domain.Envelope, 0)
	for _, env := range s.events {
		if f.Matches(env) {
			out = append(out, env)
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	s.mu.RUnlock()
	_ = json.NewEncoder(w).Encode(out)
}

// Count reports how many events the relay holds. Used by tests.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
