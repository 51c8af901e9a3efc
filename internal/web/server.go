// Package web is the HTTP surface: POST /chat, GET /metrics, GET /healthz.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/turn"
)

const (
	maxMessageRunes = 2000
	maxThreadIDLen  = 64
	maxRequestBody  = 64 << 10

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server wires the driver to HTTP.
type Server struct {
	driver  *turn.Driver
	metrics *metrics.Registry
	store   session.Store
	httpSrv *http.Server
}

func NewServer(addr string, driver *turn.Driver, m *metrics.Registry, store session.Store) *Server {
	s := &Server{driver: driver, metrics: m, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Printf("[Server] Listening on %s", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
	Receipts bool   `json:"receipts"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageRunes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("message exceeds %d characters", maxMessageRunes))
		return
	}
	if len(req.ThreadID) > maxThreadIDLen {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("threadId exceeds %d characters", maxThreadIDLen))
		return
	}

	// Downstream failures surface as a graceful 200 reply: the driver always
	// produces something sayable.
	resp := s.driver.Handle(r.Context(), turn.Request{
		Message:  req.Message,
		ThreadID: req.ThreadID,
		Receipts: req.Receipts,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleHealth reports liveness plus per-component state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	components := map[string]string{"session": "ok"}
	status := http.StatusOK
	ok := true
	if pinger, can := s.store.(interface{ Ping(context.Context) error }); can {
		if err := pinger.Ping(r.Context()); err != nil {
			components["session"] = "unreachable"
			status = http.StatusServiceUnavailable
			ok = false
		}
	}
	writeJSON(w, status, map[string]any{"ok": ok, "components": components})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
