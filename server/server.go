package dictaserv

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bosley/dictate/controller"
	"github.com/bosley/dictate/history"
)

const (
	MessageState         = "state"
	MessageNotice        = "notice"
	MessageTranscription = "transcription"
)

// Config for the status server
type Config struct {
	Addr string

	// Both set enables TLS
	CertFile string
	KeyFile  string

	// When set, requests must carry it as a bearer token or ?token= parameter
	Token string
}

// History is the read side of the history log.
type History interface {
	Recent(n int) []history.Entry
}

// Message is pushed to websocket subscribers
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type StatePayload struct {
	Mode string `json:"mode"`
}

type NoticePayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Server exposes the controller state and history over HTTP and pushes
// live updates over a websocket. It is a presentation sink: wire it into
// the presenter fan-out to receive state, notices and transcripts.
type Server struct {
	config  Config
	history History
	mode    func() controller.Mode

	subscribers *Subscribers
	upgrader    websocket.Upgrader
	server      *http.Server
}

func New(cfg Config, hist History, mode func() controller.Mode) *Server {
	s := &Server{
		config:      cfg,
		history:     hist,
		mode:        mode,
		subscribers: NewSubscribers(),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkLocalOrigin,
		},
	}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.authenticate)

	router.HandleFunc("/api/state", s.handleState).Methods("GET")
	router.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	return router
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.CertFile != "" && s.config.KeyFile != "" {
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("Status server listening", "address", s.config.Addr, "tls", s.config.CertFile != "")

	select {
	case err, ok := <-errCh:
		if ok {
			slog.Error("HTTP server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.subscribers.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) != 1 {
			slog.Warn("Invalid token received", "remoteAddr", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if origin == allowed || strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatePayload{Mode: s.mode().String()})
}

// handleHistory returns the log oldest first, optionally only the last
// ?limit=N entries.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := s.history.Recent(limit)
	slog.Debug("Sending history", "entries", len(entries), "limit", limit)
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) broadcast(kind string, payload interface{}) {
	if s.subscribers.Len() == 0 {
		return
	}
	data, err := json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		slog.Error("Failed to marshal message", "error", err)
		return
	}
	s.subscribers.Broadcast(data)
}

func (s *Server) SetState(mode controller.Mode) {
	s.broadcast(MessageState, StatePayload{Mode: mode.String()})
}

func (s *Server) Notify(title, message string) {
	s.broadcast(MessageNotice, NoticePayload{Title: title, Message: message})
}

func (s *Server) Publish(entry history.Entry) {
	s.broadcast(MessageTranscription, entry)
}
