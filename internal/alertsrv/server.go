// Package alertsrv exposes the alert ingress HTTP endpoint (A3):
// POST /alert to enqueue an external notification, GET /health for
// liveness checks.
package alertsrv

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaywire/voicebridge/internal/alert"
)

// PresenceChecker reports whether the target speaker is currently in
// the voice channel, for the /alert response's userInVoice field.
type PresenceChecker interface {
	UserInVoice() bool
}

// Server is the alert ingress HTTP server.
type Server struct {
	inbox    *alert.Inbox
	token    string
	presence PresenceChecker
	httpSrv  *http.Server
}

// New builds a Server bound to bindAddr:port. It does not start
// listening until Serve is called.
func New(bindAddr string, port int, token string, inbox *alert.Inbox, presence PresenceChecker) *Server {
	s := &Server{inbox: inbox, token: token, presence: presence}

	mux := http.NewServeMux()
	mux.HandleFunc("/alert", s.handleAlert)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    net.JoinHostPort(bindAddr, fmt.Sprintf("%d", port)),
		Handler: mux,
	}
	return s
}

// Serve blocks until the server stops or errors. Callers typically run
// it in a goroutine and call Shutdown to stop it.
func (s *Server) Serve() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("alert server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("alert server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.httpSrv.Close()
}

type alertRequest struct {
	Message     string `json:"message"`
	Priority    string `json:"priority"`
	FullDetails string `json:"fullDetails"`
	Source      string `json:"source"`
}

type alertResponse struct {
	OK          bool `json:"ok"`
	Queued      bool `json:"queued"`
	UserInVoice bool `json:"userInVoice"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	priority := alert.Normal
	if strings.EqualFold(req.Priority, "urgent") {
		priority = alert.Urgent
	}

	s.inbox.Push(alert.Alert{
		Priority:   priority,
		Message:    req.Message,
		FullDetail: req.FullDetails,
		Source:     req.Source,
		CreatedAt:  time.Now(),
	})

	userInVoice := s.presence != nil && s.presence.UserInVoice()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alertResponse{OK: true, Queued: true, UserInVoice: userInVoice})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return got == s.token
}
