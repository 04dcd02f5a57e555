// Package httpapi serves chat sessions over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/toolchat/internal/runtime"
	"github.com/user/toolchat/internal/state"
	"github.com/user/toolchat/internal/types"
)

// ChatHandler runs one turn in the session for key and returns the reply.
type ChatHandler func(ctx context.Context, key types.SessionKey, text string) (string, error)

// Server is the HTTP handler for the chat API.
type Server struct {
	sessions *state.SessionStore
	registry *runtime.Registry
	handler  ChatHandler
	mux      *http.ServeMux
}

// NewServer creates a Server. handler normally wraps Gateway.Ask so HTTP
// turns share per-session ordering with other front-ends.
func NewServer(sessions *state.SessionStore, registry *runtime.Registry, handler ChatHandler) *Server {
	s := &Server{
		sessions: sessions,
		registry: registry,
		handler:  handler,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /api/tools", s.handleTools)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{key}/turns", s.handleTurns)
	s.mux.HandleFunc("POST /api/sessions/{key}/reset", s.handleReset)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	SessionKey string `json:"session_key"`
	Text       string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionKey == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "session_key and text are required")
		return
	}

	reply, err := s.handler(r.Context(), types.SessionKey(req.SessionKey), req.Text)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "request cancelled")
			return
		}
		slog.Error("chat turn failed", "session_key", req.SessionKey, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type toolResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	result := make([]toolResponse, 0, len(all))
	for _, t := range all {
		result = append(result, toolResponse{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

type sessionResponse struct {
	SessionKey string `json:"session_key"`
	SessionID  string `json:"session_id"`
	Turns      int    `json:"turns"`
	CreatedAt  string `json:"created_at"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.List(r.Context())
	result := make([]sessionResponse, 0, len(infos))
	for _, info := range infos {
		result = append(result, sessionResponse{
			SessionKey: string(info.SessionKey),
			SessionID:  string(info.SessionID),
			Turns:      info.Turns,
			CreatedAt:  info.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

type turnResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	sess, err := s.sessions.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	turns := sess.Snapshot()
	result := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		result = append(result, turnResponse{Role: string(t.Role), Content: t.Content})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	sess := s.sessions.Reset(r.Context(), key)
	slog.Info("session reset", "session_key", string(key), "session_id", string(sess.ID()))
	writeJSON(w, http.StatusOK, map[string]string{"session_id": string(sess.ID())})
}
