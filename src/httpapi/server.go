// Package httpapi exposes the memory orchestrator as a thin JSON service.
// Request validation lives here; tier fan-out and failure policy live in
// the memory package.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthside/memoryd/src/config"
	"github.com/hearthside/memoryd/src/memory"
	"github.com/hearthside/memoryd/src/memory/model"
	"github.com/hearthside/memoryd/src/observability"
)

// ContextService is the slice of the orchestrator the HTTP layer uses.
type ContextService interface {
	GetContext(ctx context.Context, userID, conversationID, query string) (*model.MemoryContext, error)
	SaveContext(ctx context.Context, userID, conversationID, messageType, content string, metadata map[string]any) error
	SearchMemories(ctx context.Context, query, userID string, limit int) ([]model.SearchResult, error)
	CacheUserContext(ctx context.Context, userID string, data map[string]any) error
	CachedUserContext(ctx context.Context, userID string) (map[string]any, error)
}

type Server struct {
	cfg     config.Config
	svc     ContextService
	metrics *observability.Metrics
}

func New(cfg config.Config, svc ContextService, metrics *observability.Metrics) *Server {
	return &Server{cfg: cfg, svc: svc, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Post("/v1/memory/context", s.handleContext)
	r.Post("/v1/memory/turns", s.handleSaveTurn)
	r.Post("/v1/memory/search", s.handleSearch)
	r.Get("/v1/users/{id}/context", s.handleUserContext)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type contextRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mc, err := s.svc.GetContext(r.Context(), req.UserID, req.ConversationID, req.Query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Refresh the hot-cache copy of the profile so subsequent profile
	// lookups skip the structured store.
	if len(mc.StructuredData) > 0 {
		go func(userID string, data map[string]any) {
			if err := s.svc.CacheUserContext(context.Background(), userID, data); err != nil {
				log.Printf("httpapi: user context cache refresh failed: %v", err)
			}
		}(mc.UserID, mc.StructuredData)
	}
	writeJSON(w, http.StatusOK, mc)
}

type saveTurnRequest struct {
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	MessageType    string         `json:"message_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) handleSaveTurn(w http.ResponseWriter, r *http.Request) {
	var req saveTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.svc.SaveContext(r.Context(), req.UserID, req.ConversationID, req.MessageType, req.Content, req.Metadata); err != nil {
		writeServiceError(w, err)
		return
	}
	// Accepted, not created: per-tier persistence is best effort and only
	// observable via logs and metrics.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	results, err := s.svc.SearchMemories(r.Context(), req.Query, req.UserID, req.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleUserContext(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	data, err := s.svc.CachedUserContext(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("httpapi: internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}
