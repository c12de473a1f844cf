// Package api provides HTTP handlers for the Eduvane gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/gateway"
	"github.com/ashureev/eduvane/internal/identity"
	"github.com/ashureev/eduvane/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	msgNoSession     = "No active session."
	msgInvalidInput  = "Invalid input."
	msgBodyTooLarge  = "Request body too large."
	msgRespondFailed = "Unable to complete Eduvane orchestration request."
	msgIntentFailed  = "Unable to classify request intent."
)

// Handler serves the session and chat routes.
type Handler struct {
	svc       *gateway.Service
	overrides *identity.RoleOverrides
	repo      store.Repository
	logger    *slog.Logger
}

// NewHandler creates a Handler. overrides may be nil, which disables role changes.
func NewHandler(svc *gateway.Service, overrides *identity.RoleOverrides, repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, overrides: overrides, repo: repo, logger: logger}
}

// RegisterRoutes mounts the API on r. Session middleware must already be installed.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", h.HandleHealth)
		r.Route("/session", func(r chi.Router) {
			r.Get("/me", h.HandleMe)
			r.Post("/role", h.HandleSetRole)
		})
		r.Route("/chat", func(r chi.Router) {
			r.Get("/history", h.HandleSummaries)
			r.Get("/history/{sessionId}", h.HandleHistory)
			r.Post("/intent", h.HandleIntent)
			r.Post("/respond", h.HandleRespond)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// session returns the caller's session or writes a 401.
func session(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
	sess, ok := identity.FromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, msgNoSession)
	}
	return sess, ok
}

// decodeJSON reads a JSON body. It writes the error response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return false
		}
		Error(w, http.StatusBadRequest, msgInvalidInput)
		return false
	}
	return true
}

// writeServiceError maps gateway errors to status codes.
func writeServiceError(w http.ResponseWriter, err error, upstreamMsg string) {
	var verr *gateway.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, gateway.ErrNoSession):
		Error(w, http.StatusUnauthorized, msgNoSession)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusServiceUnavailable, "Request cancelled.")
	default:
		Error(w, http.StatusBadGateway, upstreamMsg)
	}
}
