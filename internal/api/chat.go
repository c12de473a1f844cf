package api

import (
	"net/http"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/go-chi/chi/v5"
)

// intentResponse is returned by POST /chat/intent.
type intentResponse struct {
	SessionID string        `json:"sessionId"`
	Intent    domain.Intent `json:"intent"`
	Role      domain.Role   `json:"role"`
}

// HandleSummaries handles GET /api/v1/chat/history.
func (h *Handler) HandleSummaries(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	summaries, err := h.svc.Summaries(r.Context(), sess)
	if err != nil {
		h.logger.Error("Failed to list conversation summaries", "error", err, "user_id", sess.UserID)
		Error(w, http.StatusInternalServerError, "Unable to load conversation history.")
		return
	}
	JSON(w, http.StatusOK, summaries)
}

// HandleHistory handles GET /api/v1/chat/history/{sessionId}.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	turns, err := h.svc.History(r.Context(), sess, sessionID)
	if err != nil {
		h.logger.Error("Failed to load conversation session", "error", err, "user_id", sess.UserID, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "Unable to load conversation session.")
		return
	}
	JSON(w, http.StatusOK, turns)
}

// HandleIntent handles POST /api/v1/chat/intent.
func (h *Handler) HandleIntent(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var req domain.TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, sessionID, err := h.svc.Classify(r.Context(), sess, req)
	if err != nil {
		writeServiceError(w, err, msgIntentFailed)
		return
	}
	JSON(w, http.StatusOK, intentResponse{SessionID: sessionID, Intent: res.Intent, Role: res.Role})
}

// HandleRespond handles POST /api/v1/chat/respond.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var req domain.TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.svc.Respond(r.Context(), sess, req)
	if err != nil {
		writeServiceError(w, err, msgRespondFailed)
		return
	}
	JSON(w, http.StatusOK, resp)
}
