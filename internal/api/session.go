package api

import (
	"net/http"

	"github.com/ashureev/eduvane/internal/domain"
)

type sessionResponse struct {
	UserID string          `json:"userId"`
	Role   domain.Role     `json:"role"`
	Email  string          `json:"email,omitempty"`
	Mode   domain.AuthMode `json:"authMode"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleMe handles GET /api/v1/session/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sessionResponse{UserID: sess.UserID, Role: sess.Role, Email: sess.Email, Mode: sess.Mode})
}

// HandleSetRole handles POST /api/v1/session/role.
func (h *Handler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Only the exact upper-case values are accepted.
	role := domain.Role(req.Role)
	if !role.Known() {
		Error(w, http.StatusBadRequest, "Role must be TEACHER or STUDENT.")
		return
	}
	if h.overrides == nil {
		Error(w, http.StatusServiceUnavailable, "Role storage is not configured.")
		return
	}
	if err := h.overrides.Set(r.Context(), sess.UserID, role); err != nil {
		h.logger.Error("Failed to store role override", "error", err, "user_id", sess.UserID)
		Error(w, http.StatusInternalServerError, "Unable to update role.")
		return
	}
	h.logger.Info("Role override stored", "user_id", sess.UserID, "role", role)
	JSON(w, http.StatusOK, sessionResponse{UserID: sess.UserID, Role: role, Email: sess.Email, Mode: sess.Mode})
}
