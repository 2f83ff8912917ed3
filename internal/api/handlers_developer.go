package api

import (
	"net/http"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

type developerActionRequest struct {
	Action string `json:"action" validate:"required,oneof=acknowledged unclear"`
}

// verifyDeveloperToken checks the emailed view token against the developer
// query parameter. The token subject is the developer's email.
func (s *Server) verifyDeveloperToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := r.URL.Query().Get("developer")
	raw := r.URL.Query().Get("token")
	if email == "" || raw == "" {
		WriteError(w, http.StatusUnauthorized, ReasonUnauthenticated, "token and developer query parameters are required")
		return "", false
	}
	subject, err := s.tokens.Verify(raw)
	if err != nil {
		WriteServiceError(w, err)
		return "", false
	}
	if subject != email {
		WriteError(w, http.StatusForbidden, ReasonForbidden, "token is not valid for this developer")
		return "", false
	}
	return email, true
}

// handleViewFeedback serves the tokenized developer view of a shared item.
func (s *Server) handleViewFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	email, ok := s.verifyDeveloperToken(w, r)
	if !ok {
		return
	}

	dev, err := s.db.GetDeveloperByEmail(r.Context(), email)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	link, err := s.db.GetFeedbackDeveloper(r.Context(), feedbackID, dev.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	fb, err := s.db.GetFeedback(r.Context(), feedbackID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": fb,
		"status":   link.Status,
	})
}

// handleDeveloperAction records an acknowledged/unclear response.
func (s *Server) handleDeveloperAction(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	email, ok := s.verifyDeveloperToken(w, r)
	if !ok {
		return
	}
	var req developerActionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	link, err := s.feedback.RecordDeveloperAction(r.Context(), feedbackID, email, store.AssignmentStatus(req.Action))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// handleDeveloperFeedback lists everything routed to a developer. Pending
// email-keyed assignments are resolved on the way so the listing is complete.
func (s *Server) handleDeveloperFeedback(w http.ResponseWriter, r *http.Request) {
	email, ok := s.verifyDeveloperToken(w, r)
	if !ok {
		return
	}

	dev, err := s.db.GetDeveloperByEmail(r.Context(), email)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if err := s.feedback.ResolvePendingAssignments(r.Context(), dev); err != nil {
		WriteServiceError(w, err)
		return
	}
	items, err := s.feedback.ListAssignedToDeveloper(r.Context(), email)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}
