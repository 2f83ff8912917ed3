package api

import (
	"context"
	"io"
	"net/http"

	"github.com/feedbackhq/feedbackhq/internal/feedback"
	"github.com/feedbackhq/feedbackhq/internal/store"
)

// maxUploadMemory bounds multipart form buffering; larger parts spill to disk.
const maxUploadMemory = 8 << 20

type feedbackGrant struct {
	Email       string `json:"email" validate:"required,email"`
	AccessLevel string `json:"access_level" validate:"omitempty,oneof=comment edit"`
}

type createFeedbackRequest struct {
	Name          string          `json:"name" validate:"required,max=255"`
	URL           string          `json:"url" validate:"omitempty,max=500"`
	Message       string          `json:"message" validate:"omitempty"`
	Collaborators []feedbackGrant `json:"collaborators" validate:"omitempty,dive"`
}

type updateFeedbackRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	URL     *string `json:"url" validate:"omitempty,max=500"`
	Message *string `json:"message" validate:"omitempty"`
}

type shareFeedbackRequest struct {
	Emails []string `json:"emails" validate:"required,min=1,dive,email"`
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	var req createFeedbackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	in := feedback.CreateInput{
		Name:    req.Name,
		URL:     req.URL,
		Message: req.Message,
	}
	for _, g := range req.Collaborators {
		in.Collaborators = append(in.Collaborators, feedback.CollaboratorGrant{
			Email:       g.Email,
			AccessLevel: store.AccessLevel(g.AccessLevel),
		})
	}

	fb, err := s.feedback.Create(r.Context(), workspaceID, userFrom(r), in)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	fb, err := s.feedback.Get(r.Context(), feedbackID, userFrom(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) handleUpdateFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	var req updateFeedbackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	fb, err := s.feedback.Update(r.Context(), feedbackID, userFrom(r), feedback.UpdateInput{
		Name:    req.Name,
		URL:     req.URL,
		Message: req.Message,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	if err := s.feedback.Delete(r.Context(), feedbackID, userFrom(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	items, err := s.feedback.ListByWorkspace(r.Context(), workspaceID, userFrom(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	items, err := s.feedback.ListDrafts(r.Context(), workspaceID, userFrom(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleSearchFeedback(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "q query parameter is required")
		return
	}
	items, err := s.feedback.Search(r.Context(), workspaceID, userFrom(r), query)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleShareFeedback(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	var req shareFeedbackRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	results, err := s.feedback.ShareWithDevelopers(r.Context(), feedbackID, userFrom(r), req.Emails)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shared": results})
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.feedback.UploadAttachment)
}

func (s *Server) handleUploadVoice(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.feedback.UploadVoice)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request,
	save func(ctx context.Context, feedbackID uint, caller *store.User, filename string, src io.Reader) (*store.Feedback, error),
) {
	feedbackID, ok := uintParam(r, "feedbackID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid feedback id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "malformed multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "file form field is required")
		return
	}
	defer file.Close()

	fb, err := save(r.Context(), feedbackID, userFrom(r), header.Filename, file)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
