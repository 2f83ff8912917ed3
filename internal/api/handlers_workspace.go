package api

import (
	"net/http"

	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/workspace"
)

type collaboratorInvite struct {
	Email       string `json:"email" validate:"required,email"`
	AccessLevel string `json:"access_level" validate:"omitempty,oneof=comment edit"`
}

type createWorkspaceRequest struct {
	Name          string               `json:"name" validate:"required,max=255"`
	Type          string               `json:"type" validate:"omitempty,max=100"`
	Purpose       string               `json:"purpose" validate:"omitempty,max=100"`
	Role          string               `json:"role" validate:"omitempty,max=100"`
	IconURL       string               `json:"icon_url" validate:"omitempty,url,max=255"`
	Collaborators []collaboratorInvite `json:"collaborators" validate:"omitempty,dive"`
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	in := workspace.CreateInput{
		Name:    req.Name,
		Type:    req.Type,
		Purpose: req.Purpose,
		Role:    req.Role,
		IconURL: req.IconURL,
	}
	for _, c := range req.Collaborators {
		in.Collaborators = append(in.Collaborators, workspace.CollaboratorInvite{
			Email:       c.Email,
			AccessLevel: store.AccessLevel(c.AccessLevel),
		})
	}

	ws, err := s.workspaces.Create(r.Context(), userFrom(r), in)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleWorkspaceLookup(w http.ResponseWriter, r *http.Request) {
	subdomain := r.URL.Query().Get("subdomain")
	if subdomain == "" {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "subdomain query parameter is required")
		return
	}
	ws, err := s.workspaces.BySubdomain(r.Context(), subdomain)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	members, err := s.workspaces.Members(r.Context(), workspaceID, userFrom(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *Server) handleInviteCollaborator(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := uintParam(r, "workspaceID")
	if !ok {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "invalid workspace id")
		return
	}
	var req collaboratorInvite
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	c, err := s.workspaces.InviteCollaborator(r.Context(), workspaceID, userFrom(r), req.Email, store.AccessLevel(req.AccessLevel))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
