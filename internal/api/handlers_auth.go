package api

import (
	"net/http"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=255"`
}

type signinRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (s *Server) handleSignupRequest(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := s.auth.RequestSignupOTP(r.Context(), req.Email, req.FullName); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func (s *Server) handleSignupVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	user, tok, err := s.auth.VerifySignupOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: tok, User: user})
}

func (s *Server) handleSigninRequest(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := s.auth.RequestSigninOTP(r.Context(), req.Email); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func (s *Server) handleSigninVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	user, tok, err := s.auth.VerifySigninOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: tok, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r))
}

func (s *Server) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if err := s.workspaces.CompleteOnboarding(r.Context(), user); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
