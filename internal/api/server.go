package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/feedbackhq/feedbackhq/internal/auth"
	"github.com/feedbackhq/feedbackhq/internal/feedback"
	"github.com/feedbackhq/feedbackhq/internal/logutil"
	"github.com/feedbackhq/feedbackhq/internal/ratelimit"
	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/token"
	"github.com/feedbackhq/feedbackhq/internal/workspace"
)

// Server bundles the domain services behind one HTTP router.
type Server struct {
	db         store.Driver
	tokens     *token.Service
	auth       *auth.Service
	workspaces *workspace.Service
	feedback   *feedback.Service
	limiter    *ratelimit.Limiter
	validate   *validator.Validate
	log        *slog.Logger
}

// Options configures a Server. Limiter is optional; without it the OTP
// endpoints run unthrottled.
type Options struct {
	DB         store.Driver
	Tokens     *token.Service
	Auth       *auth.Service
	Workspaces *workspace.Service
	Feedback   *feedback.Service
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	return &Server{
		db:         opts.DB,
		tokens:     opts.Tokens,
		auth:       opts.Auth,
		workspaces: opts.Workspaces,
		feedback:   opts.Feedback,
		limiter:    opts.Limiter,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        logutil.NoopIfNil(opts.Logger),
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// OTP endpoints are throttled per client address.
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/auth/signup/request", s.handleSignupRequest)
			r.Post("/auth/signup/verify", s.handleSignupVerify)
			r.Post("/auth/signin/request", s.handleSigninRequest)
			r.Post("/auth/signin/verify", s.handleSigninVerify)
		})

		// Developer surface authenticates with the emailed view token, not
		// a session.
		r.Get("/view-feedback/{feedbackID}", s.handleViewFeedback)
		r.Post("/view-feedback/{feedbackID}/action", s.handleDeveloperAction)
		r.Get("/developers/feedback", s.handleDeveloperFeedback)

		r.Get("/workspaces/lookup", s.handleWorkspaceLookup)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/me", s.handleMe)
			r.Post("/me/onboarding", s.handleCompleteOnboarding)

			r.Post("/workspaces", s.handleCreateWorkspace)
			r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
				r.Get("/members", s.handleListMembers)
				r.Post("/collaborators", s.handleInviteCollaborator)
				r.Get("/feedback", s.handleListFeedback)
				r.Post("/feedback", s.handleCreateFeedback)
				r.Get("/feedback/drafts", s.handleListDrafts)
				r.Get("/feedback/search", s.handleSearchFeedback)
			})

			r.Route("/feedback/{feedbackID}", func(r chi.Router) {
				r.Get("/", s.handleGetFeedback)
				r.Patch("/", s.handleUpdateFeedback)
				r.Delete("/", s.handleDeleteFeedback)
				r.Post("/share", s.handleShareFeedback)
				r.Post("/attachment", s.handleUploadAttachment)
				r.Post("/voice", s.handleUploadVoice)
			})
		})
	})
	return r
}

// decodeJSON unmarshals the request body into dst and validates it.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadBody
	}
	return s.validate.Struct(dst)
}

var errBadBody = errors.New("malformed request body")

// writeDecodeError classifies a decodeJSON failure.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadBody) {
		WriteError(w, http.StatusBadRequest, ReasonBadRequest, "malformed request body")
		return
	}
	WriteServiceError(w, err)
}

// uintParam parses a numeric chi URL parameter.
func uintParam(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
