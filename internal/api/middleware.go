package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

// extractToken pulls the bearer token from the Authorization header, falling
// back to the session cookie.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

// requireAuth verifies the session token and loads the principal into the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			WriteError(w, http.StatusUnauthorized, ReasonUnauthenticated, "missing credentials")
			return
		}
		subject, err := s.tokens.Verify(raw)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		userID, err := strconv.ParseUint(subject, 10, 64)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, ReasonInvalidToken, "invalid token subject")
			return
		}
		user, err := s.db.GetUser(r.Context(), uint(userID))
		if err != nil {
			WriteError(w, http.StatusUnauthorized, ReasonInvalidToken, "unknown principal")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFrom returns the authenticated principal. Only valid behind requireAuth.
func userFrom(r *http.Request) *store.User {
	return r.Context().Value(userContextKey).(*store.User)
}

// accessLog emits one structured line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
