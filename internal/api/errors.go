// Package api provides the HTTP surface: routing, request validation, and
// error envelopes with stable reason codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/auth"
	"github.com/feedbackhq/feedbackhq/internal/feedback"
	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/token"
	"github.com/feedbackhq/feedbackhq/internal/workspace"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated = "unauthenticated"
	ReasonInvalidToken    = "invalid_token"
	ReasonTokenExpired    = "token_expired"
	ReasonForbidden       = "forbidden"
	ReasonNotInvited      = "not_invited"

	// OTP lifecycle
	ReasonNoPendingCode = "no_pending_code"
	ReasonCodeExpired   = "code_expired"
	ReasonIncorrectCode = "incorrect_code"
	ReasonLocked        = "locked"
	ReasonResendLimit   = "resend_limit_reached"

	// Request validation
	ReasonBadRequest       = "bad_request"
	ReasonValidationFailed = "validation_failed"
	ReasonNotFound         = "not_found"
	ReasonConflict         = "conflict"
	ReasonNameTaken        = "name_taken"
	ReasonInvalidState     = "invalid_state"

	// Uploads
	ReasonUnsupportedMedia = "unsupported_media"
	ReasonTooLarge         = "too_large"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Server errors
	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "Forbidden")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message

	// Suggestions carries untaken alternatives on a name collision.
	Suggestions []string `json:"suggestions,omitempty"`

	// Fields carries per-field validation failures.
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	writeErrorDetail(w, statusCode, ErrorDetail{
		Code:       http.StatusText(statusCode),
		ReasonCode: reasonCode,
		Message:    message,
	})
}

func writeErrorDetail(w http.ResponseWriter, statusCode int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorEnvelope{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps domain sentinel errors onto HTTP status codes and
// reason codes. Unknown errors become opaque 500s.
func WriteServiceError(w http.ResponseWriter, err error) {
	var nameTaken *workspace.NameTakenError
	if errors.As(err, &nameTaken) {
		writeErrorDetail(w, http.StatusConflict, ErrorDetail{
			Code:        http.StatusText(http.StatusConflict),
			ReasonCode:  ReasonNameTaken,
			Message:     nameTaken.Error(),
			Suggestions: nameTaken.Suggestions,
		})
		return
	}

	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		fields := make(map[string]string, len(invalid))
		for _, fe := range invalid {
			fields[fe.Field()] = fe.Tag()
		}
		writeErrorDetail(w, http.StatusBadRequest, ErrorDetail{
			Code:       http.StatusText(http.StatusBadRequest),
			ReasonCode: ReasonValidationFailed,
			Message:    "request validation failed",
			Fields:     fields,
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, ReasonNotFound, "resource not found")
	case errors.Is(err, store.ErrAlreadyExists):
		WriteError(w, http.StatusConflict, ReasonConflict, "resource already exists")
	case errors.Is(err, access.ErrForbidden):
		WriteError(w, http.StatusForbidden, ReasonForbidden, "not allowed")

	case errors.Is(err, auth.ErrUserExists):
		WriteError(w, http.StatusConflict, ReasonConflict, "account already exists")
	case errors.Is(err, auth.ErrNotInvited):
		WriteError(w, http.StatusForbidden, ReasonNotInvited, "no account or invitation for this email")
	case errors.Is(err, auth.ErrNoPendingCode):
		WriteError(w, http.StatusNotFound, ReasonNoPendingCode, "no pending code for this email")
	case errors.Is(err, auth.ErrCodeExpired):
		WriteError(w, http.StatusBadRequest, ReasonCodeExpired, "code expired, request a new one")
	case errors.Is(err, auth.ErrCodeIncorrect):
		WriteError(w, http.StatusBadRequest, ReasonIncorrectCode, "incorrect code")
	case errors.Is(err, auth.ErrLocked):
		WriteError(w, http.StatusTooManyRequests, ReasonLocked, "too many failed attempts, try again later")
	case errors.Is(err, auth.ErrResendLimit):
		WriteError(w, http.StatusTooManyRequests, ReasonResendLimit, "resend limit reached, try again later")

	case errors.Is(err, feedback.ErrInvalidState):
		WriteError(w, http.StatusConflict, ReasonInvalidState, "operation not valid in the current state")
	case errors.Is(err, feedback.ErrUnsupportedMedia):
		WriteError(w, http.StatusUnsupportedMediaType, ReasonUnsupportedMedia, "unsupported file type")
	case errors.Is(err, feedback.ErrTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, ReasonTooLarge, "file exceeds the size limit")

	case errors.Is(err, token.ErrTokenExpired):
		WriteError(w, http.StatusUnauthorized, ReasonTokenExpired, "token expired")
	case errors.Is(err, token.ErrInvalidToken):
		WriteError(w, http.StatusUnauthorized, ReasonInvalidToken, "invalid token")

	default:
		WriteError(w, http.StatusInternalServerError, ReasonInternalError, "internal error")
	}
}
