package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/lock"
)

// ErrorDetail is the machine code and human message of a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// notFoundBody returns an ErrorResponse for a missing resource.
func notFoundBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "not_found", Message: message}}
}

// validationBody returns an ErrorResponse for a domain validation failure.
// The message is extracted from the wrapped domain.ErrValidation error.
func validationBody(err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: unwrapMessage(err)}}
}

// requestBody returns an ErrorResponse for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}}
}

func conflictBody(code string, err error) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: unwrapMessage(err)}}
}

// errorStatus maps a service error onto a status and body. Order matters:
// ErrRevealNotDue always travels with ErrPrecondition.
func errorStatus(err error) (int, ErrorResponse) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{
			Code: "request_too_large", Message: "request body too large",
		}}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, notFoundBody(unwrapMessage(err))
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, validationBody(err)
	case errors.Is(err, domain.ErrRevealNotDue):
		return http.StatusConflict, conflictBody("reveal_not_due", err)
	case errors.Is(err, domain.ErrConfirmationRequired):
		return http.StatusConflict, conflictBody("confirmation_required", err)
	case errors.Is(err, domain.ErrNoCandidates):
		return http.StatusConflict, conflictBody("no_candidates", err)
	case errors.Is(err, lock.ErrLockNotAcquired):
		return http.StatusConflict, conflictBody("trip_busy", err)
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusConflict, conflictBody("precondition_failed", err)
	}
	return http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code: "internal_error", Message: "internal server error",
	}}
}

// writeError logs unexpected failures and writes the mapped error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// locationPrefix matches the "pkg.Type.Method: " chain errors collect on
// their way up.
var locationPrefix = regexp.MustCompile(`^(?:[a-z]+(?:\.[A-Za-z]+)+: )+`)

var sentinels = []error{
	domain.ErrNotFound,
	domain.ErrValidation,
	domain.ErrPrecondition,
	domain.ErrNoCandidates,
	domain.ErrRevealNotDue,
	domain.ErrConfirmationRequired,
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.TripService.Create: validation error: unknown day" → "unknown day"
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := locationPrefix.ReplaceAllString(err.Error(), "")
	for stripped := true; stripped; {
		stripped = false
		for _, s := range sentinels {
			if rest, ok := strings.CutPrefix(msg, s.Error()+": "); ok && rest != "" {
				msg, stripped = rest, true
			}
		}
		if rest := locationPrefix.ReplaceAllString(msg, ""); rest != msg && rest != "" {
			msg, stripped = rest, true
		}
	}
	return msg
}
