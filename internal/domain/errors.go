package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails a business rule
// (e.g. duration out of range, latitude outside [-90, 90]).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrPrecondition is returned when an operation is not allowed in the trip's
// current stage. The trip is left untouched.
// Handlers should map this to HTTP 409 Conflict.
var ErrPrecondition = errors.New("precondition failed")

// ErrNoCandidates is returned when the recommender filtered every place out.
// The caller may retry with a different travel mode.
var ErrNoCandidates = errors.New("no candidates")

// ErrRevealNotDue is returned by a reveal attempted before the scheduled
// occurrence. It is always wrapped together with ErrPrecondition.
var ErrRevealNotDue = errors.New("reveal not due")

// ErrConfirmationRequired is returned when completing a checklist run that
// still has undone missions without an explicit confirmation.
var ErrConfirmationRequired = errors.New("confirmation required")
