package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/service"
)

// AcceptRequest is the optional body of POST /trips/{id}/accept. Without a
// candidate_id the candidate under the cursor is accepted.
type AcceptRequest struct {
	CandidateID    *openapi_types.UUID `json:"candidate_id,omitempty"`
	CompletionMode string              `json:"completion_mode,omitempty"`
}

// MissionRequest is the optional body of PUT /trips/{id}/missions/{index}.
// Done defaults to true.
type MissionRequest struct {
	Done *bool `json:"done"`
}

// CompleteRequest is the optional body of POST /trips/{id}/complete.
type CompleteRequest struct {
	Confirm bool `json:"confirm"`
}

// ReviewRequest is the body of POST /trips/{id}/review.
type ReviewRequest struct {
	Rating  int      `json:"rating"`
	Comment string   `json:"comment"`
	Tags    []string `json:"tags"`
}

// Accept handles POST /trips/{id}/accept.
func (s *Server) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req AcceptRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.badBody(w, r, err)
		return
	}
	mode, err := domain.ParseCompletionMode(req.CompletionMode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := service.AcceptInput{CompletionMode: mode}
	if req.CandidateID != nil {
		in.CandidateID = *req.CandidateID
	}
	acc, err := s.trips.Accept(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, acc)
}

// GetStatus handles GET /trips/{id}/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	st, err := s.trips.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// PushPosition handles POST /trips/{id}/positions. The body is one device
// report: a fix, or {"error": "..."} when the device lost its position.
func (s *Server) PushPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		s.badBody(w, r, err)
		return
	}
	if len(b) == 0 {
		s.badBody(w, r, errors.New("request body is required"))
		return
	}
	msg, err := position.Decode(b, s.clock.Now())
	if err != nil {
		s.badBody(w, r, fmt.Errorf("malformed JSON body: %v", err))
		return
	}
	st, err := s.trips.PushPosition(r.Context(), id, msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// MarkMission handles PUT /trips/{id}/missions/{index}.
func (s *Server) MarkMission(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var idx int
	err := runtime.BindStyledParameterWithOptions("simple", "index", chi.URLParam(r, "index"), &idx,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(fmt.Sprintf("invalid format for parameter index: %v", err)))
		return
	}
	var req MissionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.badBody(w, r, err)
		return
	}
	done := req.Done == nil || *req.Done
	m, err := s.trips.MarkMission(r.Context(), id, idx, done)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

// Complete handles POST /trips/{id}/complete.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req CompleteRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.badBody(w, r, err)
		return
	}
	p, err := s.trips.Complete(r.Context(), id, req.Confirm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// Review handles POST /trips/{id}/review.
func (s *Server) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	run, err := s.trips.Review(r.Context(), id, service.ReviewInput{
		Rating:  req.Rating,
		Comment: req.Comment,
		Tags:    req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, runToResponse(run))
}
