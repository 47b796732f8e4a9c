package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/domain"
)

// RunResponse is a persisted run as returned by the API.
type RunResponse struct {
	ID              uuid.UUID                `json:"id"`
	AppointmentID   uuid.UUID                `json:"appointment_id"`
	CandidateID     uuid.UUID                `json:"candidate_id"`
	TravelMode      domain.TravelMode        `json:"travel_mode"`
	CompletionMode  domain.CompletionMode    `json:"completion_mode"`
	Origin          domain.Coordinate        `json:"origin"`
	Destination     domain.Coordinate        `json:"destination"`
	DestinationName string                   `json:"destination_name"`
	Mission         string                   `json:"mission,omitempty"`
	Payload         domain.CompletionPayload `json:"payload"`
	Review          *ReviewResponse          `json:"review,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

// ReviewResponse is the review attached to a run.
type ReviewResponse struct {
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Tags       []string  `json:"tags"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// TagResponse is one tag of the global vocabulary.
type TagResponse struct {
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func runToResponse(r domain.Run) RunResponse {
	out := RunResponse{
		ID:              r.ID,
		AppointmentID:   r.AppointmentID,
		CandidateID:     r.CandidateID,
		TravelMode:      r.TravelMode,
		CompletionMode:  r.CompletionMode,
		Origin:          r.Origin,
		Destination:     r.Destination,
		DestinationName: r.DestinationName,
		Mission:         r.Mission,
		Payload:         r.Payload,
		CreatedAt:       r.CreatedAt,
	}
	if r.Review != nil {
		tags := r.Review.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Review = &ReviewResponse{
			Rating:     r.Review.Rating,
			Comment:    r.Review.Comment,
			Tags:       tags,
			ReviewedAt: r.Review.ReviewedAt,
		}
	}
	return out
}

func tagToResponse(t domain.Tag) TagResponse {
	return TagResponse{Name: t.Name, Slug: t.Slug, CreatedAt: t.CreatedAt}
}

// ListRuns handles GET /runs. Newest completion first.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	page, err := s.history.List(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(w, page, runToResponse)
}

// ListTags handles GET /tags. ?prefix narrows the result to slugs starting
// with the given text.
func (s *Server) ListTags(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	prefix, err := queryString(r, "prefix")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	page, err := s.tags.List(r.Context(), prefix, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(w, page, tagToResponse)
}
