package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/service"
)

// AppointmentRequest is the body of POST /trips and POST /trips/{id}/appointment.
type AppointmentRequest struct {
	Day         string `json:"day"`
	TimeSlot    string `json:"time_slot"`
	DurationMin int    `json:"duration_min"`
}

func (req AppointmentRequest) input() (service.AppointmentInput, error) {
	day, err := domain.ParseDay(req.Day)
	if err != nil {
		return service.AppointmentInput{}, err
	}
	slot, err := domain.ParseTimeSlot(req.TimeSlot)
	if err != nil {
		return service.AppointmentInput{}, err
	}
	return service.AppointmentInput{Day: day, TimeSlot: slot, DurationMin: req.DurationMin}, nil
}

// OriginRequest is the body of PUT /trips/{id}/origin.
type OriginRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// PrepRequest is the body of POST /trips/{id}/prep.
type PrepRequest struct {
	TravelMode string `json:"travel_mode"`
}

// PrepResponse is the persisted prep and its ranked candidates.
type PrepResponse struct {
	Prep       domain.Prep        `json:"prep"`
	Candidates []domain.Candidate `json:"candidates"`
}

// CountdownResponse describes the wait until the reveal.
type CountdownResponse struct {
	Target      time.Time `json:"target"`
	RemainingMs int64     `json:"remaining_ms"`
	Due         bool      `json:"due"`
}

// CandidateResponse is the candidate under the browsing cursor.
type CandidateResponse struct {
	Index     int              `json:"index"`
	Candidate domain.Candidate `json:"candidate"`
}

// ---- Trip lifecycle --------------------------------------------------------

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req AppointmentRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.trips.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, view)
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	view, err := s.trips.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// RescheduleTrip handles POST /trips/{id}/appointment. It binds a fresh
// appointment to a trip that is back in CREATE.
func (s *Server) RescheduleTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req AppointmentRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.trips.Reschedule(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// SetOrigin handles PUT /trips/{id}/origin.
func (s *Server) SetOrigin(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req OriginRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeJSON(w, http.StatusBadRequest, requestBody("lat and lng are required"))
		return
	}
	view, err := s.trips.SetOrigin(r.Context(), id, domain.Coordinate{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// SelectMode handles POST /trips/{id}/prep.
func (s *Server) SelectMode(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var req PrepRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	mode, err := domain.ParseTravelMode(req.TravelMode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prep, cands, err := s.trips.SelectMode(r.Context(), id, mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, PrepResponse{Prep: prep, Candidates: cands})
}

// GetCountdown handles GET /trips/{id}/countdown.
func (s *Server) GetCountdown(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	cd, err := s.trips.Countdown(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, CountdownResponse{
		Target:      cd.Target,
		RemainingMs: cd.Remaining.Milliseconds(),
		Due:         cd.Due(),
	})
}

// ---- Reveal and browsing ---------------------------------------------------

// Reveal handles POST /trips/{id}/reveal.
func (s *Server) Reveal(w http.ResponseWriter, r *http.Request) {
	s.candidate(w, r, s.trips.Reveal)
}

// CurrentCandidate handles GET /trips/{id}/candidates/current.
func (s *Server) CurrentCandidate(w http.ResponseWriter, r *http.Request) {
	s.candidate(w, r, s.trips.Current)
}

// NextCandidate handles POST /trips/{id}/candidates/next.
func (s *Server) NextCandidate(w http.ResponseWriter, r *http.Request) {
	s.candidate(w, r, s.trips.Next)
}

func (s *Server) candidate(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, uuid.UUID) (domain.Candidate, int, error),
) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	c, idx, err := fn(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, CandidateResponse{Index: idx, Candidate: c})
}

// ---- Stage navigation ------------------------------------------------------

// Back handles POST /trips/{id}/back.
func (s *Server) Back(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	view, err := s.trips.Back(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// Restart handles POST /trips/{id}/restart.
func (s *Server) Restart(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	view, err := s.trips.Restart(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}
