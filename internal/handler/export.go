package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/little-escape/internal/domain"
)

// csvHeaders defines the column names written as the first row of any CSV export.
var csvHeaders = []string{
	"run_id", "appointment_id", "day", "time_slot", "duration_min",
	"travel_mode", "destination_name", "accepted_at", "arrived_at", "completed_at",
	"total_ms", "to_arrive_ms", "rating", "comment", "tags",
}

// ExportRow is one line of the JSON export.
type ExportRow struct {
	RunID           string     `json:"run_id"`
	AppointmentID   string     `json:"appointment_id"`
	Day             string     `json:"day"`
	TimeSlot        string     `json:"time_slot"`
	DurationMin     int        `json:"duration_min"`
	TravelMode      string     `json:"travel_mode"`
	DestinationName string     `json:"destination_name"`
	AcceptedAt      time.Time  `json:"accepted_at"`
	ArrivedAt       *time.Time `json:"arrived_at"`
	CompletedAt     time.Time  `json:"completed_at"`
	TotalMs         int64      `json:"total_ms"`
	ToArriveMs      *int64     `json:"to_arrive_ms"`
	Rating          *int       `json:"rating,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	Tags            []string   `json:"tags"`
}

// GetExport implements GET /export.
// It returns every completed run with its appointment and review as a flat
// table. Use ?format=csv to receive CSV; default is JSON.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	format, err := queryString(r, "format")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}
	if format != "" && format != "csv" && format != "json" {
		writeJSON(w, http.StatusBadRequest, requestBody(`format must be "csv" or "json"`))
		return
	}

	rows, err := s.export.Export(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if format == "csv" {
		writeCSV(w, rows)
		return
	}
	out := make([]ExportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domainRowToExportRow(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// writeCSV encodes rows as CSV. Tags within a row are pipe-separated ("|")
// to keep each run on a single CSV line.
func writeCSV(w http.ResponseWriter, rows []domain.ExportRow) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	//nolint:errcheck // bytes.Buffer.Write never returns an error.
	cw.Write(csvHeaders)
	for _, r := range rows {
		//nolint:errcheck
		cw.Write(domainRowToCSVRecord(r))
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="runs.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(buf.Bytes())
}

func domainRowToExportRow(r domain.ExportRow) ExportRow {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return ExportRow{
		RunID:           r.RunID,
		AppointmentID:   r.AppointmentID,
		Day:             r.Day,
		TimeSlot:        r.TimeSlot,
		DurationMin:     r.DurationMin,
		TravelMode:      r.TravelMode,
		DestinationName: r.DestinationName,
		AcceptedAt:      r.AcceptedAt,
		ArrivedAt:       r.ArrivedAt,
		CompletedAt:     r.CompletedAt,
		TotalMs:         r.TotalMs,
		ToArriveMs:      r.ToArriveMs,
		Rating:          r.Rating,
		Comment:         r.Comment,
		Tags:            tags,
	}
}

// domainRowToCSVRecord encodes a domain.ExportRow as a flat string slice.
// Nil pointers are encoded as empty strings.
func domainRowToCSVRecord(r domain.ExportRow) []string {
	return []string{
		r.RunID,
		r.AppointmentID,
		r.Day,
		r.TimeSlot,
		strconv.Itoa(r.DurationMin),
		r.TravelMode,
		r.DestinationName,
		r.AcceptedAt.UTC().Format(time.RFC3339),
		formatOptionalTime(r.ArrivedAt),
		r.CompletedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(r.TotalMs, 10),
		formatOptionalInt(r.ToArriveMs),
		formatOptionalInt(r.Rating),
		r.Comment,
		strings.Join(r.Tags, "|"),
	}
}

// formatOptionalTime returns the RFC3339 representation of t, or "" if t is nil.
func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalInt[T int | int64](v *T) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*v), 10)
}
