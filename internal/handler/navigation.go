package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/little-escape/internal/navigation"
)

// QR code edge length bounds, in pixels.
const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// GetNavigation handles GET /trips/{id}/navigation.
func (s *Server) GetNavigation(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	links, err := s.trips.Navigation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, links)
}

// GetNavigationQR handles GET /trips/{id}/navigation.png. It encodes the
// deep link, or the web link with ?link=web, as a PNG QR code.
func (s *Server) GetNavigationQR(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	var size *int
	if err := runtime.BindQueryParameter("form", true, false, "size", r.URL.Query(), &size); err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(fmt.Sprintf("invalid format for parameter size: %v", err)))
		return
	}
	px := defaultQRSize
	if size != nil {
		if *size < minQRSize || *size > maxQRSize {
			writeJSON(w, http.StatusBadRequest, requestBody(fmt.Sprintf("size must be between %d and %d", minQRSize, maxQRSize)))
			return
		}
		px = *size
	}
	which, err := queryString(r, "link")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
		return
	}

	links, err := s.trips.Navigation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target := links.DeepLink
	switch which {
	case "", "deep":
	case "web":
		target = links.WebLink
	default:
		writeJSON(w, http.StatusBadRequest, requestBody(`link must be "deep" or "web"`))
		return
	}

	png, err := navigation.QR(target, px)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(png)
}
