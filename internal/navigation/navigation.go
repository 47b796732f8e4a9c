// Package navigation builds map links from an accepted trip's origin to its
// destination.
package navigation

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/skip2/go-qrcode"

	"github.com/pkordes/little-escape/internal/domain"
)

// Links opens turn-by-turn directions in the map app or, as a fallback, the
// map website.
type Links struct {
	DeepLink string `json:"deep_link"`
	WebLink  string `json:"web_link"`
}

// Build returns the links for a route. An empty name is shown as
// "Destination".
func Build(origin, dest domain.Coordinate, name string, mode domain.TravelMode) Links {
	if name == "" {
		name = "Destination"
	}
	return Links{
		DeepLink: fmt.Sprintf("kakaomap://route?sp=%s&ep=%s&by=%s", pair(origin), pair(dest), routeMode(mode)),
		WebLink: fmt.Sprintf("https://map.kakao.com/link/from/%s,%s/to/%s,%s",
			url.PathEscape("Start"), pair(origin), url.PathEscape(name), pair(dest)),
	}
}

// QR encodes link as a PNG of size×size pixels.
func QR(link string, size int) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("navigation.QR: %w", err)
	}
	return png, nil
}

func routeMode(m domain.TravelMode) string {
	switch m {
	case domain.Transit:
		return "PUBLICTRANSIT"
	case domain.Walk:
		return "FOOT"
	case domain.Bicycle:
		return "BICYCLE"
	default:
		return "CAR"
	}
}

func pair(c domain.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}
