package handler

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pkordes/little-escape/internal/position"
	"github.com/pkordes/little-escape/internal/tracker"
)

const (
	liveWriteWait  = 5 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveMaxMessage = 4096
)

// LiveFrame is one server-to-client message on /trips/{id}/live.
// Type is "status" or "error".
type LiveFrame struct {
	Type   string          `json:"type"`
	Status *tracker.Status `json:"status,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

func statusFrame(st tracker.Status) LiveFrame {
	return LiveFrame{Type: "status", Status: &st}
}

func errorFrame(err error) LiveFrame {
	_, body := errorStatus(err)
	return LiveFrame{Type: "error", Error: &body.Error}
}

// Live handles GET /trips/{id}/live. The client sends position reports in
// the same shape as POST /positions and receives the run status after each
// report and on every tick. The socket closes once the run completes.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	first, err := s.trips.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	up := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.WarnContext(r.Context(), "websocket upgrade failed", "trip_id", id, "error", err)
		return
	}
	defer conn.Close()
	s.log.InfoContext(r.Context(), "live connected", "trip_id", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(liveMaxMessage)
	//nolint:errcheck
	conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	frames := make(chan LiveFrame, 8)
	go s.liveRead(ctx, cancel, conn, id, frames)

	tick := time.NewTicker(s.liveInterval)
	defer tick.Stop()
	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	if done, err := s.liveWrite(conn, statusFrame(first)); err != nil || done {
		return
	}
	for {
		var frame LiveFrame
		select {
		case <-ctx.Done():
			s.log.InfoContext(r.Context(), "live disconnected", "trip_id", id)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
			continue
		case frame = <-frames:
		case <-tick.C:
			st, err := s.trips.Status(ctx, id)
			if err != nil {
				// The run was abandoned or restarted.
				s.liveWrite(conn, errorFrame(err)) //nolint:errcheck
				s.liveClose(conn, "run ended")
				return
			}
			frame = statusFrame(st)
		}
		done, err := s.liveWrite(conn, frame)
		if err != nil || done {
			return
		}
	}
}

// liveRead decodes inbound reports until the socket fails. It is the only
// reader of conn.
func (s *Server) liveRead(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id uuid.UUID, out chan<- LiveFrame) {
	defer cancel()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		//nolint:errcheck
		conn.SetReadDeadline(time.Now().Add(livePongWait))

		var frame LiveFrame
		msg, err := position.Decode(b, s.clock.Now())
		if err != nil {
			frame = LiveFrame{Type: "error", Error: &ErrorDetail{Code: "validation_error", Message: "malformed position message"}}
		} else if st, err := s.trips.PushPosition(ctx, id, msg); err != nil {
			frame = errorFrame(err)
		} else {
			frame = statusFrame(st)
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// liveWrite sends one frame and, after a completed status, closes the
// socket. done reports that the conversation is over.
func (s *Server) liveWrite(conn *websocket.Conn, f LiveFrame) (done bool, err error) {
	//nolint:errcheck
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(f); err != nil {
		return true, err
	}
	if f.Status != nil && f.Status.State == tracker.StateCompleted {
		s.liveClose(conn, "run completed")
		return true, nil
	}
	return false, nil
}

func (s *Server) liveClose(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	//nolint:errcheck
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}

// checkOrigin accepts same-host upgrades, listed origins, and clients that
// send no Origin header at all.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 || slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
