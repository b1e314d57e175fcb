package server

import (
	"net/http"

	"github.com/coder/websocket"
)

// handleCommandWS serves the command protocol as request/reply over one
// websocket: every text message is a request and gets exactly one reply.
func (s *Server) handleCommandWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer c.CloseNow()

	c.SetReadLimit(maxRequestSize)
	ctx := r.Context()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("Command client connected")

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.logger.Debug().Str("remote", r.RemoteAddr).Msg("Command client disconnected")
			default:
				if ctx.Err() == nil {
					s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Command connection failed")
				}
			}
			return
		}

		ack := s.handler.Handle(ctx, data)
		if err := c.Write(ctx, websocket.MessageText, []byte(ack)); err != nil {
			s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to send command reply")
			return
		}
	}
}
