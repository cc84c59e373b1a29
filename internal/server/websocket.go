package server

import (
	"bytes"
	"net/http"

	"loan-approval/internal/loan"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWebSocket scores a stream of applicants. Each text message holds one
// applicant JSON document and gets exactly one envelope back, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Prediction stream opened")

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Prediction stream closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env := Envelope{Success: true}
		a, err := loan.DecodeApplicant(bytes.NewReader(msg))
		if err == nil {
			res, perr := s.predict(r.Context(), a, "ws")
			if perr == nil {
				env.Result = &res
			}
			err = perr
		}
		if err != nil {
			_, env = s.errorStatus(err)
		}

		if err := conn.WriteJSON(env); err != nil {
			log.Warn().Err(err).Msg("Failed to write prediction to stream")
			return
		}
	}
}
