package signal

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (s *Socket) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-s.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				s.shutdown(err)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				s.shutdown(err)
				return
			}
		}
	}
}

func (s *Socket) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			s.shutdown(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad frame")
			continue
		}
		s.route(f)
	}
}
