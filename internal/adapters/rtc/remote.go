package rtc

import (
	"context"
	"errors"
	"io"

	"github.com/dkeye/VideoRoom/internal/telemetry"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// readRemote drains an inbound track until it ends. onEnded runs unless the connection was closed first.
func readRemote(ctx context.Context, track *webrtc.TrackRemote, logger zerolog.Logger, onEnded func()) {
	logger = logger.With().Str("track_id", track.ID()).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("remote reader ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("remote read RTP error, stopping")
			}
			onEnded()
			return
		}
		account(pkt)
	}
}

func account(pkt *rtp.Packet) {
	telemetry.RemoteRTPBytes.Add(float64(pkt.MarshalSize()))
}
