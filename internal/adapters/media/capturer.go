package media

import (
	"context"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FileCapturer stands in for a screen capture source by playing a VP8 file.
type FileCapturer struct {
	Path string
	Loop bool
}

func (c *FileCapturer) Capture(ctx context.Context) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := domain.ScreenSharingMarker + "-" + uuid.NewString()
	track, err := NewFileTrack(c.Path, id, id, c.Loop)
	if err != nil {
		return nil, err
	}
	if err := track.Start(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "media").Str("track_id", id).Msg("screen captured")
	return track, nil
}
