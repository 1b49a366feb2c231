package app

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
)

// startLocalScreensharing captures the screen, asks the server for permission and swaps the
// placeholder sender over to the captured track.
func (st *state) startLocalScreensharing(ctx context.Context) error {
	if !isScreensharingMode(st) || st.placeholder == nil || st.capturer == nil {
		return core.ErrScreensharingUnsupported
	}
	if st.screen.local != nil {
		return core.ErrScreensharingActive
	}
	if !st.transport.Created() {
		return core.ErrTransportNotReady
	}

	track, err := st.capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture screen: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, st.pushTimeout)
	defer cancel()
	if _, err := st.channel.Push(pushCtx, core.EventStartScreensharing, core.Empty{}); err != nil {
		track.Stop()
		return err
	}

	if err := st.transport.ReplaceSenderTrack(domain.TrackID(st.placeholder.ID()), track); err != nil {
		st.log.Error().Err(err).Str("track_id", track.ID()).Msg("cannot swap screensharing track in")
		track.Stop()
		if castErr := st.channel.Cast(core.EventStopScreensharing, core.Empty{}); castErr != nil {
			st.log.Debug().Err(castErr).Msg("stop_screensharing push failed")
		}
		return err
	}

	st.screen.local = track
	sc := core.ScreensharingContext{
		Local:    true,
		TrackID:  domain.TrackID(track.ID()),
		StreamID: domain.StreamID(track.StreamID()),
	}
	st.emit(func(cb core.Callbacks) { cb.OnScreensharingStart(sc) })
	st.log.Info().Str("track_id", track.ID()).Msg("local screensharing started")

	post := st.post
	track.OnEnded(func() { post(event{name: evScreenTrackEnded, data: track}) })
	return nil
}

// endLocalScreensharing puts the placeholder back, tells the server and notifies the end once.
func (st *state) endLocalScreensharing() {
	track := st.screen.local
	if track == nil {
		return
	}
	st.screen.local = nil

	if err := st.transport.ReplaceSenderTrack(domain.TrackID(track.ID()), st.placeholder); err != nil {
		st.log.Error().Err(err).Msg("cannot swap placeholder back in")
	}
	if err := st.channel.Cast(core.EventStopScreensharing, core.Empty{}); err != nil {
		st.log.Debug().Err(err).Msg("stop_screensharing push failed")
	}
	st.emit(func(cb core.Callbacks) { cb.OnScreensharingEnd() })
	st.log.Info().Str("track_id", track.ID()).Msg("local screensharing ended")
}

func (st *state) stopLocalScreensharing() error {
	if !isScreensharingMode(st) {
		return core.ErrScreensharingUnsupported
	}
	track := st.screen.local
	if track == nil {
		return nil
	}
	st.endLocalScreensharing()
	track.Stop()
	return nil
}

func (st *state) remoteScreensharingStarted(mid string) error {
	trackID, err := st.transport.ResolveMid(mid)
	if err != nil {
		return err
	}
	stream, ok := st.registry.Resolve(trackID)
	if !ok {
		st.log.Warn().Str("mid", mid).Str("track_id", string(trackID)).Msg("screensharing on a track not indexed yet")
		return nil
	}

	st.setRemoteScreensharing(stream.ID)
	sc := core.ScreensharingContext{
		TrackID:  trackID,
		StreamID: stream.ID,
		Stream:   stream.Info(),
	}
	st.emit(func(cb core.Callbacks) { cb.OnScreensharingStart(sc) })
	return nil
}

func (st *state) remoteScreensharingStopped() {
	st.setRemoteScreensharing("")
	st.emit(func(cb core.Callbacks) { cb.OnScreensharingEnd() })
}
