package app

import (
	"context"
	"errors"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/telemetry"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Internal events raised by the media transport, the capturer and the socket.
const (
	evLocalCandidate   = "transport:candidate"
	evTrackAdded       = "transport:track"
	evTrackEnded       = "transport:track_ended"
	evTransportState   = "transport:state"
	evScreenTrackEnded = "screen:ended"
	evSocketError      = "socket:error"
)

type event struct {
	name string
	data any
}

type handler func(ctx context.Context, st *state, ev event) error

// dispatch maps every event a session reacts to onto its state transition.
var dispatch = map[string]handler{
	core.EventOffer:         handleOffer,
	core.EventCandidate:     handleRemoteCandidate,
	core.EventReplaceTrack:  handleReplaceTrack,
	core.EventDisplayTrack:  handleDisplayTrack,
	core.EventScreensharing: handleScreensharing,
	core.EventError:         handleServerError,
	core.EventChannelError:  handleChannelError,
	core.EventChannelClose:  handleChannelError,

	evLocalCandidate:   handleLocalCandidate,
	evTrackAdded:       handleTrackAdded,
	evTrackEnded:       handleTrackEnded,
	evTransportState:   handleTransportState,
	evScreenTrackEnded: handleScreenTrackEnded,
	evSocketError:      handleSocketError,
}

func decode(ev event, v any) error {
	raw, ok := ev.data.([]byte)
	if !ok {
		return errors.New("event " + ev.name + " carries no payload")
	}
	return json.Unmarshal(raw, v)
}

func handleOffer(ctx context.Context, st *state, ev event) error {
	var msg core.OfferMessage
	if err := decode(ev, &msg); err != nil {
		telemetry.OfferCounter.WithLabelValues("invalid").Inc()
		err = &core.NegotiationError{Stage: "decode offer", Err: err}
		if st.negotiator.State() == NegotiationUninitialized {
			st.fail(core.DefaultErrorMessage, "negotiation")
		}
		return err
	}
	st.roster = msg.Participants

	err := st.negotiator.HandleOffer(ctx, msg.Data, st.localTracksForTransport(), func(answer webrtc.SessionDescription) error {
		return st.channel.Cast(core.EventAnswer, core.AnswerMessage{Data: answer})
	})
	if st.transport.Created() {
		st.registry.Seal()
	}
	if err != nil {
		telemetry.OfferCounter.WithLabelValues("failed").Inc()
		if st.negotiator.State() == NegotiationClosed {
			st.fail(core.DefaultErrorMessage, "negotiation")
		}
		return err
	}

	telemetry.OfferCounter.WithLabelValues("answered").Inc()
	st.log.Info().Int("participants", len(msg.Participants)).Msg("offer answered")
	return nil
}

func handleRemoteCandidate(_ context.Context, st *state, ev event) error {
	var msg core.CandidateMessage
	if err := decode(ev, &msg); err != nil {
		telemetry.CandidateCounter.WithLabelValues("inbound", "invalid").Inc()
		return err
	}
	if err := st.negotiator.AddRemoteCandidate(msg.Data); err != nil {
		telemetry.CandidateCounter.WithLabelValues("inbound", "rejected").Inc()
		return err
	}
	telemetry.CandidateCounter.WithLabelValues("inbound", "applied").Inc()
	return nil
}

func handleLocalCandidate(_ context.Context, st *state, ev event) error {
	c, ok := ev.data.(webrtc.ICECandidateInit)
	if !ok {
		return nil
	}
	if err := st.channel.Cast(core.EventCandidate, core.CandidateMessage{Data: c}); err != nil {
		telemetry.CandidateCounter.WithLabelValues("outbound", "failed").Inc()
		return err
	}
	telemetry.CandidateCounter.WithLabelValues("outbound", "sent").Inc()
	return nil
}

func handleReplaceTrack(_ context.Context, st *state, ev event) error {
	var msg core.ReplaceTrackMessage
	if err := decode(ev, &msg); err != nil {
		return err
	}
	oldStream, okOld := st.registry.Resolve(msg.Data.OldTrackID)
	newStream, okNew := st.registry.Resolve(msg.Data.NewTrackID)
	if !okOld || !okNew {
		st.log.Warn().
			Str("old_track_id", string(msg.Data.OldTrackID)).
			Str("new_track_id", string(msg.Data.NewTrackID)).
			Msg("replaceTrack references an unknown track")
		return nil
	}

	st.policy.Replace(oldStream.ID, newStream.ID)
	st.syncDisplayGauge()

	oldInfo, newInfo := oldStream.Info(), newStream.Info()
	label := st.roster.LabelOf(msg.Data.NewTrackID)
	st.emit(func(cb core.Callbacks) { cb.OnReplaceStream(oldInfo, newInfo, label) })
	return nil
}

func handleDisplayTrack(_ context.Context, st *state, ev event) error {
	var msg core.DisplayTrackMessage
	if err := decode(ev, &msg); err != nil {
		return err
	}
	stream, ok := st.registry.Resolve(msg.Data.TrackID)
	if !ok {
		st.log.Warn().Str("track_id", string(msg.Data.TrackID)).Msg("displayTrack references an unknown track")
		return nil
	}

	if !stream.IsScreenSharing {
		if evicted, ok := st.policy.Force(stream.ID); ok {
			st.log.Debug().Str("stream_id", string(evicted)).Msg("display slot released")
		}
		st.syncDisplayGauge()
	}

	info := stream.Info()
	label := st.roster.LabelOf(msg.Data.TrackID)
	st.emit(func(cb core.Callbacks) { cb.OnDisplayStream(info, label) })
	return nil
}

func handleScreensharing(_ context.Context, st *state, ev event) error {
	var msg core.ScreensharingMessage
	if err := decode(ev, &msg); err != nil {
		return err
	}
	switch msg.Status {
	case core.ScreensharingStatusStart:
		return st.remoteScreensharingStarted(msg.Mid)
	case core.ScreensharingStatusStop:
		st.remoteScreensharingStopped()
		return nil
	default:
		st.log.Warn().Str("status", msg.Status).Msg("unknown screensharing status")
		return nil
	}
}

func handleTrackAdded(_ context.Context, st *state, ev event) error {
	rt, ok := ev.data.(core.RemoteTrackEvent)
	if !ok {
		return nil
	}
	stream, _ := st.registry.OnRemoteTrackAdded(rt)
	label := st.roster.LabelOf(rt.TrackID)
	info := stream.Info()

	tc := core.TrackContext{Track: rt.Track(), Stream: info, Label: label, IsScreenSharing: stream.IsScreenSharing}
	st.emit(func(cb core.Callbacks) { cb.OnAddTrack(tc) })

	if stream.IsScreenSharing && st.policy.OnStreamRemoved(stream.ID) {
		st.log.Debug().Str("stream_id", string(stream.ID)).Msg("screensharing stream released its display slot")
		st.syncDisplayGauge()
	}
	if st.policy.OnTrackAdded(stream) {
		st.syncDisplayGauge()
		st.emit(func(cb core.Callbacks) { cb.OnDisplayStream(info, label) })
	}
	return nil
}

func handleTrackEnded(_ context.Context, st *state, ev event) error {
	rt, ok := ev.data.(core.RemoteTrackEvent)
	if !ok {
		return nil
	}
	stream, removed, ok := st.registry.OnRemoteTrackRemoved(rt)
	if !ok {
		return nil
	}
	if removed {
		if st.policy.OnStreamRemoved(stream.ID) {
			st.syncDisplayGauge()
		}
		if st.screen.remote == stream.ID {
			st.setRemoteScreensharing("")
		}
	}

	tc := core.TrackContext{
		Track:           rt.Track(),
		Stream:          stream.Info(),
		Label:           st.roster.LabelOf(rt.TrackID),
		IsScreenSharing: stream.IsScreenSharing,
	}
	st.emit(func(cb core.Callbacks) { cb.OnRemoveTrack(tc) })
	return nil
}

func handleTransportState(_ context.Context, st *state, ev event) error {
	s, ok := ev.data.(webrtc.PeerConnectionState)
	if !ok {
		return nil
	}
	st.log.Info().Str("connection_state", s.String()).Msg("media transport state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if st.connectedSent {
			return nil
		}
		st.connectedSent = true
		return st.channel.Cast(core.EventConnected, core.Empty{})
	case webrtc.PeerConnectionStateFailed:
		st.fail(core.DefaultErrorMessage, "transport_failed")
	}
	return nil
}

func handleScreenTrackEnded(_ context.Context, st *state, ev event) error {
	track, ok := ev.data.(core.LocalTrack)
	if !ok || st.screen.local == nil || st.screen.local.ID() != track.ID() {
		return nil
	}
	st.endLocalScreensharing()
	return nil
}

func handleServerError(_ context.Context, st *state, ev event) error {
	var msg core.ErrorMessage
	if err := decode(ev, &msg); err != nil || msg.Error == "" {
		msg.Error = core.DefaultErrorMessage
	}
	st.fail(msg.Error, "server_error")
	return nil
}

func handleChannelError(_ context.Context, st *state, ev event) error {
	st.log.Warn().Str("event", ev.name).Msg("channel closed by server")
	st.fail(core.DefaultErrorMessage, "channel_error")
	return nil
}

func handleSocketError(_ context.Context, st *state, ev event) error {
	if err, ok := ev.data.(error); ok {
		st.log.Warn().Err(err).Msg("socket error")
	}
	st.fail(core.DefaultErrorMessage, "socket_error")
	return nil
}

func isScreensharingMode(st *state) bool {
	return st.mode == domain.ModeScreensharing
}
