package app

import (
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/telemetry"
	"github.com/rs/zerolog"
)

type phase int

const (
	phaseIdle phase = iota
	phaseStarted
	phaseClosed
)

// notification is a callback invocation queued during a reaction and delivered after it.
type notification func(core.Callbacks)

type screenState struct {
	// captured track currently swapped in for the placeholder
	local core.LocalTrack
	// stream of the remote participant sharing its screen
	remote domain.StreamID
}

// state is everything a session mutates. Only the session executor touches it.
type state struct {
	log         zerolog.Logger
	mode        domain.Mode
	displayName string
	topic       string
	pushTimeout time.Duration

	socket      core.SignalSocket
	socketRefs  []core.ListenerRef
	channel     core.SignalChannel
	capturer    core.Capturer
	placeholder core.LocalTrack

	phase      phase
	roster     domain.Roster
	registry   *TrackRegistry
	policy     *DisplayPolicy
	transport  *TransportController
	negotiator *Negotiator
	screen     screenState

	connectedSent bool
	errorReported bool

	pending []notification
	// post queues an internal event behind the current reaction.
	post func(event)
}

func (st *state) emit(n notification) {
	st.pending = append(st.pending, n)
}

func (st *state) takePending() []notification {
	out := st.pending
	st.pending = nil
	return out
}

// fail reports a terminal error once and closes the session.
func (st *state) fail(message, reason string) {
	if st.phase == phaseClosed {
		return
	}
	if !st.errorReported {
		st.errorReported = true
		st.emit(func(cb core.Callbacks) { cb.OnConnectionError(message) })
	}
	st.log.Error().Str("reason", reason).Str("message", message).Msg("session failed")
	st.teardown(reason)
}

// teardown releases every resource of the session. It runs at most once.
func (st *state) teardown(reason string) {
	if st.phase == phaseClosed {
		return
	}
	st.phase = phaseClosed

	if st.channel != nil {
		if err := st.channel.Cast(core.EventStop, core.Empty{}); err != nil {
			st.log.Debug().Err(err).Msg("stop push failed")
		}
		if err := st.channel.Leave(); err != nil {
			st.log.Debug().Err(err).Msg("leave failed")
		}
	}
	if len(st.socketRefs) > 0 {
		st.socket.Off(st.socketRefs...)
		st.socketRefs = nil
	}

	st.negotiator.Close()

	if st.screen.local != nil {
		st.screen.local.Stop()
		st.screen.local = nil
	}
	st.screen.remote = ""
	for _, t := range st.registry.LocalTracks() {
		t.Stop()
	}
	if st.placeholder != nil {
		st.placeholder.Stop()
	}

	telemetry.DisplayedStreams.DeleteLabelValues(st.topic)
	telemetry.RemoteScreensharing.DeleteLabelValues(st.topic)
	st.registry.ResetRemote()
	st.policy.Reset()
	telemetry.SessionsClosedCounter.WithLabelValues(reason).Inc()
	st.log.Info().Str("reason", reason).Msg("session closed")
}

func (st *state) syncDisplayGauge() {
	telemetry.DisplayedStreams.WithLabelValues(st.topic).Set(float64(st.policy.DisplayedCount()))
}

func (st *state) setRemoteScreensharing(id domain.StreamID) {
	st.screen.remote = id
	v := 0.0
	if id != "" {
		v = 1
	}
	telemetry.RemoteScreensharing.WithLabelValues(st.topic).Set(v)
}

func (st *state) localTracksForTransport() []core.LocalTrack {
	locals := st.registry.LocalTracks()
	if st.placeholder != nil {
		locals = append(locals, st.placeholder)
	}
	return locals
}
