package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/telemetry"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const DefaultPushTimeout = 10 * time.Second

// DefaultRTCConfig is used when no ICE servers are configured.
func DefaultRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
}

type Options struct {
	Mode        domain.Mode
	DisplayName string
	RTCConfig   webrtc.Configuration
	Callbacks   core.Callbacks
	// TransportFactory creates the media transport on the first server offer.
	TransportFactory core.TransportFactory
	// Capturer and Placeholder are required in screensharing mode.
	Capturer    core.Capturer
	Placeholder func() (core.LocalTrack, error)
	PushTimeout time.Duration
}

// Session negotiates and maintains one media session in a room.
// Every state change runs on a single executor; callbacks run in order on a second one.
type Session struct {
	id    string
	topic string

	ctx    context.Context
	cancel context.CancelFunc

	exec     *executor
	notifier *executor
	done     chan struct{}

	st        *state
	callbacks core.Callbacks

	negState atomic.Int32
	closed   atomic.Bool
}

func NewSession(socket core.SignalSocket, room domain.RoomID, opts Options) (*Session, error) {
	if socket == nil {
		return nil, errors.New("signal socket is required")
	}
	if room == "" {
		return nil, errors.New("room id is required")
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeParticipant
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unknown session mode %q", opts.Mode)
	}
	if opts.TransportFactory == nil {
		return nil, errors.New("transport factory is required")
	}
	if opts.Callbacks == nil {
		opts.Callbacks = core.NoopCallbacks{}
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if len(opts.RTCConfig.ICEServers) == 0 {
		opts.RTCConfig.ICEServers = DefaultRTCConfig().ICEServers
	}

	var placeholder core.LocalTrack
	if opts.Mode == domain.ModeScreensharing {
		if opts.Placeholder == nil || opts.Capturer == nil {
			return nil, errors.New("screensharing mode needs a capturer and a placeholder track")
		}
		p, err := opts.Placeholder()
		if err != nil {
			return nil, fmt.Errorf("create placeholder track: %w", err)
		}
		placeholder = p
	}

	telemetry.Init()

	id := uuid.NewString()
	topic := domain.Topic(room, opts.Mode)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		topic:     topic,
		ctx:       ctx,
		cancel:    cancel,
		exec:      newExecutor("session"),
		notifier:  newExecutor("notifier"),
		done:      make(chan struct{}),
		callbacks: opts.Callbacks,
	}

	transport := NewTransportController(opts.TransportFactory, opts.RTCConfig, transportEvents{
		candidate:  func(c webrtc.ICECandidateInit) { s.post(event{name: evLocalCandidate, data: c}) },
		trackAdded: func(ev core.RemoteTrackEvent) { s.post(event{name: evTrackAdded, data: ev}) },
		trackEnded: func(ev core.RemoteTrackEvent) { s.post(event{name: evTrackEnded, data: ev}) },
		state:      func(ps webrtc.PeerConnectionState) { s.post(event{name: evTransportState, data: ps}) },
	})
	s.st = &state{
		log: log.With().
			Str("module", "app.session").
			Str("session_id", id).
			Str("topic", topic).
			Logger(),
		mode:        opts.Mode,
		displayName: opts.DisplayName,
		topic:       topic,
		pushTimeout: opts.PushTimeout,
		socket:      socket,
		capturer:    opts.Capturer,
		placeholder: placeholder,
		registry:    NewTrackRegistry(),
		policy:      NewDisplayPolicy(DefaultMaxDisplay),
		transport:   transport,
		negotiator:  NewNegotiator(transport),
		post:        s.post,
	}

	go func() {
		<-s.exec.Done()
		<-s.notifier.Done()
		close(s.done)
	}()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Topic() string { return s.topic }

// Start joins the room channel and asks the server to start the session.
// A failed join or start push closes the session.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context, st *state) error {
		if st.phase != phaseIdle {
			return fmt.Errorf("session already started: %w", core.ErrInvalidState)
		}

		st.channel = st.socket.Channel(st.topic, core.JoinParams{DisplayName: st.displayName})
		for name := range dispatch {
			if !isChannelEvent(name) {
				continue
			}
			st.channel.On(name, func(payload []byte) { s.post(event{name: name, data: payload}) })
		}
		st.socketRefs = append(st.socketRefs,
			st.socket.OnError(func(err error) { s.post(event{name: evSocketError, data: err}) }),
			st.socket.OnClose(func() { s.post(event{name: evSocketError}) }),
		)

		joinCtx, cancel := context.WithTimeout(ctx, st.pushTimeout)
		defer cancel()
		if _, err := st.channel.Join(joinCtx); err != nil {
			s.abortStart(st, "join_failed")
			return err
		}

		reply, err := st.channel.Push(joinCtx, core.EventStart, core.Empty{})
		if err != nil {
			s.abortStart(st, "start_failed")
			return err
		}
		var start core.StartReply
		if len(reply) > 0 {
			if err := json.Unmarshal(reply, &start); err != nil {
				st.log.Warn().Err(err).Msg("malformed start reply")
			}
		}
		switch n := start.MaxDisplayNum; {
		case n == nil:
		case *n < 0:
			st.log.Warn().Int("max_display", *n).Msg("negative display cap ignored")
		default:
			st.policy.SetMaxDisplay(*n)
		}

		st.phase = phaseStarted
		st.log.Info().Int("max_display", st.policy.MaxDisplay()).Str("mode", string(st.mode)).Msg("session started")
		return nil
	})
}

// abortStart closes a session whose start failed. A start cut short by Stop is not a connection error.
func (s *Session) abortStart(st *state, reason string) {
	if s.ctx.Err() != nil {
		st.teardown("stopped")
		return
	}
	st.fail(core.DefaultErrorMessage, reason)
}

func isChannelEvent(name string) bool {
	switch name {
	case evLocalCandidate, evTrackAdded, evTrackEnded, evTransportState, evScreenTrackEnded, evSocketError:
		return false
	}
	return true
}

// Stop tears the session down. Safe to call in any state and more than once.
func (s *Session) Stop() {
	s.cancel()
	_ = s.do(context.Background(), func(_ context.Context, st *state) error {
		st.teardown("stopped")
		return nil
	})
}

// AddTrack registers a local track for the media transport. It must be called before the first offer.
func (s *Session) AddTrack(ctx context.Context, track core.LocalTrack) error {
	return s.do(ctx, func(_ context.Context, st *state) error {
		return st.registry.RegisterLocalTrack(track)
	})
}

func (s *Session) StartScreensharing(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context, st *state) error {
		return st.startLocalScreensharing(ctx)
	})
}

func (s *Session) StopScreensharing(ctx context.Context) error {
	return s.do(ctx, func(_ context.Context, st *state) error {
		return st.stopLocalScreensharing()
	})
}

func (s *Session) RequestICERestart(ctx context.Context) error {
	return s.do(ctx, func(_ context.Context, st *state) error {
		return st.negotiator.RequestICERestart()
	})
}

// State returns the last negotiation state observed by the executor.
func (s *Session) State() NegotiationState {
	return NegotiationState(s.negState.Load())
}

func (s *Session) Closed() bool { return s.closed.Load() }

// Done is closed once the session has stopped and every callback was delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	SessionID           string              `json:"session_id"`
	Topic               string              `json:"topic"`
	Mode                domain.Mode         `json:"mode"`
	State               string              `json:"negotiation_state"`
	Closed              bool                `json:"closed"`
	MaxDisplay          int                 `json:"max_display"`
	Displayed           []domain.StreamID   `json:"displayed"`
	Streams             []domain.StreamInfo `json:"streams"`
	Participants        domain.Roster       `json:"participants"`
	LocalTracks         []string            `json:"local_tracks"`
	LocalScreensharing  bool                `json:"local_screensharing"`
	RemoteScreensharing domain.StreamID     `json:"remote_screensharing,omitempty"`
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		SessionID: s.id,
		Topic:     s.topic,
		State:     s.State().String(),
		Closed:    true,
	}
	err := s.do(ctx, func(_ context.Context, st *state) error {
		snap.Mode = st.mode
		snap.Closed = false
		snap.MaxDisplay = st.policy.MaxDisplay()
		snap.Displayed = st.policy.Displayed()
		for _, rs := range st.registry.Streams() {
			snap.Streams = append(snap.Streams, rs.Info())
		}
		snap.Participants = append(domain.Roster(nil), st.roster...)
		for _, t := range st.registry.LocalTracks() {
			snap.LocalTracks = append(snap.LocalTracks, t.ID())
		}
		snap.LocalScreensharing = st.screen.local != nil
		snap.RemoteScreensharing = st.screen.remote
		return nil
	})
	if errors.Is(err, core.ErrNotInitialized) {
		return snap, nil
	}
	return snap, err
}

// do runs op on the session executor and waits for it. ctx and Stop both abort the wait.
// An op whose ctx ends before it was picked up never runs.
func (s *Session) do(ctx context.Context, op func(ctx context.Context, st *state) error) error {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	claimed := atomic.NewBool(false)
	errc := make(chan error, 1)
	ok := s.exec.Enqueue(func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		if err := ctx.Err(); err != nil {
			errc <- err
			return
		}
		if s.st.phase == phaseClosed {
			errc <- core.ErrNotInitialized
			return
		}
		err := op(opCtx, s.st)
		s.afterReaction()
		errc <- err
	})
	if !ok {
		return core.ErrNotInitialized
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return ctx.Err()
		}
		// already running with a cancelled opCtx; report what it did
		return <-errc
	}
}

func (s *Session) post(ev event) {
	s.exec.Enqueue(func() { s.handle(ev) })
}

func (s *Session) handle(ev event) {
	st := s.st
	if st.phase == phaseClosed {
		st.log.Debug().Str("event", ev.name).Msg("event after close ignored")
		return
	}
	h, ok := dispatch[ev.name]
	if !ok {
		st.log.Warn().Str("event", ev.name).Msg("no handler for event")
		return
	}
	if err := h(s.ctx, st, ev); err != nil {
		st.log.Warn().Err(err).Str("event", ev.name).Msg("event handling failed")
	}
	s.afterReaction()
}

// afterReaction publishes the state and hands queued notifications to the notifier.
func (s *Session) afterReaction() {
	st := s.st
	s.negState.Store(int32(st.negotiator.State()))

	if pending := st.takePending(); len(pending) > 0 {
		cb := s.callbacks
		s.notifier.Enqueue(func() {
			for _, n := range pending {
				n(cb)
			}
		})
	}

	if st.phase == phaseClosed && !s.closed.Swap(true) {
		s.cancel()
		s.exec.Stop()
		s.notifier.Stop()
	}
}
