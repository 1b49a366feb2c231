package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewAPI builds a pion API with the default codecs and interceptors, logging through lf.
func NewAPI(lf logging.LoggerFactory) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: lf}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// NewFactory returns a transport factory creating peer connections from api.
func NewFactory(api *webrtc.API) core.TransportFactory {
	return func(cfg webrtc.Configuration) (core.MediaTransport, error) {
		return NewWebRTCConnection(api, cfg)
	}
}

// WebRTCConnection is the pion implementation of core.MediaTransport.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	cancel context.CancelFunc

	mu sync.Mutex
	// keyed by the id of the local track currently attached
	senders      map[string]*webrtc.RTPSender
	onICE        func(webrtc.ICECandidateInit)
	onTrack      func(core.RemoteTrackEvent)
	onTrackEnded func(core.RemoteTrackEvent)
	onState      func(webrtc.PeerConnectionState)
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc:      pc,
		logger:  log.With().Str("module", "webrtc").Logger(),
		senders: make(map[string]*webrtc.RTPSender),
	}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		ev := core.RemoteTrackEvent{
			TrackID:  domain.TrackID(track.ID()),
			StreamID: domain.StreamID(track.StreamID()),
			Mid:      c.midOf(receiver),
			Kind:     track.Kind().String(),
		}
		c.logger.Info().
			Str("kind", ev.Kind).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("mid", ev.Mid).
			Msg("OnTrack received")

		c.mu.Lock()
		onTrack, onEnded := c.onTrack, c.onTrackEnded
		c.mu.Unlock()
		if onTrack != nil {
			onTrack(ev)
		}
		go readRemote(ctx, track, c.logger, func() {
			if onEnded != nil {
				onEnded(ev)
			}
		})
	})

	return nil
}

func (c *WebRTCConnection) midOf(receiver *webrtc.RTPReceiver) string {
	for _, t := range c.pc.GetTransceivers() {
		if t.Receiver() == receiver {
			return t.Mid()
		}
	}
	return ""
}

// ApplyOffer answers with trickle ICE; candidates follow through OnICECandidate.
func (c *WebRTCConnection) ApplyOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) CreateRestartOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *WebRTCConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a local track and drains the RTCP of its sender.
func (c *WebRTCConnection) AddTrack(track core.LocalTrack) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[track.ID()] = sender
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) ReplaceSenderTrack(match domain.TrackID, track core.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sender, ok := c.senders[string(match)]
	if !ok {
		return core.ErrSenderNotFound
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return err
	}
	delete(c.senders, string(match))
	c.senders[track.ID()] = sender
	c.logger.Info().Str("old_track_id", string(match)).Str("track_id", track.ID()).Msg("sender track replaced")
	return nil
}

func (c *WebRTCConnection) ReceiverTrackID(mid string) (domain.TrackID, bool) {
	for _, t := range c.pc.GetTransceivers() {
		if t.Mid() != mid || t.Receiver() == nil {
			continue
		}
		if track := t.Receiver().Track(); track != nil {
			return domain.TrackID(track.ID()), true
		}
	}
	return "", false
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrackEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *WebRTCConnection) OnTrackEnded(fn func(core.RemoteTrackEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrackEnded = fn
}

func (c *WebRTCConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}
