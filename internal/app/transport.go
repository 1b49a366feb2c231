package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// transportEvents receives the callbacks of the media transport.
type transportEvents struct {
	candidate  func(webrtc.ICECandidateInit)
	trackAdded func(core.RemoteTrackEvent)
	trackEnded func(core.RemoteTrackEvent)
	state      func(webrtc.PeerConnectionState)
}

// TransportController owns the single media transport of a session.
type TransportController struct {
	factory   core.TransportFactory
	config    webrtc.Configuration
	events    transportEvents
	transport core.MediaTransport
}

func NewTransportController(factory core.TransportFactory, config webrtc.Configuration, events transportEvents) *TransportController {
	return &TransportController{
		factory: factory,
		config:  config,
		events:  events,
	}
}

func (c *TransportController) Created() bool { return c.transport != nil }

// EnsureCreated creates the transport on first call and attaches every local track. Later calls do nothing.
func (c *TransportController) EnsureCreated(ctx context.Context, locals []core.LocalTrack) error {
	if c.transport != nil {
		return nil
	}
	t, err := c.factory(c.config)
	if err != nil {
		return fmt.Errorf("create media transport: %w", err)
	}

	t.OnICECandidate(c.events.candidate)
	t.OnTrack(c.events.trackAdded)
	t.OnTrackEnded(c.events.trackEnded)
	t.OnStateChange(c.events.state)

	if err := t.Start(ctx); err != nil {
		t.Close()
		return fmt.Errorf("start media transport: %w", err)
	}
	for _, track := range locals {
		if err := t.AddTrack(track); err != nil {
			t.Close()
			return fmt.Errorf("attach local track %s: %w", track.ID(), err)
		}
	}

	c.transport = t
	log.Info().Str("module", "app.transport").Int("local_tracks", len(locals)).Msg("media transport created")
	return nil
}

// ApplyRemoteOffer validates and applies a server offer and returns the local answer.
func (c *TransportController) ApplyRemoteOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if c.transport == nil {
		return nil, core.ErrTransportNotReady
	}
	mids, err := validateOffer(offer)
	if err != nil {
		return nil, &core.NegotiationError{Stage: "validate offer", Err: err}
	}
	answer, err := c.transport.ApplyOffer(offer)
	if err != nil {
		return nil, &core.NegotiationError{Stage: "apply offer", Err: err}
	}
	log.Debug().Str("module", "app.transport").Strs("mids", mids).Msg("offer applied")
	return answer, nil
}

func (c *TransportController) RequestICERestart() error {
	if c.transport == nil {
		return core.ErrTransportNotReady
	}
	if _, err := c.transport.CreateRestartOffer(); err != nil {
		return &core.NegotiationError{Stage: "ice restart offer", Err: err}
	}
	return nil
}

func (c *TransportController) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	if c.transport == nil {
		return core.ErrTransportNotReady
	}
	return c.transport.AddICECandidate(candidate)
}

func (c *TransportController) ReplaceSenderTrack(match domain.TrackID, track core.LocalTrack) error {
	if c.transport == nil {
		return core.ErrTransportNotReady
	}
	return c.transport.ReplaceSenderTrack(match, track)
}

// ResolveMid maps a media line id to the inbound track id currently received on it.
func (c *TransportController) ResolveMid(mid string) (domain.TrackID, error) {
	if c.transport == nil {
		return "", core.ErrTransportNotReady
	}
	id, ok := c.transport.ReceiverTrackID(mid)
	if !ok {
		return "", fmt.Errorf("no inbound track on mid %q", mid)
	}
	return id, nil
}

func (c *TransportController) Close() {
	if c.transport == nil {
		return
	}
	c.transport.Close()
	c.transport = nil
}

var errNoMediaSections = errors.New("offer has no media sections")

// validateOffer checks the description is an offer with parseable SDP and a mid on every media line.
func validateOffer(desc webrtc.SessionDescription) ([]string, error) {
	if desc.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("unexpected description type %s", desc.Type)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return nil, err
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, errNoMediaSections
	}
	mids := make([]string, 0, len(parsed.MediaDescriptions))
	for i, md := range parsed.MediaDescriptions {
		mid, ok := md.Attribute(sdp.AttrKeyMID)
		if !ok {
			return nil, fmt.Errorf("media section %d has no mid", i)
		}
		mids = append(mids, mid)
	}
	return mids, nil
}
