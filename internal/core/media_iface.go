package core

import (
	"context"

	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/webrtc/v4"
)

// LocalTrack is a locally produced track that can be attached to a media transport.
type LocalTrack interface {
	webrtc.TrackLocal
	// Stop ends the track and releases its source.
	Stop()
	// OnEnded registers fn to run once the track ends. Registering after the end runs fn right away.
	OnEnded(fn func())
}

// Capturer produces the local screensharing track.
type Capturer interface {
	Capture(ctx context.Context) (LocalTrack, error)
}

// RemoteTrackEvent describes an inbound track reported by the media transport.
type RemoteTrackEvent struct {
	TrackID  domain.TrackID
	StreamID domain.StreamID
	Mid      string
	Kind     string
}

func (e RemoteTrackEvent) Track() domain.RemoteTrack {
	return domain.RemoteTrack{ID: e.TrackID, StreamID: e.StreamID, Kind: e.Kind, Mid: e.Mid}
}

// MediaTransport is the connection object doing ICE, DTLS and SRTP.
type MediaTransport interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	AddTrack(track LocalTrack) error
	// ApplyOffer sets the remote offer, creates and sets the local answer and returns it.
	ApplyOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// CreateRestartOffer creates a local offer with ICE restart semantics.
	CreateRestartOffer() (*webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	// ReplaceSenderTrack swaps the track of the sender currently carrying match.
	// Returns ErrSenderNotFound if no sender carries it.
	ReplaceSenderTrack(match domain.TrackID, track LocalTrack) error
	// ReceiverTrackID resolves a media line id to its inbound track id.
	ReceiverTrackID(mid string) (domain.TrackID, bool)
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(RemoteTrackEvent))
	// OnTrackEnded fires when an inbound track stops delivering media for good.
	OnTrackEnded(func(RemoteTrackEvent))
	OnStateChange(func(webrtc.PeerConnectionState))
}

// TransportFactory creates the single media transport of a session.
type TransportFactory func(cfg webrtc.Configuration) (MediaTransport, error)
