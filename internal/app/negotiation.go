package app

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type NegotiationState int32

const (
	// no media transport yet, waiting for the first server offer
	NegotiationUninitialized NegotiationState = iota
	// applying a server offer
	NegotiationOffering
	NegotiationStable
	// local ICE restart requested, waiting for the next server offer
	NegotiationRestarting
	NegotiationClosed
)

func (n NegotiationState) String() string {
	switch n {
	case NegotiationUninitialized:
		return "UNINITIALIZED"
	case NegotiationOffering:
		return "OFFERING"
	case NegotiationStable:
		return "STABLE"
	case NegotiationRestarting:
		return "RESTARTING"
	case NegotiationClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("%d", int(n))
	}
}

// Negotiator sequences offer/answer and ICE restart cycles. The server initiates every
// offer; the negotiator only answers, so glare cannot happen.
type Negotiator struct {
	state     NegotiationState
	hadStable bool
	transport *TransportController
}

func NewNegotiator(transport *TransportController) *Negotiator {
	return &Negotiator{transport: transport}
}

func (n *Negotiator) State() NegotiationState { return n.state }

// HandleOffer creates the transport if needed, applies the offer and hands the answer to send.
// On failure the negotiator falls back to Stable when a stable connection existed before,
// otherwise it ends in Closed.
func (n *Negotiator) HandleOffer(
	ctx context.Context,
	offer webrtc.SessionDescription,
	locals []core.LocalTrack,
	send func(answer webrtc.SessionDescription) error,
) error {
	switch n.state {
	case NegotiationClosed:
		return core.ErrNotInitialized
	case NegotiationOffering:
		return fmt.Errorf("offer while offering: %w", core.ErrInvalidState)
	}

	from := n.state
	n.state = NegotiationOffering
	log.Debug().Str("module", "app.negotiation").Str("from", from.String()).Msg("applying offer")

	if err := n.transport.EnsureCreated(ctx, locals); err != nil {
		n.fallBack()
		return err
	}
	answer, err := n.transport.ApplyRemoteOffer(offer)
	if err != nil {
		n.fallBack()
		return err
	}
	if err := send(*answer); err != nil {
		n.fallBack()
		return err
	}

	n.state = NegotiationStable
	n.hadStable = true
	return nil
}

func (n *Negotiator) fallBack() {
	if n.hadStable {
		n.state = NegotiationStable
		return
	}
	n.state = NegotiationClosed
}

// RequestICERestart creates a local ICE restart offer. The restart completes with the next server offer.
func (n *Negotiator) RequestICERestart() error {
	if n.state != NegotiationStable {
		return fmt.Errorf("ice restart in %s: %w", n.state, core.ErrInvalidState)
	}
	if err := n.transport.RequestICERestart(); err != nil {
		return err
	}
	n.state = NegotiationRestarting
	return nil
}

func (n *Negotiator) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	switch n.state {
	case NegotiationUninitialized:
		return core.ErrTransportNotReady
	case NegotiationClosed:
		return core.ErrNotInitialized
	}
	return n.transport.AddRemoteCandidate(c)
}

func (n *Negotiator) Close() {
	n.transport.Close()
	n.state = NegotiationClosed
}
