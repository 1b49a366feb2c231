package core

import (
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Inbound events.
const (
	EventOffer         = "offer"
	EventCandidate     = "candidate"
	EventReplaceTrack  = "replaceTrack"
	EventDisplayTrack  = "displayTrack"
	EventScreensharing = "screensharing"
	EventError         = "error"
	// EventChannelError is raised by the channel itself when the server side crashes or closes it.
	EventChannelError = "phx_error"
	EventChannelClose = "phx_close"
)

// Outbound events.
const (
	EventStart              = "start"
	EventAnswer             = "answer"
	EventStartScreensharing = "start_screensharing"
	EventStopScreensharing  = "stop_screensharing"
	EventConnected          = "connected"
	EventStop               = "stop"
)

const (
	ScreensharingStatusStart = "start"
	ScreensharingStatusStop  = "stop"
)

// DefaultErrorMessage is shown when the socket errors or closes under a running session.
const DefaultErrorMessage = "Cannot connect to the server, try again by refreshing the page"

type JoinParams struct {
	DisplayName string `json:"displayName"`
}

type OfferMessage struct {
	Data         webrtc.SessionDescription `json:"data"`
	Participants domain.Roster             `json:"participants"`
}

type CandidateMessage struct {
	Data webrtc.ICECandidateInit `json:"data"`
}

type AnswerMessage struct {
	Data webrtc.SessionDescription `json:"data"`
}

type ReplaceTrackMessage struct {
	Data struct {
		OldTrackID domain.TrackID `json:"oldTrackId"`
		NewTrackID domain.TrackID `json:"newTrackId"`
	} `json:"data"`
}

type DisplayTrackMessage struct {
	Data struct {
		TrackID domain.TrackID `json:"trackId"`
	} `json:"data"`
}

type ScreensharingMessage struct {
	Mid    string `json:"mid"`
	Status string `json:"status"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

type StartReply struct {
	// nil when the server left the field out
	MaxDisplayNum *int `json:"maxDisplayNum"`
}

// Empty is the payload of events that carry no data.
type Empty struct{}
