package core

import "github.com/dkeye/VideoRoom/internal/domain"

// TrackContext describes an inbound track for the UI layer.
type TrackContext struct {
	Track           domain.RemoteTrack
	Stream          domain.StreamInfo
	Label           string
	IsScreenSharing bool
}

// ScreensharingContext describes a screensharing start.
// Local shares carry the captured track ids, remote shares carry the stream.
type ScreensharingContext struct {
	Local    bool
	TrackID  domain.TrackID
	StreamID domain.StreamID
	Stream   domain.StreamInfo
}

// Callbacks is the event surface handed to the UI layer.
// Embed NoopCallbacks to implement only the handlers you need.
type Callbacks interface {
	OnAddTrack(TrackContext)
	OnRemoveTrack(TrackContext)
	OnDisplayStream(stream domain.StreamInfo, label string)
	OnReplaceStream(oldStream, newStream domain.StreamInfo, label string)
	OnScreensharingStart(ScreensharingContext)
	OnScreensharingEnd()
	OnConnectionError(message string)
}

type NoopCallbacks struct{}

func (NoopCallbacks) OnAddTrack(TrackContext) {}
func (NoopCallbacks) OnRemoveTrack(TrackContext) {}
func (NoopCallbacks) OnDisplayStream(domain.StreamInfo, string) {}
func (NoopCallbacks) OnReplaceStream(domain.StreamInfo, domain.StreamInfo, string) {}
func (NoopCallbacks) OnScreensharingStart(ScreensharingContext) {}
func (NoopCallbacks) OnScreensharingEnd() {}
func (NoopCallbacks) OnConnectionError(string) {}
