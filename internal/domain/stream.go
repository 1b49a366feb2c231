package domain

import (
	"sort"
	"strings"
)

// ScreenSharingMarker tags screensharing track ids.
const ScreenSharingMarker = "SCREEN"

func IsScreenSharingTrack(id TrackID) bool {
	return strings.Contains(string(id), ScreenSharingMarker)
}

// RemoteTrack is an inbound track as reported by the media transport.
type RemoteTrack struct {
	ID       TrackID  `json:"id"`
	StreamID StreamID `json:"stream_id"`
	Kind     string   `json:"kind"`
	Mid      string   `json:"mid,omitempty"`
}

// RemoteStream groups the inbound tracks of one remote media stream.
type RemoteStream struct {
	ID              StreamID
	IsScreenSharing bool
	tracks          map[TrackID]RemoteTrack
}

func NewRemoteStream(id StreamID, screenSharing bool) *RemoteStream {
	return &RemoteStream{
		ID:              id,
		IsScreenSharing: screenSharing,
		tracks:          make(map[TrackID]RemoteTrack),
	}
}

func (s *RemoteStream) AddTrack(t RemoteTrack) {
	s.tracks[t.ID] = t
}

// RemoveTrack reports whether the track belonged to the stream.
func (s *RemoteStream) RemoveTrack(id TrackID) bool {
	if _, ok := s.tracks[id]; !ok {
		return false
	}
	delete(s.tracks, id)
	return true
}

func (s *RemoteStream) HasTrack(id TrackID) bool {
	_, ok := s.tracks[id]
	return ok
}

func (s *RemoteStream) TrackCount() int { return len(s.tracks) }

// Tracks returns the tracks ordered by id.
func (s *RemoteStream) Tracks() []RemoteTrack {
	out := make([]RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StreamInfo is a read-only copy of a RemoteStream, safe to hand to other goroutines.
type StreamInfo struct {
	ID              StreamID      `json:"id"`
	IsScreenSharing bool          `json:"is_screensharing"`
	Tracks          []RemoteTrack `json:"tracks"`
}

func (s *RemoteStream) Info() StreamInfo {
	return StreamInfo{
		ID:              s.ID,
		IsScreenSharing: s.IsScreenSharing,
		Tracks:          s.Tracks(),
	}
}
