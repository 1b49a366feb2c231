package app

import (
	"sort"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// TrackRegistry keeps local tracks awaiting negotiation and the inbound track index.
// Not safe for concurrent use; it is owned by the session executor.
type TrackRegistry struct {
	local  []core.LocalTrack
	sealed bool

	streams map[domain.StreamID]*domain.RemoteStream
	byTrack map[domain.TrackID]*domain.RemoteStream
}

func NewTrackRegistry() *TrackRegistry {
	return &TrackRegistry{
		streams: make(map[domain.StreamID]*domain.RemoteStream),
		byTrack: make(map[domain.TrackID]*domain.RemoteStream),
	}
}

// RegisterLocalTrack queues a local track for the transport. Fails once the transport exists.
func (r *TrackRegistry) RegisterLocalTrack(track core.LocalTrack) error {
	if r.sealed {
		return core.ErrTransportAlreadyEstablished
	}
	for _, t := range r.local {
		if t.ID() == track.ID() {
			return nil
		}
	}
	r.local = append(r.local, track)
	log.Info().Str("module", "app.registry").Str("track_id", track.ID()).Str("stream_id", track.StreamID()).Msg("local track registered")
	return nil
}

func (r *TrackRegistry) LocalTracks() []core.LocalTrack {
	out := make([]core.LocalTrack, len(r.local))
	copy(out, r.local)
	return out
}

// Seal marks the transport as created; further local tracks are rejected.
func (r *TrackRegistry) Seal() { r.sealed = true }

func (r *TrackRegistry) Sealed() bool { return r.sealed }

// Resolve maps a track id to its owning stream.
func (r *TrackRegistry) Resolve(id domain.TrackID) (*domain.RemoteStream, bool) {
	s, ok := r.byTrack[id]
	return s, ok
}

func (r *TrackRegistry) Stream(id domain.StreamID) (*domain.RemoteStream, bool) {
	s, ok := r.streams[id]
	return s, ok
}

// OnRemoteTrackAdded indexes an inbound track, creating its stream on first sight.
func (r *TrackRegistry) OnRemoteTrackAdded(ev core.RemoteTrackEvent) (stream *domain.RemoteStream, created bool) {
	stream, ok := r.streams[ev.StreamID]
	if !ok {
		stream = domain.NewRemoteStream(ev.StreamID, domain.IsScreenSharingTrack(ev.TrackID))
		r.streams[ev.StreamID] = stream
		created = true
	}
	if domain.IsScreenSharingTrack(ev.TrackID) {
		stream.IsScreenSharing = true
	}
	stream.AddTrack(ev.Track())
	r.byTrack[ev.TrackID] = stream
	log.Debug().Str("module", "app.registry").Str("track_id", string(ev.TrackID)).Str("stream_id", string(ev.StreamID)).Bool("new_stream", created).Msg("remote track indexed")
	return stream, created
}

// OnRemoteTrackRemoved drops an inbound track. When the stream becomes empty it is removed
// from every index in the same call and fullyRemoved is true.
func (r *TrackRegistry) OnRemoteTrackRemoved(ev core.RemoteTrackEvent) (stream *domain.RemoteStream, fullyRemoved bool, ok bool) {
	stream, ok = r.streams[ev.StreamID]
	if !ok || !stream.RemoveTrack(ev.TrackID) {
		return nil, false, false
	}
	if r.byTrack[ev.TrackID] == stream {
		delete(r.byTrack, ev.TrackID)
	}
	if stream.TrackCount() == 0 {
		delete(r.streams, ev.StreamID)
		fullyRemoved = true
	}
	log.Debug().Str("module", "app.registry").Str("track_id", string(ev.TrackID)).Str("stream_id", string(ev.StreamID)).Bool("stream_removed", fullyRemoved).Msg("remote track removed")
	return stream, fullyRemoved, true
}

// Streams returns the remote streams ordered by id.
func (r *TrackRegistry) Streams() []*domain.RemoteStream {
	out := make([]*domain.RemoteStream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResetRemote forgets every inbound stream.
func (r *TrackRegistry) ResetRemote() {
	r.streams = make(map[domain.StreamID]*domain.RemoteStream)
	r.byTrack = make(map[domain.TrackID]*domain.RemoteStream)
}
