package rtc

import (
	"sync"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Placeholder is a VP8 track that never carries a frame. It reserves the sender a
// screensharing track is later swapped into.
type Placeholder struct {
	*webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	stopped bool
	onEnded []func()
}

func NewPlaceholder() (core.LocalTrack, error) {
	id := "placeholder-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, id)
	if err != nil {
		return nil, err
	}
	return &Placeholder{TrackLocalStaticSample: track}, nil
}

func (p *Placeholder) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	fns := p.onEnded
	p.onEnded = nil
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *Placeholder) OnEnded(fn func()) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		fn()
		return
	}
	p.onEnded = append(p.onEnded, fn)
	p.mu.Unlock()
}
