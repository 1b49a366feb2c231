package app

import (
	"slices"

	"github.com/dkeye/VideoRoom/internal/domain"
)

// DefaultMaxDisplay is used until the server answers the start push.
const DefaultMaxDisplay = 1

// DisplayPolicy decides which non-screensharing remote streams hold a display slot.
// Screensharing streams never count against the cap.
type DisplayPolicy struct {
	maxDisplay int
	// ordered by the time the stream got its slot
	displayed []domain.StreamID
}

func NewDisplayPolicy(maxDisplay int) *DisplayPolicy {
	p := &DisplayPolicy{}
	p.SetMaxDisplay(maxDisplay)
	return p
}

func (p *DisplayPolicy) SetMaxDisplay(n int) {
	if n < 0 {
		n = 0
	}
	p.maxDisplay = n
}

func (p *DisplayPolicy) MaxDisplay() int { return p.maxDisplay }

func (p *DisplayPolicy) DisplayedCount() int { return len(p.displayed) }

func (p *DisplayPolicy) IsDisplayed(id domain.StreamID) bool {
	return slices.Contains(p.displayed, id)
}

func (p *DisplayPolicy) Displayed() []domain.StreamID {
	return slices.Clone(p.displayed)
}

// OnTrackAdded reports whether the stream just earned a display slot.
// It answers true at most once per stream.
func (p *DisplayPolicy) OnTrackAdded(stream *domain.RemoteStream) bool {
	if stream.IsScreenSharing || p.IsDisplayed(stream.ID) {
		return false
	}
	if len(p.displayed)+1 > p.maxDisplay {
		return false
	}
	p.displayed = append(p.displayed, stream.ID)
	return true
}

// OnStreamRemoved releases the slot of a removed stream.
func (p *DisplayPolicy) OnStreamRemoved(id domain.StreamID) bool {
	i := slices.Index(p.displayed, id)
	if i < 0 {
		return false
	}
	p.displayed = slices.Delete(p.displayed, i, i+1)
	return true
}

// Force gives the stream a slot regardless of the automatic policy. When the cap is
// already reached the oldest displayed stream gives its slot up and is returned.
func (p *DisplayPolicy) Force(id domain.StreamID) (evicted domain.StreamID, ok bool) {
	if p.IsDisplayed(id) {
		return "", false
	}
	p.displayed = append(p.displayed, id)
	if len(p.displayed) > p.maxDisplay && len(p.displayed) > 1 {
		evicted = p.displayed[0]
		p.displayed = p.displayed[1:]
		return evicted, true
	}
	return "", false
}

// Replace moves the slot of oldID to newID. Reports whether oldID held a slot.
func (p *DisplayPolicy) Replace(oldID, newID domain.StreamID) bool {
	i := slices.Index(p.displayed, oldID)
	if i < 0 {
		return false
	}
	if j := slices.Index(p.displayed, newID); j >= 0 {
		p.displayed = slices.Delete(p.displayed, i, i+1)
		return true
	}
	p.displayed[i] = newID
	return true
}

func (p *DisplayPolicy) Reset() {
	p.displayed = nil
}
