// Package domain contains room entities without transport logic, just meta-data and lookups.
package domain

import "github.com/thoas/go-funk"

// Participant is one logical sender. The server sends the authoritative roster with every offer.
type Participant struct {
	DisplayName string    `json:"displayName"`
	IDs         []TrackID `json:"ids"`
}

func (p Participant) Owns(id TrackID) bool {
	return funk.Contains(p.IDs, id)
}

type Roster []Participant

// Lookup finds the participant whose id-set contains the track id.
func (r Roster) Lookup(id TrackID) (Participant, bool) {
	for _, p := range r {
		if p.Owns(id) {
			return p, true
		}
	}
	return Participant{}, false
}

// LabelOf returns the display name owning the track, or "" when the roster does not know it yet.
func (r Roster) LabelOf(id TrackID) string {
	p, _ := r.Lookup(id)
	return p.DisplayName
}
