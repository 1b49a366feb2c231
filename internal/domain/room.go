package domain

import "fmt"

type (
	RoomID   string
	TrackID  string
	StreamID string
)

// Mode selects which room channel a session talks to.
type Mode string

const (
	ModeParticipant   Mode = "participant"
	ModeScreensharing Mode = "screensharing"
)

func (m Mode) Valid() bool {
	return m == ModeParticipant || m == ModeScreensharing
}

// Topic returns the signaling channel topic for a room.
func Topic(room RoomID, mode Mode) string {
	if mode == ModeScreensharing {
		return fmt.Sprintf("room:screensharing:%s", room)
	}
	return fmt.Sprintf("room:%s", room)
}
