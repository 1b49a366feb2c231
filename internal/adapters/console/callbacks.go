// Package console renders session callbacks to a terminal.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type slot struct {
	label  string
	kinds  []string
	screen bool
}

// Callbacks logs every session event and prints the display slots after each change.
type Callbacks struct {
	out     io.Writer
	onFatal func(message string)
	logger  zerolog.Logger

	mu    sync.Mutex
	slots map[domain.StreamID]*slot
}

var _ core.Callbacks = (*Callbacks)(nil)

func NewCallbacks(out io.Writer, name string, onFatal func(message string)) *Callbacks {
	return &Callbacks{
		out:     out,
		onFatal: onFatal,
		logger:  log.With().Str("module", "console").Str("session", name).Logger(),
		slots:   make(map[domain.StreamID]*slot),
	}
}

func (c *Callbacks) OnAddTrack(tc core.TrackContext) {
	c.logger.Info().
		Str("track_id", string(tc.Track.ID)).
		Str("stream_id", string(tc.Stream.ID)).
		Str("label", tc.Label).
		Bool("screensharing", tc.IsScreenSharing).
		Msg("track added")
}

func (c *Callbacks) OnRemoveTrack(tc core.TrackContext) {
	c.logger.Info().
		Str("track_id", string(tc.Track.ID)).
		Str("stream_id", string(tc.Stream.ID)).
		Msg("track removed")

	c.mu.Lock()
	if len(tc.Stream.Tracks) == 0 {
		delete(c.slots, tc.Stream.ID)
	}
	c.mu.Unlock()
	c.render()
}

func (c *Callbacks) OnDisplayStream(stream domain.StreamInfo, label string) {
	c.logger.Info().Str("stream_id", string(stream.ID)).Str("label", label).Msg("display stream")
	c.mu.Lock()
	c.slots[stream.ID] = newSlot(stream, label)
	c.mu.Unlock()
	c.render()
}

func (c *Callbacks) OnReplaceStream(oldStream, newStream domain.StreamInfo, label string) {
	c.logger.Info().
		Str("old_stream_id", string(oldStream.ID)).
		Str("stream_id", string(newStream.ID)).
		Str("label", label).
		Msg("replace stream")
	c.mu.Lock()
	delete(c.slots, oldStream.ID)
	c.slots[newStream.ID] = newSlot(newStream, label)
	c.mu.Unlock()
	c.render()
}

func (c *Callbacks) OnScreensharingStart(sc core.ScreensharingContext) {
	if sc.Local {
		c.logger.Info().Str("track_id", string(sc.TrackID)).Msg("sharing screen")
		return
	}
	c.logger.Info().Str("stream_id", string(sc.StreamID)).Msg("remote screensharing started")
	c.mu.Lock()
	s := newSlot(sc.Stream, "")
	s.screen = true
	c.slots[sc.StreamID] = s
	c.mu.Unlock()
	c.render()
}

func (c *Callbacks) OnScreensharingEnd() {
	c.logger.Info().Msg("screensharing ended")
	c.mu.Lock()
	for id, s := range c.slots {
		if s.screen {
			delete(c.slots, id)
		}
	}
	c.mu.Unlock()
	c.render()
}

func (c *Callbacks) OnConnectionError(message string) {
	c.logger.Error().Str("message", message).Msg("connection error")
	if c.onFatal != nil {
		c.onFatal(message)
	}
}

func newSlot(stream domain.StreamInfo, label string) *slot {
	s := &slot{label: label, screen: stream.IsScreenSharing}
	for _, t := range stream.Tracks {
		s.kinds = append(s.kinds, t.Kind)
	}
	return s
}

func (c *Callbacks) render() {
	if c.out == nil {
		return
	}
	c.mu.Lock()
	ids := make([]string, 0, len(c.slots))
	for id := range c.slots {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		s := c.slots[domain.StreamID(id)]
		kind := "camera"
		if s.screen {
			kind = "screen"
		}
		rows = append(rows, []string{id, s.label, kind, strings.Join(s.kinds, "+")})
	}
	c.mu.Unlock()

	table := tablewriter.NewWriter(c.out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stream", "Participant", "Slot", "Tracks"})
	table.AppendBulk(rows)
	table.SetCaption(true, fmt.Sprintf("%d stream(s) on screen", len(rows)))
	table.Render()
}
