package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/rs/zerolog/log"
)

// Channel is one joined topic on a Socket.
type Channel struct {
	socket *Socket
	topic  string
	params any

	mu       sync.Mutex
	joinRef  string
	joined   bool
	handlers map[string][]func([]byte)
}

func (c *Channel) Topic() string { return c.topic }

func (c *Channel) Join(ctx context.Context) ([]byte, error) {
	payload, err := encodePayload(c.params)
	if err != nil {
		return nil, &core.ChannelError{Op: "join", Err: err}
	}
	ref := c.socket.nextRef()
	c.mu.Lock()
	c.joinRef = ref
	c.mu.Unlock()

	r, err := c.socket.push(ctx, Frame{JoinRef: ref, Ref: ref, Topic: c.topic, Event: eventJoin, Payload: payload})
	if err != nil {
		return nil, &core.ChannelError{Op: "join", Err: err}
	}
	if r.Status != statusOK {
		return nil, &core.ChannelError{Op: "join", Err: fmt.Errorf("rejected with %s: %s", r.Status, r.Response)}
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	log.Info().Str("module", "signal").Str("topic", c.topic).Msg("channel joined")
	return r.Response, nil
}

func (c *Channel) Push(ctx context.Context, event string, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, &core.RemoteError{Event: event, Err: err}
	}
	r, err := c.socket.push(ctx, Frame{JoinRef: c.currentJoinRef(), Topic: c.topic, Event: event, Payload: raw})
	if err != nil {
		return nil, &core.RemoteError{Event: event, Err: err}
	}
	if r.Status != statusOK {
		return nil, &core.RemoteError{Event: event, Reason: string(r.Response)}
	}
	return r.Response, nil
}

func (c *Channel) Cast(event string, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return c.socket.cast(Frame{JoinRef: c.currentJoinRef(), Topic: c.topic, Event: event, Payload: raw})
}

func (c *Channel) On(event string, fn func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *Channel) Leave() error {
	c.mu.Lock()
	joined := c.joined
	c.joined = false
	c.mu.Unlock()
	defer c.socket.removeChannel(c)

	if !joined {
		return nil
	}
	log.Info().Str("module", "signal").Str("topic", c.topic).Msg("leaving channel")
	return c.socket.cast(Frame{JoinRef: c.currentJoinRef(), Topic: c.topic, Event: eventLeave})
}

func (c *Channel) currentJoinRef() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinRef
}

func (c *Channel) dispatch(f Frame) {
	c.mu.Lock()
	if f.JoinRef != "" && f.JoinRef != c.joinRef {
		c.mu.Unlock()
		log.Debug().Str("module", "signal").Str("topic", c.topic).Str("event", f.Event).Msg("frame from a stale join")
		return
	}
	if f.Event == eventError || f.Event == eventClose {
		c.joined = false
	}
	fns := append([]func([]byte){}, c.handlers[f.Event]...)
	c.mu.Unlock()

	if len(fns) == 0 {
		log.Debug().Str("module", "signal").Str("topic", c.topic).Str("event", f.Event).Msg("no handler")
		return
	}
	for _, fn := range fns {
		fn(f.Payload)
	}
}
