package core

import "context"

// ListenerRef identifies a socket-level listener so it can be detached with Off.
type ListenerRef string

// SignalSocket is the framed message transport shared by every channel of a client.
// Owned by the adapter; sessions only attach and detach listeners.
type SignalSocket interface {
	Channel(topic string, params any) SignalChannel
	OnError(func(error)) ListenerRef
	OnClose(func()) ListenerRef
	Off(refs ...ListenerRef)
}

// SignalChannel is one logical session on a topic.
// Events and replies on one channel arrive in send order.
type SignalChannel interface {
	Topic() string
	// Join returns the server join response or a *ChannelError.
	Join(ctx context.Context) ([]byte, error)
	// Push sends an event and waits for the server reply. Rejections are *RemoteError.
	Push(ctx context.Context, event string, payload any) ([]byte, error)
	// Cast sends an event without waiting for a reply.
	Cast(event string, payload any) error
	// On registers a handler for a named inbound event.
	On(event string, fn func(payload []byte))
	Leave() error
}
