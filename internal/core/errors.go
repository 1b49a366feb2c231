package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized              = errors.New("signaling channel is not initialized")
	ErrTransportNotReady           = errors.New("media transport is not created yet")
	ErrTransportAlreadyEstablished = errors.New("adding tracks when connection is established is not supported")
	ErrSenderNotFound              = errors.New("no sender carries the requested track")
	ErrInvalidState                = errors.New("operation is not valid in the current negotiation state")
	ErrScreensharingUnsupported    = errors.New("screensharing needs a screensharing session")
	ErrScreensharingActive         = errors.New("screensharing is already active")
)

// ChannelError is a join/leave or socket level failure. It closes the session.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// RemoteError is a push the server rejected or never answered.
type RemoteError struct {
	Event  string
	Reason string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("push %q: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("push %q rejected: %s", e.Event, e.Reason)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NegotiationError is a malformed or unsupported session description.
type NegotiationError struct {
	Stage string
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed at %s: %v", e.Stage, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
