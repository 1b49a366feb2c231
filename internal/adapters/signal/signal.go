package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSocketClosed = errors.New("socket closed")
)

type Options struct {
	// ServerURL is the http(s) or ws(s) base url of the signaling server.
	ServerURL       string
	Header          http.Header
	HeartbeatPeriod time.Duration
	WriteTimeout    time.Duration
	ReadLimit       int64
	SendBuffer      int
}

func (o *Options) setDefaults() {
	if o.HeartbeatPeriod <= 0 {
		o.HeartbeatPeriod = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

// EndpointURL returns the Phoenix v2 websocket endpoint of a server.
func EndpointURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket/websocket"
	q := u.Query()
	q.Set("vsn", "2.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Socket is a Phoenix websocket connection multiplexing channels by topic.
type Socket struct {
	conn *websocket.Conn
	send chan []byte
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	ref       atomic.Uint64
	closeOnce sync.Once

	mu       sync.RWMutex
	closed   bool
	channels map[string]*Channel
	pending  map[string]chan reply
	errorFns map[core.ListenerRef]func(error)
	closeFns map[core.ListenerRef]func()
}

func Dial(ctx context.Context, opts Options) (*Socket, error) {
	opts.setDefaults()
	endpoint, err := EndpointURL(opts.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("signaling endpoint: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	log.Info().Str("module", "signal").Str("url", endpoint).Msg("socket connected")
	return newSocket(conn, opts), nil
}

func newSocket(conn *websocket.Conn, opts Options) *Socket {
	opts.setDefaults()
	conn.SetReadLimit(opts.ReadLimit)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		conn:     conn,
		send:     make(chan []byte, opts.SendBuffer),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		channels: make(map[string]*Channel),
		pending:  make(map[string]chan reply),
		errorFns: make(map[core.ListenerRef]func(error)),
		closeFns: make(map[core.ListenerRef]func()),
	}
	go s.writePump()
	go s.readPump()
	go s.heartbeat()
	return s
}

func (s *Socket) nextRef() string {
	return strconv.FormatUint(s.ref.Inc(), 10)
}

// Channel creates the channel for topic. A previous channel on the same topic stops receiving events.
func (s *Socket) Channel(topic string, params any) core.SignalChannel {
	ch := &Channel{
		socket:   s,
		topic:    topic,
		params:   params,
		handlers: make(map[string][]func([]byte)),
	}
	s.mu.Lock()
	s.channels[topic] = ch
	s.mu.Unlock()
	return ch
}

func (s *Socket) removeChannel(ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[ch.topic] == ch {
		delete(s.channels, ch.topic)
	}
}

func (s *Socket) OnError(fn func(error)) core.ListenerRef {
	ref := core.ListenerRef("error-" + s.nextRef())
	s.mu.Lock()
	s.errorFns[ref] = fn
	s.mu.Unlock()
	return ref
}

func (s *Socket) OnClose(fn func()) core.ListenerRef {
	ref := core.ListenerRef("close-" + s.nextRef())
	s.mu.Lock()
	s.closeFns[ref] = fn
	s.mu.Unlock()
	return ref
}

func (s *Socket) Off(refs ...core.ListenerRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.errorFns, ref)
		delete(s.closeFns, ref)
	}
}

// TrySend queues an encoded frame without blocking.
func (s *Socket) TrySend(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSocketClosed
	}
	select {
	case s.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *Socket) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.TrySend(data)
}

// push sends a frame and waits for the phx_reply carrying the same ref.
func (s *Socket) push(ctx context.Context, f Frame) (reply, error) {
	if f.Ref == "" {
		f.Ref = s.nextRef()
	}
	wait := make(chan reply, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return reply{}, ErrSocketClosed
	}
	s.pending[f.Ref] = wait
	s.mu.Unlock()

	if err := s.write(f); err != nil {
		s.forget(f.Ref)
		return reply{}, err
	}

	select {
	case r := <-wait:
		return r, nil
	case <-ctx.Done():
		s.forget(f.Ref)
		return reply{}, ctx.Err()
	case <-s.done:
		return reply{}, ErrSocketClosed
	}
}

func (s *Socket) cast(f Frame) error {
	if f.Ref == "" {
		f.Ref = s.nextRef()
	}
	return s.write(f)
}

func (s *Socket) forget(ref string) {
	s.mu.Lock()
	delete(s.pending, ref)
	s.mu.Unlock()
}

func (s *Socket) route(f Frame) {
	if f.Event == eventReply {
		s.mu.Lock()
		wait, ok := s.pending[f.Ref]
		delete(s.pending, f.Ref)
		s.mu.Unlock()
		if !ok {
			return
		}
		r, err := decodeReply(f.Payload)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("topic", f.Topic).Msg("malformed reply")
			r = reply{Status: "error", Response: f.Payload}
		}
		wait <- r
		return
	}

	s.mu.RLock()
	ch := s.channels[f.Topic]
	s.mu.RUnlock()
	if ch == nil {
		log.Debug().Str("module", "signal").Str("topic", f.Topic).Str("event", f.Event).Msg("frame for unknown topic")
		return
	}
	ch.dispatch(f)
}

func (s *Socket) heartbeat() {
	ticker := time.NewTicker(s.opts.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.opts.HeartbeatPeriod)
			_, err := s.push(ctx, Frame{Topic: phoenixTopic, Event: eventHeartbeat})
			cancel()
			if err != nil && s.ctx.Err() == nil {
				s.shutdown(fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

// Close closes the connection. Close listeners still fire.
func (s *Socket) Close() { s.shutdown(nil) }

// Done is closed once the socket is closed and every listener ran.
func (s *Socket) Done() <-chan struct{} { return s.done }

func (s *Socket) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.send)
		errorFns := make([]func(error), 0, len(s.errorFns))
		for _, fn := range s.errorFns {
			errorFns = append(errorFns, fn)
		}
		closeFns := make([]func(), 0, len(s.closeFns))
		for _, fn := range s.closeFns {
			closeFns = append(closeFns, fn)
		}
		s.pending = make(map[string]chan reply)
		s.mu.Unlock()

		s.cancel()
		_ = s.conn.Close()

		if cause != nil {
			log.Error().Err(cause).Str("module", "signal").Msg("socket failed")
			for _, fn := range errorFns {
				fn(cause)
			}
		} else {
			log.Info().Str("module", "signal").Msg("socket closed")
		}
		for _, fn := range closeFns {
			fn()
		}
		close(s.done)
	})
}
