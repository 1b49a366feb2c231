package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testOfferSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func testOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testOfferSDP}
}

type sent struct {
	event   string
	payload any
}

type fakeChannel struct {
	topic string

	mu       sync.Mutex
	params   any
	handlers map[string]func([]byte)
	casts    []sent
	pushes   []sent
	joined   bool
	left     bool

	joinErr    error
	pushErr    map[string]error
	startReply []byte
	// castHook runs outside the lock and may block.
	castHook func(event string)
}

func newFakeChannel(topic string) *fakeChannel {
	return &fakeChannel{
		topic:    topic,
		handlers: make(map[string]func([]byte)),
		pushErr:  make(map[string]error),
	}
}

func (c *fakeChannel) Topic() string { return c.topic }

func (c *fakeChannel) Join(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinErr != nil {
		return nil, &core.ChannelError{Op: "join", Err: c.joinErr}
	}
	c.joined = true
	return []byte("{}"), nil
}

func (c *fakeChannel) Push(ctx context.Context, event string, payload any) ([]byte, error) {
	c.mu.Lock()
	c.pushes = append(c.pushes, sent{event, payload})
	err := c.pushErr[event]
	reply := c.startReply
	c.mu.Unlock()
	if err != nil {
		return nil, &core.RemoteError{Event: event, Reason: err.Error()}
	}
	if event == core.EventStart {
		return reply, nil
	}
	return []byte("{}"), nil
}

func (c *fakeChannel) Cast(event string, payload any) error {
	c.mu.Lock()
	c.casts = append(c.casts, sent{event, payload})
	hook := c.castHook
	c.mu.Unlock()
	if hook != nil {
		hook(event)
	}
	return nil
}

func (c *fakeChannel) On(event string, fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

func (c *fakeChannel) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

// deliver simulates an inbound server event.
func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	c.mu.Lock()
	fn := c.handlers[event]
	c.mu.Unlock()
	require.NotNil(t, fn, "no handler for %s", event)
	fn(raw)
}

func (c *fakeChannel) castEvents(event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, s := range c.casts {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChannel) pushEvents(event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, s := range c.pushes {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeChannel) hasLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

type fakeSocket struct {
	channel *fakeChannel

	mu      sync.Mutex
	next    int
	onError map[core.ListenerRef]func(error)
	onClose map[core.ListenerRef]func()
	removed []core.ListenerRef
}

func newFakeSocket(ch *fakeChannel) *fakeSocket {
	return &fakeSocket{
		channel: ch,
		onError: make(map[core.ListenerRef]func(error)),
		onClose: make(map[core.ListenerRef]func()),
	}
}

func (s *fakeSocket) Channel(topic string, params any) core.SignalChannel {
	s.channel.mu.Lock()
	s.channel.topic = topic
	s.channel.params = params
	s.channel.mu.Unlock()
	return s.channel
}

func (s *fakeSocket) ref() core.ListenerRef {
	s.next++
	return core.ListenerRef(fmt.Sprintf("%d", s.next))
}

func (s *fakeSocket) OnError(fn func(error)) core.ListenerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ref()
	s.onError[r] = fn
	return r
}

func (s *fakeSocket) OnClose(fn func()) core.ListenerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ref()
	s.onClose[r] = fn
	return r
}

func (s *fakeSocket) Off(refs ...core.ListenerRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range refs {
		delete(s.onError, r)
		delete(s.onClose, r)
		s.removed = append(s.removed, r)
	}
}

func (s *fakeSocket) fireClose() {
	s.mu.Lock()
	var fns []func()
	for _, fn := range s.onClose {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeSocket) listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.onError) + len(s.onClose)
}

type fakeTransport struct {
	mu         sync.Mutex
	started    bool
	closed     bool
	senders    []core.LocalTrack
	mids       map[string]domain.TrackID
	applied    int
	restarts   int
	candidates []webrtc.ICECandidateInit
	applyErr   error

	onCandidate  func(webrtc.ICECandidateInit)
	onTrack      func(core.RemoteTrackEvent)
	onTrackEnded func(core.RemoteTrackEvent)
	onState      func(webrtc.PeerConnectionState)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{mids: make(map[string]domain.TrackID)}
}

func (f *fakeTransport) factory() core.TransportFactory {
	return func(webrtc.Configuration) (core.MediaTransport, error) { return f, nil }
}

func (f *fakeTransport) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) AddTrack(track core.LocalTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.senders = append(f.senders, track)
	return nil
}

func (f *fakeTransport) ApplyOffer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.applied)}, nil
}

func (f *fakeTransport) CreateRestartOffer() (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "restart"}, nil
}

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeTransport) ReplaceSenderTrack(match domain.TrackID, track core.LocalTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.senders {
		if s != nil && s.ID() == string(match) {
			f.senders[i] = track
			return nil
		}
	}
	return core.ErrSenderNotFound
}

func (f *fakeTransport) ReceiverTrackID(mid string) (domain.TrackID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.mids[mid]
	return id, ok
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = fn
}

func (f *fakeTransport) OnTrack(fn func(core.RemoteTrackEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *fakeTransport) OnTrackEnded(fn func(core.RemoteTrackEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrackEnded = fn
}

func (f *fakeTransport) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeTransport) fireTrack(ev core.RemoteTrackEvent) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	fn(ev)
}

func (f *fakeTransport) fireTrackEnded(ev core.RemoteTrackEvent) {
	f.mu.Lock()
	fn := f.onTrackEnded
	f.mu.Unlock()
	fn(ev)
}

func (f *fakeTransport) fireCandidate(c webrtc.ICECandidateInit) {
	f.mu.Lock()
	fn := f.onCandidate
	f.mu.Unlock()
	fn(c)
}

func (f *fakeTransport) fireState(s webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	fn(s)
}

func (f *fakeTransport) senderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.senders))
	for _, s := range f.senders {
		out = append(out, s.ID())
	}
	return out
}

func (f *fakeTransport) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// testTrack is a sample track whose end can be triggered by the test.
type testTrack struct {
	*webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	stopped bool
	ended   bool
	onEnded []func()
}

func newTestTrack(t *testing.T, id, stream string) *testTrack {
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, stream)
	require.NoError(t, err)
	return &testTrack{TrackLocalStaticSample: tr}
}

func (t *testTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.end()
}

func (t *testTrack) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (t *testTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *testTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeCapturer struct {
	track *testTrack
	err   error
}

func (c *fakeCapturer) Capture(context.Context) (core.LocalTrack, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.track, nil
}

// recorder records callbacks as short strings.
type recorder struct {
	mu     sync.Mutex
	events []string
	// onError runs inside OnConnectionError when set
	onError func()
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(ev string) int {
	n := 0
	for _, e := range r.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) OnAddTrack(tc core.TrackContext) {
	r.add("add:%s:%s", tc.Track.ID, tc.Stream.ID)
}

func (r *recorder) OnRemoveTrack(tc core.TrackContext) {
	r.add("remove:%s:%s", tc.Track.ID, tc.Stream.ID)
}

func (r *recorder) OnDisplayStream(s domain.StreamInfo, label string) {
	r.add("display:%s:%s", s.ID, label)
}

func (r *recorder) OnReplaceStream(o, n domain.StreamInfo, label string) {
	r.add("replace:%s:%s:%s", o.ID, n.ID, label)
}

func (r *recorder) OnScreensharingStart(sc core.ScreensharingContext) {
	if sc.Local {
		r.add("screen_start:local:%s", sc.TrackID)
		return
	}
	r.add("screen_start:remote:%s", sc.StreamID)
}

func (r *recorder) OnScreensharingEnd() { r.add("screen_end") }

func (r *recorder) OnConnectionError(msg string) {
	r.add("error:%s", msg)
	if r.onError != nil {
		r.onError()
	}
}

// newTestState builds a session state driven directly through the dispatch table.
func newTestState(t *testing.T, mode domain.Mode) (*state, *fakeTransport, *fakeChannel) {
	ft := newFakeTransport()
	tc := NewTransportController(ft.factory(), webrtc.Configuration{}, transportEvents{})
	ch := newFakeChannel(domain.Topic("test", mode))
	st := &state{
		log:         zerolog.Nop(),
		mode:        mode,
		topic:       ch.topic,
		pushTimeout: time.Second,
		socket:      newFakeSocket(ch),
		channel:     ch,
		phase:       phaseStarted,
		registry:    NewTrackRegistry(),
		policy:      NewDisplayPolicy(DefaultMaxDisplay),
		transport:   tc,
		negotiator:  NewNegotiator(tc),
		post:        func(event) {},
	}
	return st, ft, ch
}

func payload(t *testing.T, v any) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func react(t *testing.T, st *state, rec *recorder, name string, data any) error {
	h, ok := dispatch[name]
	require.True(t, ok, name)
	err := h(context.Background(), st, event{name: name, data: data})
	for _, n := range st.takePending() {
		n(rec)
	}
	return err
}

func offerPayload(t *testing.T, roster domain.Roster) []byte {
	return payload(t, core.OfferMessage{Data: testOffer(), Participants: roster})
}

func remoteTrack(track, stream string) core.RemoteTrackEvent {
	return core.RemoteTrackEvent{TrackID: domain.TrackID(track), StreamID: domain.StreamID(stream), Kind: "video"}
}
