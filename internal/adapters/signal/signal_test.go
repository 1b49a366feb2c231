package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// phoenixServer answers joins, heartbeats and a few test events like a Phoenix endpoint.
type phoenixServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []Frame
}

func newPhoenixServer(t *testing.T) *phoenixServer {
	ps := &phoenixServer{t: t}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket/websocket" || r.URL.Query().Get("vsn") != "2.0.0" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conn = conn
		ps.mu.Unlock()
		ps.serve(conn)
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *phoenixServer) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		ps.mu.Lock()
		ps.received = append(ps.received, f)
		ps.mu.Unlock()

		switch f.Event {
		case eventJoin:
			if f.Topic == "room:denied" {
				ps.reply(f, "error", `{"reason":"unauthorized"}`)
			} else {
				ps.reply(f, statusOK, `{}`)
			}
		case eventHeartbeat:
			ps.reply(f, statusOK, `{}`)
		case "start":
			ps.reply(f, statusOK, `{"maxDisplayNum":2}`)
		case "bad":
			ps.reply(f, "error", `{"reason":"nope"}`)
		}
	}
}

func (ps *phoenixServer) reply(f Frame, status, response string) {
	ps.write(Frame{
		JoinRef: f.JoinRef,
		Ref:     f.Ref,
		Topic:   f.Topic,
		Event:   eventReply,
		Payload: json.RawMessage(`{"status":"` + status + `","response":` + response + `}`),
	})
}

func (ps *phoenixServer) write(f Frame) {
	data, err := json.Marshal(f)
	require.NoError(ps.t, err)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.NoError(ps.t, ps.conn.WriteMessage(websocket.TextMessage, data))
}

func (ps *phoenixServer) dropConnection() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_ = ps.conn.Close()
}

func (ps *phoenixServer) frames(event string) []Frame {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	var out []Frame
	for _, f := range ps.received {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func dial(t *testing.T, ps *phoenixServer, opts Options) *Socket {
	opts.ServerURL = ps.srv.URL
	s, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in, want string
		err      bool
	}{
		{in: "http://localhost:4000", want: "ws://localhost:4000/socket/websocket?vsn=2.0.0"},
		{in: "https://rooms.example.com/", want: "wss://rooms.example.com/socket/websocket?vsn=2.0.0"},
		{in: "wss://rooms.example.com/base", want: "wss://rooms.example.com/base/socket/websocket?vsn=2.0.0"},
		{in: "ftp://rooms.example.com", err: true},
	}
	for _, tt := range tests {
		got, err := EndpointURL(tt.in)
		if tt.err {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestFrameCodec(t *testing.T) {
	data, err := json.Marshal(Frame{JoinRef: "1", Ref: "1", Topic: "room:1", Event: eventJoin, Payload: json.RawMessage(`{"displayName":"a"}`)})
	require.NoError(t, err)
	require.JSONEq(t, `["1","1","room:1","phx_join",{"displayName":"a"}]`, string(data))

	data, err = json.Marshal(Frame{Topic: phoenixTopic, Event: eventHeartbeat})
	require.NoError(t, err)
	require.JSONEq(t, `[null,null,"phoenix","heartbeat",{}]`, string(data))

	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`[null,"7","room:1","offer",{"data":{}}]`), &f))
	require.Equal(t, Frame{Ref: "7", Topic: "room:1", Event: "offer", Payload: json.RawMessage(`{"data":{}}`)}, f)

	require.Error(t, json.Unmarshal([]byte(`["1","room:1"]`), &f))
}

func TestChannelJoinPushCast(t *testing.T) {
	ps := newPhoenixServer(t)
	s := dial(t, ps, Options{})
	ch := s.Channel("room:1", core.JoinParams{DisplayName: "alice"})

	_, err := ch.Join(context.Background())
	require.NoError(t, err)
	joins := ps.frames(eventJoin)
	require.Len(t, joins, 1)
	require.Equal(t, joins[0].JoinRef, joins[0].Ref)
	require.JSONEq(t, `{"displayName":"alice"}`, string(joins[0].Payload))

	resp, err := ch.Push(context.Background(), "start", core.Empty{})
	require.NoError(t, err)
	require.JSONEq(t, `{"maxDisplayNum":2}`, string(resp))

	_, err = ch.Push(context.Background(), "bad", core.Empty{})
	var remoteErr *core.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Contains(t, remoteErr.Reason, "nope")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = ch.Push(ctx, "silent", core.Empty{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, ch.Cast("answer", map[string]string{"sdp": "x"}))
	require.Eventually(t, func() bool { return len(ps.frames("answer")) == 1 }, waitFor, tick)
	require.Equal(t, joins[0].JoinRef, ps.frames("answer")[0].JoinRef)
}

func TestChannelEvents(t *testing.T) {
	ps := newPhoenixServer(t)
	s := dial(t, ps, Options{})
	ch := s.Channel("room:1", nil)

	got := make(chan []byte, 4)
	ch.On("offer", func(payload []byte) { got <- payload })
	_, err := ch.Join(context.Background())
	require.NoError(t, err)
	joinRef := ps.frames(eventJoin)[0].JoinRef

	ps.write(Frame{JoinRef: joinRef, Topic: "room:1", Event: "offer", Payload: json.RawMessage(`{"n":1}`)})
	ps.write(Frame{Topic: "room:1", Event: "offer", Payload: json.RawMessage(`{"n":2}`)})
	// stale join and foreign topic are dropped
	ps.write(Frame{JoinRef: "999", Topic: "room:1", Event: "offer", Payload: json.RawMessage(`{"n":3}`)})
	ps.write(Frame{Topic: "room:2", Event: "offer", Payload: json.RawMessage(`{"n":4}`)})

	require.JSONEq(t, `{"n":1}`, string(<-got))
	require.JSONEq(t, `{"n":2}`, string(<-got))

	require.NoError(t, ch.Leave())
	require.Eventually(t, func() bool { return len(ps.frames(eventLeave)) == 1 }, waitFor, tick)
	ps.write(Frame{Topic: "room:1", Event: "offer", Payload: json.RawMessage(`{"n":5}`)})
	require.Never(t, func() bool { return len(got) > 0 }, 100*time.Millisecond, tick)
}

func TestJoinRejected(t *testing.T) {
	ps := newPhoenixServer(t)
	s := dial(t, ps, Options{})

	_, err := s.Channel("room:denied", nil).Join(context.Background())
	var chErr *core.ChannelError
	require.ErrorAs(t, err, &chErr)
	require.Equal(t, "join", chErr.Op)
}

func TestConnectionLossFiresListeners(t *testing.T) {
	ps := newPhoenixServer(t)
	s := dial(t, ps, Options{})
	_, err := s.Channel("room:1", nil).Join(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 1)
	closes := make(chan struct{}, 2)
	s.OnError(func(err error) { errs <- err })
	s.OnClose(func() { closes <- struct{}{} })
	detached := s.OnClose(func() { closes <- struct{}{} })
	s.Off(detached)

	ps.dropConnection()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("socket did not close")
	}
	require.Len(t, errs, 1)
	require.Len(t, closes, 1)
	require.ErrorIs(t, s.TrySend([]byte("x")), ErrSocketClosed)

	_, err = s.Channel("room:1", nil).Join(context.Background())
	require.True(t, errors.Is(err, ErrSocketClosed))
}

func TestHeartbeat(t *testing.T) {
	ps := newPhoenixServer(t)
	s := dial(t, ps, Options{HeartbeatPeriod: 20 * time.Millisecond})

	require.Eventually(t, func() bool { return len(ps.frames(eventHeartbeat)) >= 2 }, waitFor, tick)
	require.Equal(t, phoenixTopic, ps.frames(eventHeartbeat)[0].Topic)
	select {
	case <-s.Done():
		t.Fatal("answered heartbeats must keep the socket open")
	default:
	}
}
