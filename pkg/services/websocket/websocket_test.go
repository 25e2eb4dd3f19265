package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haydenmc/KelvinBot/pkg/bus"
)

type eventSinkStub struct {
	events chan bus.Event
}

func (s *eventSinkStub) PublishEvent(ctx context.Context, ev bus.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// testServer upgrades one connection and exposes both directions.
type testServer struct {
	*httptest.Server

	mu       sync.Mutex
	conn     *gorilla.Conn
	ready    chan struct{}
	received chan frame
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		ready:    make(chan struct{}),
		received: make(chan frame, 8),
	}
	upgrader := gorilla.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
		close(ts.ready)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			ts.received <- f
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) send(t *testing.T, f frame) {
	t.Helper()
	select {
	case <-ts.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to connect")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NoError(t, ts.conn.WriteJSON(f))
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitEvent(t *testing.T, events chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return bus.Event{}
	}
}

func TestWebsocketTurnsFramesIntoEvents(t *testing.T) {
	ts := newTestServer(t)
	sink := &eventSinkStub{events: make(chan bus.Event, 8)}
	svc, err := New("ws", Options{URL: ts.wsURL(), Username: "kelvin"}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)

	ts.send(t, frame{Room: "lobby", Sender: "alice", Name: "Alice", Body: "hi"})
	ev := waitEvent(t, sink.events)
	assert.Equal(t, bus.ServiceID("ws"), ev.ServiceID)
	msg, ok := ev.Kind.(bus.RoomMessage)
	require.True(t, ok, "expected a room message, got %#v", ev.Kind)
	assert.Equal(t, "lobby", msg.RoomID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.False(t, msg.SenderIsSelf)

	// The bot's own frames come back flagged as self.
	ts.send(t, frame{Room: "lobby", Sender: "kelvin", Body: "echo"})
	own := waitEvent(t, sink.events).Kind.(bus.RoomMessage)
	assert.True(t, own.SenderIsSelf)
}

func TestWebsocketTurnsUserFramesIntoPresence(t *testing.T) {
	ts := newTestServer(t)
	sink := &eventSinkStub{events: make(chan bus.Event, 8)}
	svc, err := New("ws", Options{URL: ts.wsURL()}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)

	ts.send(t, frame{Type: "users", Users: []frameUser{
		{ID: "alice", Name: "Alice"},
		{ID: "bob"},
	}})

	ev := waitEvent(t, sink.events)
	update, ok := ev.Kind.(bus.UserListUpdate)
	require.True(t, ok, "expected a user list update, got %#v", ev.Kind)
	assert.Equal(t, []bus.User{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob"},
	}, update.Users)
}

func TestWebsocketWritesSendCommands(t *testing.T) {
	ts := newTestServer(t)
	sink := &eventSinkStub{events: make(chan bus.Event, 8)}
	svc, err := New("ws", Options{URL: ts.wsURL(), Username: "kelvin"}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.conn != nil
	}, 2*time.Second, 10*time.Millisecond)

	reply := make(chan bus.SendResult, 1)
	require.NoError(t, svc.HandleCommand(ctx, bus.SendRoomMessage{
		RoomID: "lobby", Body: "hello", Reply: reply,
	}))
	assert.NoError(t, (<-reply).Err)

	select {
	case f := <-ts.received:
		assert.Equal(t, "lobby", f.Room)
		assert.Equal(t, "kelvin", f.Sender)
		assert.Equal(t, "hello", f.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the outbound frame")
	}
}

func TestWebsocketRejectsCommandsWhileDisconnected(t *testing.T) {
	svc, err := New("ws", Options{URL: "ws://127.0.0.1:1/never"}, &eventSinkStub{events: make(chan bus.Event, 1)})
	require.NoError(t, err)
	assert.Error(t, svc.HandleCommand(context.Background(), bus.SendRoomMessage{RoomID: "x", Body: "y"}))
}
