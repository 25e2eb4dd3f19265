package dummy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services/dummy"
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

type bogusPayload struct{}

func (bogusPayload) CommandPayload() string { return "bogus" }

func TestDummyEmitsSyntheticMessages(t *testing.T) {
	sink := &eventSinkStub{events: make(chan bus.Event, 8)}
	svc := dummy.New("gen", dummy.Options{
		Interval: config.Duration(5 * time.Millisecond),
		RoomID:   "lobby",
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	for i, want := range []string{"synthetic message 1", "synthetic message 2"} {
		select {
		case ev := <-sink.events:
			assert.Equal(t, bus.ServiceID("gen"), ev.ServiceID)
			msg, ok := ev.Kind.(bus.RoomMessage)
			require.True(t, ok, "expected a room message, got %#v", ev.Kind)
			assert.Equal(t, "lobby", msg.RoomID)
			assert.Equal(t, want, msg.Body)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the generator to stop")
	}
}

func TestDummyAcknowledgesSends(t *testing.T) {
	svc := dummy.New("gen", dummy.Options{}, &eventSinkStub{events: make(chan bus.Event, 1)})

	reply := make(chan bus.SendResult, 1)
	require.NoError(t, svc.HandleCommand(context.Background(), bus.SendDirectMessage{
		UserID: "alice", Body: "hi", Reply: reply,
	}))
	result := <-reply
	assert.NoError(t, result.Err)
	assert.NotEmpty(t, result.MessageID)

	tokens := make(chan bus.InviteTokenResult, 1)
	require.NoError(t, svc.HandleCommand(context.Background(), bus.GenerateInviteToken{
		UserID: "alice", UsesAllowed: 1, Reply: tokens,
	}))
	token := <-tokens
	assert.NoError(t, token.Err)
	assert.NotEmpty(t, token.Token)
}

func TestDummyRejectsUnknownCommands(t *testing.T) {
	svc := dummy.New("gen", dummy.Options{}, &eventSinkStub{events: make(chan bus.Event, 1)})
	assert.Error(t, svc.HandleCommand(context.Background(), bogusPayload{}))
}
