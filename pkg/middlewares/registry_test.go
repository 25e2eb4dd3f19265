package middlewares_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

type stubMiddleware struct {
	name string
}

func (m *stubMiddleware) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *stubMiddleware) OnEvent(bus.Event) (bus.Verdict, error) {
	return bus.Continue, nil
}

func init() {
	middlewares.Register("stub", func(spec config.MiddlewareSpec, _ bus.CommandSink) (bus.Middleware, error) {
		return &stubMiddleware{name: spec.Name}, nil
	})
}

type sinkStub struct {
	cmds chan bus.Command
}

func (s *sinkStub) PublishCommand(ctx context.Context, cmd bus.Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewBuildsRegisteredKind(t *testing.T) {
	mw, err := middlewares.New(config.MiddlewareSpec{Name: "log", Kind: "stub"}, nil)
	require.NoError(t, err)

	stub, ok := mw.(*stubMiddleware)
	require.True(t, ok, "expected the stub constructor's product, got %#v", mw)
	assert.Equal(t, "log", stub.name)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := middlewares.New(config.MiddlewareSpec{Name: "log", Kind: "semaphore-flags"}, nil)
	assert.ErrorIs(t, err, middlewares.ErrUnknownKind)
}

func TestCommandQueueDropsOnOverflow(t *testing.T) {
	q := middlewares.NewCommandQueue(&sinkStub{cmds: make(chan bus.Command, 1)}, 1, nil)

	cmd := bus.Command{TargetServiceID: "matrix", Payload: bus.SendRoomMessage{RoomID: "!r", Body: "a"}}
	assert.True(t, q.Enqueue(cmd))
	assert.False(t, q.Enqueue(cmd), "a full queue must drop rather than block")
}

func TestCommandQueuePumpForwards(t *testing.T) {
	sink := &sinkStub{cmds: make(chan bus.Command, 4)}
	q := middlewares.NewCommandQueue(sink, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Pump(ctx)

	want := bus.Command{TargetServiceID: "matrix", Payload: bus.SendRoomMessage{RoomID: "!r", Body: "hi"}}
	require.True(t, q.Enqueue(want))

	select {
	case got := <-sink.cmds:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the queue to drain")
	}
}
