package showtimes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/middlewares/showtimes"
)

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

func TestShowtimesValidatesOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    showtimes.Options
		wantErr bool
	}{
		{
			name: "valid",
			opts: showtimes.Options{Schedule: "0 9 * * 5", Service: "matrix", Room: "!movies"},
		},
		{
			name:    "missing service",
			opts:    showtimes.Options{Schedule: "0 9 * * 5", Room: "!movies"},
			wantErr: true,
		},
		{
			name:    "missing room",
			opts:    showtimes.Options{Schedule: "0 9 * * 5", Service: "matrix"},
			wantErr: true,
		},
		{
			name:    "malformed cron expression",
			opts:    showtimes.Options{Schedule: "whenever", Service: "matrix", Room: "!movies"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := showtimes.New("showtimes", tt.opts, &sinkStub{cmds: make(chan bus.Command, 1)})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestShowtimesPostsFetchedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Dune at 19:00"))
	}))
	defer srv.Close()

	sink := &sinkStub{cmds: make(chan bus.Command, 1)}
	m, err := showtimes.New("showtimes", showtimes.Options{
		Schedule: "* * * * * *", // every second
		Service:  "matrix",
		Room:     "!movies",
		URL:      srv.URL,
	}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	select {
	case cmd := <-sink.cmds:
		assert.Equal(t, bus.ServiceID("matrix"), cmd.TargetServiceID)
		payload, ok := cmd.Payload.(bus.SendRoomMessage)
		require.True(t, ok, "expected a room message payload, got %#v", cmd.Payload)
		assert.Equal(t, "!movies", payload.RoomID)
		assert.Equal(t, "Dune at 19:00", payload.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the scheduled post")
	}
}

func TestShowtimesIgnoresEvents(t *testing.T) {
	m, err := showtimes.New("showtimes", showtimes.Options{
		Schedule: "0 9 * * 5",
		Service:  "matrix",
		Room:     "!movies",
	}, &sinkStub{cmds: make(chan bus.Command, 1)})
	require.NoError(t, err)

	verdict, err := m.OnEvent(bus.Event{
		ServiceID: "matrix",
		Kind:      bus.RoomMessage{RoomID: "!movies", SenderID: "@a", Body: "anything"},
	})
	require.NoError(t, err)
	assert.Equal(t, bus.Continue, verdict)
}
