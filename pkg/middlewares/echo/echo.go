// Package echo implements the echo middleware: messages starting with the
// configured command prefix are sent back, minus the prefix, to wherever
// they came from.
package echo

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "echo"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(spec.Name, opts, commands), nil
	})
}

// Options configures the echo middleware.
type Options struct {
	// Command is the trigger prefix, matched with a trailing space.
	Command string `yaml:"command"`
}

// Middleware echoes prefixed messages back to their origin.
type Middleware struct {
	prefix string
	queue  *middlewares.CommandQueue
	log    *slog.Logger
}

// New creates an echo middleware.
func New(name string, opts Options, commands bus.CommandSink) *Middleware {
	if opts.Command == "" {
		opts.Command = "!echo"
	}
	log := slog.Default().With("middleware", name)
	return &Middleware{
		prefix: opts.Command + " ",
		queue:  middlewares.NewCommandQueue(commands, 0, log),
		log:    log,
	}
}

func (m *Middleware) Run(ctx context.Context) error {
	return m.queue.Pump(ctx)
}

func (m *Middleware) OnEvent(ev bus.Event) (bus.Verdict, error) {
	switch kind := ev.Kind.(type) {
	case bus.DirectMessage:
		if body, ok := strings.CutPrefix(kind.Body, m.prefix); ok {
			m.queue.Enqueue(bus.Command{
				TargetServiceID: ev.ServiceID,
				Payload:         bus.SendDirectMessage{UserID: kind.SenderID, Body: body},
			})
			m.log.Debug("echoing direct message", "service", ev.ServiceID, "user", kind.SenderID)
		}
	case bus.RoomMessage:
		if body, ok := strings.CutPrefix(kind.Body, m.prefix); ok {
			m.queue.Enqueue(bus.Command{
				TargetServiceID: ev.ServiceID,
				Payload:         bus.SendRoomMessage{RoomID: kind.RoomID, Body: body},
			})
			m.log.Debug("echoing room message", "service", ev.ServiceID, "room", kind.RoomID)
		}
	}
	return bus.Continue, nil
}

var _ bus.Middleware = (*Middleware)(nil)
