// Package relay implements the cross-service relay middleware: room
// messages from one service/room are reposted into a room on another
// (or the same) service, prefixed with a tag naming their origin.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "relay"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(spec.Name, opts, commands)
	})
}

// Options configures the relay middleware.
type Options struct {
	SourceService string `yaml:"source_service"`

	// SourceRoom narrows the relay to one room. Empty relays every room
	// on the source service.
	SourceRoom string `yaml:"source_room"`

	DestService string `yaml:"dest_service"`
	DestRoom    string `yaml:"dest_room"`

	// Tag prefixes relayed messages, e.g. "[mumble] alice: hi".
	Tag string `yaml:"tag"`
}

// Middleware bridges rooms across services.
type Middleware struct {
	opts  Options
	queue *middlewares.CommandQueue
	log   *slog.Logger
}

// New creates a relay middleware.
func New(name string, opts Options, commands bus.CommandSink) (*Middleware, error) {
	if opts.SourceService == "" || opts.DestService == "" || opts.DestRoom == "" {
		return nil, errors.New("relay: source_service, dest_service and dest_room are required")
	}
	if opts.Tag == "" {
		opts.Tag = opts.SourceService
	}
	log := slog.Default().With("middleware", name)
	return &Middleware{
		opts:  opts,
		queue: middlewares.NewCommandQueue(commands, 0, log),
		log:   log,
	}, nil
}

func (m *Middleware) Run(ctx context.Context) error {
	return m.queue.Pump(ctx)
}

func (m *Middleware) OnEvent(ev bus.Event) (bus.Verdict, error) {
	if ev.ServiceID != bus.ServiceID(m.opts.SourceService) {
		return bus.Continue, nil
	}
	msg, ok := ev.Kind.(bus.RoomMessage)
	if !ok {
		return bus.Continue, nil
	}
	if m.opts.SourceRoom != "" && msg.RoomID != m.opts.SourceRoom {
		return bus.Continue, nil
	}
	if msg.SenderIsSelf {
		// Relaying the bot's own posts would loop.
		return bus.Continue, nil
	}

	sender := msg.SenderDisplayName
	if sender == "" {
		sender = msg.SenderID
	}
	body := fmt.Sprintf("[%s] %s: %s", m.opts.Tag, sender, msg.Body)

	m.queue.Enqueue(bus.Command{
		TargetServiceID: bus.ServiceID(m.opts.DestService),
		Payload: bus.SendRoomMessage{
			RoomID:       m.opts.DestRoom,
			Body:         body,
			MarkdownBody: body,
		},
	})
	return bus.Continue, nil
}

var _ bus.Middleware = (*Middleware)(nil)
