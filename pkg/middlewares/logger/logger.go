// Package logger implements the event logging middleware.
package logger

import (
	"context"
	"log/slog"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "logger"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, _ bus.CommandSink) (bus.Middleware, error) {
		return New(spec.Name), nil
	})
}

// Middleware logs every event it sees and always continues the pipeline.
type Middleware struct {
	log *slog.Logger
}

// New creates a logging middleware.
func New(name string) *Middleware {
	return &Middleware{log: slog.Default().With("middleware", name)}
}

func (m *Middleware) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (m *Middleware) OnEvent(ev bus.Event) (bus.Verdict, error) {
	switch kind := ev.Kind.(type) {
	case bus.DirectMessage:
		m.log.Info("event", "service", ev.ServiceID, "kind", kind.EventKind(),
			"sender", kind.SenderID, "body", kind.Body)
	case bus.RoomMessage:
		m.log.Info("event", "service", ev.ServiceID, "kind", kind.EventKind(),
			"room", kind.RoomID, "sender", kind.SenderID, "body", kind.Body)
	default:
		m.log.Info("event", "service", ev.ServiceID, "kind", ev.Kind.EventKind())
	}
	return bus.Continue, nil
}

var _ bus.Middleware = (*Middleware)(nil)
