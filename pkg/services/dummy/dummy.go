// Package dummy implements a synthetic event generator. It emits a room
// message on a fixed interval and logs every command it is asked to
// perform, which makes it the standard stand-in service for local runs
// and tests.
package dummy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "dummy"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events), nil
	})
}

// Options configures the generator.
type Options struct {
	Interval config.Duration `yaml:"interval"`
	RoomID   string          `yaml:"room_id"`
	Body     string          `yaml:"body"`
}

// Service is the synthetic generator.
type Service struct {
	id     bus.ServiceID
	opts   Options
	events bus.EventSink
	log    *slog.Logger
}

// New creates a generator with defaults filled in.
func New(id bus.ServiceID, opts Options, events bus.EventSink) *Service {
	if opts.Interval <= 0 {
		opts.Interval = config.Duration(time.Second)
	}
	if opts.RoomID == "" {
		opts.RoomID = "dummy"
	}
	if opts.Body == "" {
		opts.Body = "synthetic message"
	}
	return &Service{
		id:     id,
		opts:   opts,
		events: events,
		log:    slog.Default().With("service", id),
	}
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval.Std())
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case <-ticker.C:
			n++
			ev := bus.Event{
				ServiceID: s.id,
				Kind: bus.RoomMessage{
					RoomID:            s.opts.RoomID,
					SenderID:          "dummy",
					SenderDisplayName: "Dummy",
					Body:              fmt.Sprintf("%s %d", s.opts.Body, n),
				},
			}
			if err := s.events.PublishEvent(ctx, ev); err != nil {
				return nil
			}
		}
	}
}

func (s *Service) HandleCommand(_ context.Context, payload bus.CommandPayload) error {
	switch p := payload.(type) {
	case bus.SendDirectMessage:
		s.log.Info("would send direct message", "user", p.UserID, "body", p.Body)
		sendResult(p.Reply, bus.SendResult{MessageID: uuid.NewString()})
	case bus.SendRoomMessage:
		s.log.Info("would send room message", "room", p.RoomID, "body", p.Body)
		sendResult(p.Reply, bus.SendResult{MessageID: uuid.NewString()})
	case bus.EditMessage:
		s.log.Info("would edit message", "room", p.RoomID, "message", p.MessageID, "body", p.Body)
	case bus.GenerateInviteToken:
		token := uuid.NewString()
		s.log.Info("issued synthetic invite token", "user", p.UserID, "token", token)
		if p.Reply != nil {
			p.Reply <- bus.InviteTokenResult{Token: token}
		}
	default:
		return fmt.Errorf("unsupported command %q", payload.CommandPayload())
	}
	return nil
}

func sendResult(reply chan<- bus.SendResult, res bus.SendResult) {
	if reply != nil {
		reply <- res
	}
}

var _ bus.Service = (*Service)(nil)
