// Package slack implements the Slack platform adapter using slack-go's
// Socket Mode transport, so no inbound HTTP surface is needed.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "slack"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events)
	})
}

// Options configures the Slack adapter.
type Options struct {
	// BotToken is the xoxb- token used for Web API calls.
	BotToken string `yaml:"bot_token"`

	// AppToken is the xapp- token used for the Socket Mode connection.
	AppToken string `yaml:"app_token"`
}

// Service is the Slack adapter.
type Service struct {
	id     bus.ServiceID
	events bus.EventSink
	api    *slackapi.Client
	selfID string
	log    *slog.Logger
}

// New creates the adapter.
func New(id bus.ServiceID, opts Options, events bus.EventSink) (*Service, error) {
	if opts.BotToken == "" || opts.AppToken == "" {
		return nil, errors.New("slack: bot_token and app_token are required")
	}
	api := slackapi.New(opts.BotToken, slackapi.OptionAppLevelToken(opts.AppToken))
	return &Service{
		id:     id,
		events: events,
		api:    api,
		log:    slog.Default().With("service", id),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	s.selfID = auth.UserID
	s.log.Info("connected to slack", "user", auth.User)

	client := socketmode.New(s.api)
	go func() {
		// RunContext owns reconnection and returns when ctx is cancelled.
		if err := client.RunContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("socket mode terminated", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case evt, ok := <-client.Events:
			if !ok {
				return nil
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				client.Ack(*evt.Request)
			}
			s.handleEventsAPI(ctx, apiEvent)
		}
	}
}

func (s *Service) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || msg.Text == "" {
		return
	}

	var kind bus.EventKind
	if msg.ChannelType == "im" {
		if msg.User == s.selfID || msg.BotID != "" {
			return
		}
		kind = bus.DirectMessage{
			SenderID:      msg.User,
			SenderIsLocal: true,
			Body:          msg.Text,
		}
	} else {
		kind = bus.RoomMessage{
			RoomID:       msg.Channel,
			SenderID:     msg.User,
			SenderIsSelf: msg.User == s.selfID || msg.BotID != "",
			Body:         msg.Text,
		}
	}

	if err := s.events.PublishEvent(ctx, bus.Event{ServiceID: s.id, Kind: kind}); err != nil {
		s.log.Debug("dropping event, bus unavailable", "error", err)
	}
}

func (s *Service) HandleCommand(ctx context.Context, payload bus.CommandPayload) error {
	switch p := payload.(type) {
	case bus.SendDirectMessage:
		channel, _, _, err := s.api.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{
			Users: []string{p.UserID},
		})
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("open dm: %w", err)
		}
		_, ts, err := s.api.PostMessageContext(ctx, channel.ID, slackapi.MsgOptionText(p.Body, false))
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("send dm: %w", err)
		}
		sendResult(p.Reply, bus.SendResult{MessageID: ts})

	case bus.SendRoomMessage:
		_, ts, err := s.api.PostMessageContext(ctx, p.RoomID, slackapi.MsgOptionText(p.Body, false))
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("send to channel %s: %w", p.RoomID, err)
		}
		sendResult(p.Reply, bus.SendResult{MessageID: ts})

	case bus.EditMessage:
		_, _, _, err := s.api.UpdateMessageContext(ctx, p.RoomID, p.MessageID,
			slackapi.MsgOptionText(p.Body, false))
		if err != nil {
			return fmt.Errorf("edit message %s: %w", p.MessageID, err)
		}

	default:
		// Slack workspace invites need an admin API this bot does not hold.
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
