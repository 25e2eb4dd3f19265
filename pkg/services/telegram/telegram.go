// Package telegram implements the Telegram platform adapter on top of
// mymmrac/telego, using Bot API long polling for inbound updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "telegram"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events)
	})
}

// Options configures the Telegram adapter.
type Options struct {
	Token string `yaml:"token"`

	// InviteChat is the chat invite links are created for when a
	// GenerateInviteToken command arrives.
	InviteChat int64 `yaml:"invite_chat"`
}

// Service is the Telegram adapter.
type Service struct {
	id     bus.ServiceID
	opts   Options
	events bus.EventSink
	bot    *telego.Bot
	selfID int64
	log    *slog.Logger
}

// New creates the adapter and verifies the token shape.
func New(id bus.ServiceID, opts Options, events bus.EventSink) (*Service, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	bot, err := telego.NewBot(opts.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Service{
		id:     id,
		opts:   opts,
		events: events,
		bot:    bot,
		log:    slog.Default().With("service", id),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: get me: %w", err)
	}
	s.selfID = me.ID
	s.log.Info("connected to telegram", "username", me.Username)

	updates, err := s.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			if err := s.events.PublishEvent(ctx, s.toEvent(update.Message)); err != nil {
				return nil
			}
		}
	}
}

func (s *Service) toEvent(m *telego.Message) bus.Event {
	sender := strconv.FormatInt(m.From.ID, 10)
	display := m.From.Username
	if display == "" {
		display = m.From.FirstName
	}

	var kind bus.EventKind
	if m.Chat.Type == telego.ChatTypePrivate {
		kind = bus.DirectMessage{
			SenderID:          sender,
			SenderDisplayName: display,
			SenderIsLocal:     true,
			Body:              m.Text,
		}
	} else {
		kind = bus.RoomMessage{
			RoomID:            strconv.FormatInt(m.Chat.ID, 10),
			SenderID:          sender,
			SenderDisplayName: display,
			SenderIsSelf:      m.From.ID == s.selfID,
			Body:              m.Text,
		}
	}
	return bus.Event{ServiceID: s.id, Kind: kind}
}

func (s *Service) HandleCommand(ctx context.Context, payload bus.CommandPayload) error {
	switch p := payload.(type) {
	case bus.SendDirectMessage:
		chatID, err := strconv.ParseInt(p.UserID, 10, 64)
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("bad user id %q: %w", p.UserID, err)
		}
		return s.send(ctx, chatID, p.Body, p.Reply)

	case bus.SendRoomMessage:
		chatID, err := strconv.ParseInt(p.RoomID, 10, 64)
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("bad chat id %q: %w", p.RoomID, err)
		}
		return s.send(ctx, chatID, p.Body, p.Reply)

	case bus.EditMessage:
		chatID, err := strconv.ParseInt(p.RoomID, 10, 64)
		if err != nil {
			return fmt.Errorf("bad chat id %q: %w", p.RoomID, err)
		}
		messageID, err := strconv.Atoi(p.MessageID)
		if err != nil {
			return fmt.Errorf("bad message id %q: %w", p.MessageID, err)
		}
		_, err = s.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
			ChatID:    telego.ChatID{ID: chatID},
			MessageID: messageID,
			Text:      p.Body,
		})
		if err != nil {
			return fmt.Errorf("edit message %d: %w", messageID, err)
		}

	case bus.GenerateInviteToken:
		if s.opts.InviteChat == 0 {
			err := errors.New("no invite_chat configured")
			replyInvite(p.Reply, bus.InviteTokenResult{Err: err})
			return err
		}
		params := &telego.CreateChatInviteLinkParams{
			ChatID: telego.ChatID{ID: s.opts.InviteChat},
		}
		if p.UsesAllowed > 0 {
			params.MemberLimit = p.UsesAllowed
		}
		if p.Expiry > 0 {
			params.ExpireDate = time.Now().Add(p.Expiry).Unix()
		}
		link, err := s.bot.CreateChatInviteLink(ctx, params)
		if err != nil {
			replyInvite(p.Reply, bus.InviteTokenResult{Err: err})
			return fmt.Errorf("create invite link: %w", err)
		}
		replyInvite(p.Reply, bus.InviteTokenResult{Token: link.InviteLink})

	default:
		return fmt.Errorf("unsupported command %q", payload.CommandPayload())
	}
	return nil
}

func (s *Service) send(ctx context.Context, chatID int64, body string, reply chan<- bus.SendResult) error {
	msg, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   body,
	})
	if err != nil {
		sendResult(reply, bus.SendResult{Err: err})
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	sendResult(reply, bus.SendResult{MessageID: strconv.Itoa(msg.MessageID)})
	return nil
}

func sendResult(reply chan<- bus.SendResult, res bus.SendResult) {
	if reply != nil {
		reply <- res
	}
}

func replyInvite(reply chan<- bus.InviteTokenResult, res bus.InviteTokenResult) {
	if reply != nil {
		reply <- res
	}
}

var _ bus.Service = (*Service)(nil)
