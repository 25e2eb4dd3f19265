// Package discord implements the Discord platform adapter on top of
// bwmarrin/discordgo. Gateway messages become bus events; send, edit, and
// invite commands call the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "discord"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events)
	})
}

// Options configures the Discord adapter.
type Options struct {
	Token string `yaml:"token"`

	// InviteChannel is the channel invites are created against when a
	// GenerateInviteToken command arrives.
	InviteChannel string `yaml:"invite_channel"`
}

// Service is the Discord adapter.
type Service struct {
	id      bus.ServiceID
	opts    Options
	events  bus.EventSink
	session *discordgo.Session
	log     *slog.Logger

	runCtx context.Context
}

// New creates the adapter and its (not yet opened) session.
func New(id bus.ServiceID, opts Options, events bus.EventSink) (*Service, error) {
	if opts.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	return &Service{
		id:      id,
		opts:    opts,
		events:  events,
		session: session,
		log:     slog.Default().With("service", id),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.session.AddHandler(s.onMessageCreate)

	// discordgo owns gateway reconnection; the session stays open until
	// shutdown.
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	s.log.Info("connected to discord gateway")

	<-ctx.Done()
	s.log.Info("shutdown requested")
	if err := s.session.Close(); err != nil {
		s.log.Warn("error closing gateway", "error", err)
	}
	return nil
}

func (s *Service) onMessageCreate(sess *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	var kind bus.EventKind
	if m.GuildID == "" {
		if sess.State.User != nil && m.Author.ID == sess.State.User.ID {
			return
		}
		kind = bus.DirectMessage{
			SenderID:          m.Author.ID,
			SenderDisplayName: m.Author.Username,
			SenderIsLocal:     true,
			Body:              m.Content,
		}
	} else {
		kind = bus.RoomMessage{
			RoomID:            m.ChannelID,
			SenderID:          m.Author.ID,
			SenderDisplayName: m.Author.Username,
			SenderIsSelf:      sess.State.User != nil && m.Author.ID == sess.State.User.ID,
			Body:              m.Content,
		}
	}

	if err := s.events.PublishEvent(s.runCtx, bus.Event{ServiceID: s.id, Kind: kind}); err != nil {
		s.log.Debug("dropping event, bus unavailable", "error", err)
	}
}

func (s *Service) HandleCommand(_ context.Context, payload bus.CommandPayload) error {
	switch p := payload.(type) {
	case bus.SendDirectMessage:
		channel, err := s.session.UserChannelCreate(p.UserID)
		if err != nil {
			err = fmt.Errorf("open dm channel: %w", err)
			sendResult(p.Reply, bus.SendResult{Err: err})
			return err
		}
		msg, err := s.session.ChannelMessageSend(channel.ID, p.Body)
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("send dm: %w", err)
		}
		sendResult(p.Reply, bus.SendResult{MessageID: msg.ID})

	case bus.SendRoomMessage:
		msg, err := s.session.ChannelMessageSend(p.RoomID, p.Body)
		if err != nil {
			sendResult(p.Reply, bus.SendResult{Err: err})
			return fmt.Errorf("send to channel %s: %w", p.RoomID, err)
		}
		sendResult(p.Reply, bus.SendResult{MessageID: msg.ID})

	case bus.EditMessage:
		if _, err := s.session.ChannelMessageEdit(p.RoomID, p.MessageID, p.Body); err != nil {
			return fmt.Errorf("edit message %s: %w", p.MessageID, err)
		}

	case bus.GenerateInviteToken:
		if s.opts.InviteChannel == "" {
			err := errors.New("no invite_channel configured")
			replyInvite(p.Reply, bus.InviteTokenResult{Err: err})
			return err
		}
		invite, err := s.session.ChannelInviteCreate(s.opts.InviteChannel, discordgo.Invite{
			MaxAge:  int(p.Expiry.Seconds()),
			MaxUses: p.UsesAllowed,
		})
		if err != nil {
			replyInvite(p.Reply, bus.InviteTokenResult{Err: err})
			return fmt.Errorf("create invite: %w", err)
		}
		replyInvite(p.Reply, bus.InviteTokenResult{Token: invite.Code})

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

func replyInvite(reply chan<- bus.InviteTokenResult, res bus.InviteTokenResult) {
	if reply != nil {
		reply <- res
	}
}

var _ bus.Service = (*Service)(nil)
