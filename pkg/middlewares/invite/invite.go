// Package invite implements the invite-token middleware: a local user can
// ask the bot, via direct message, for a registration/invite token for
// the originating platform. The token itself is issued by the platform
// adapter; this middleware only drives the request/reply conversation.
package invite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "invite"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(spec.Name, opts, commands), nil
	})
}

const nonLocalRefusal = "Invite tokens can only be generated for users from this server."

// Options configures the invite middleware.
type Options struct {
	Command     string          `yaml:"command"`
	UsesAllowed int             `yaml:"uses_allowed"`
	Expiry      config.Duration `yaml:"expiry"`
}

type request struct {
	serviceID bus.ServiceID
	userID    string
	refusal   bool
}

// Middleware handles !invite conversations.
type Middleware struct {
	opts     Options
	commands bus.CommandSink
	pending  chan request
	log      *slog.Logger
}

// New creates an invite middleware with defaults filled in.
func New(name string, opts Options, commands bus.CommandSink) *Middleware {
	if opts.Command == "" {
		opts.Command = "!invite"
	}
	if opts.UsesAllowed <= 0 {
		opts.UsesAllowed = 1
	}
	if opts.Expiry <= 0 {
		opts.Expiry = config.Duration(7 * 24 * time.Hour)
	}
	return &Middleware{
		opts:     opts,
		commands: commands,
		pending:  make(chan request, 16),
		log:      slog.Default().With("middleware", name),
	}
}

func (m *Middleware) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.pending:
			if req.refusal {
				m.reply(ctx, req, nonLocalRefusal)
				continue
			}
			m.issue(ctx, req)
		}
	}
}

// issue requests a token from the originating service and relays the
// outcome back to the user. Waiting for the adapter happens on a detached
// goroutine so one slow platform cannot back up other requests.
func (m *Middleware) issue(ctx context.Context, req request) {
	reply := make(chan bus.InviteTokenResult, 1)
	cmd := bus.Command{
		TargetServiceID: req.serviceID,
		Payload: bus.GenerateInviteToken{
			UserID:      req.userID,
			UsesAllowed: m.opts.UsesAllowed,
			Expiry:      m.opts.Expiry.Std(),
			Reply:       reply,
		},
	}
	if err := m.commands.PublishCommand(ctx, cmd); err != nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
		case result := <-reply:
			m.reply(ctx, req, m.formatResult(result))
		}
	}()
}

func (m *Middleware) formatResult(result bus.InviteTokenResult) string {
	if result.Err != nil {
		m.log.Error("token generation failed", "error", result.Err)
		return fmt.Sprintf("Failed to generate an invite token: %v", result.Err)
	}
	expiresAt := time.Now().Add(m.opts.Expiry.Std()).UTC().Format("2006-01-02 15:04:05 UTC")
	return fmt.Sprintf(
		"Invite token generated: %s\n\nUses allowed: %d\nExpires: %s\n\n"+
			"Use this token when registering a new account.",
		result.Token, m.opts.UsesAllowed, expiresAt)
}

func (m *Middleware) reply(ctx context.Context, req request, body string) {
	cmd := bus.Command{
		TargetServiceID: req.serviceID,
		Payload:         bus.SendDirectMessage{UserID: req.userID, Body: body},
	}
	if err := m.commands.PublishCommand(ctx, cmd); err == nil {
		m.log.Info("invite reply sent", "service", req.serviceID, "user", req.userID)
	}
}

func (m *Middleware) OnEvent(ev bus.Event) (bus.Verdict, error) {
	dm, ok := ev.Kind.(bus.DirectMessage)
	if !ok || strings.TrimSpace(dm.Body) != m.opts.Command {
		return bus.Continue, nil
	}

	req := request{serviceID: ev.ServiceID, userID: dm.SenderID, refusal: !dm.SenderIsLocal}
	if req.refusal {
		m.log.Info("ignoring invite request from non-local user",
			"service", ev.ServiceID, "user", dm.SenderID)
	} else {
		m.log.Info("processing invite request", "service", ev.ServiceID, "user", dm.SenderID)
	}

	select {
	case m.pending <- req:
	default:
		m.log.Warn("invite queue full, dropping request", "user", dm.SenderID)
	}
	return bus.Continue, nil
}

var _ bus.Middleware = (*Middleware)(nil)
