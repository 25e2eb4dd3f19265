// Package console implements an interactive terminal adapter. Every line
// typed at the prompt becomes a direct-message event, and send commands
// are printed back to the terminal. Useful for exercising pipelines
// without any external platform.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/chzyer/readline"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "console"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events), nil
	})
}

// Options configures the console adapter.
type Options struct {
	Prompt string `yaml:"prompt"`
}

// Service reads lines from the local terminal.
type Service struct {
	id     bus.ServiceID
	prompt string
	events bus.EventSink
	log    *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

// New creates a console adapter.
func New(id bus.ServiceID, opts Options, events bus.EventSink) *Service {
	if opts.Prompt == "" {
		opts.Prompt = "> "
	}
	return &Service{
		id:     id,
		prompt: opts.Prompt,
		events: events,
		log:    slog.Default().With("service", id),
		out:    os.Stdout,
	}
}

func (s *Service) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{Prompt: s.prompt})
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer rl.Close()

	s.mu.Lock()
	s.out = rl.Stdout()
	s.mu.Unlock()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if err != nil {
				// io.EOF on close, readline.ErrInterrupt on Ctrl+C
				return
			}
			if line == "" {
				continue
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			ev := bus.Event{
				ServiceID: s.id,
				Kind: bus.DirectMessage{
					SenderID:      "console",
					SenderIsLocal: true,
					Body:          line,
				},
			}
			if err := s.events.PublishEvent(ctx, ev); err != nil {
				return nil
			}
		}
	}
}

func (s *Service) HandleCommand(_ context.Context, payload bus.CommandPayload) error {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()

	switch p := payload.(type) {
	case bus.SendDirectMessage:
		fmt.Fprintf(out, "[%s] %s\n", s.id, p.Body)
		if p.Reply != nil {
			p.Reply <- bus.SendResult{MessageID: "console"}
		}
	case bus.SendRoomMessage:
		fmt.Fprintf(out, "[%s:%s] %s\n", s.id, p.RoomID, p.Body)
		if p.Reply != nil {
			p.Reply <- bus.SendResult{MessageID: "console"}
		}
	default:
		return errors.New("console cannot perform " + payload.CommandPayload())
	}
	return nil
}

var _ bus.Service = (*Service)(nil)
