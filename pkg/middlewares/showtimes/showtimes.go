// Package showtimes implements the scheduled poster middleware: on a cron
// schedule it fetches movie showtimes (or builds a placeholder when no
// endpoint is configured) and posts them into a configured room. It never
// reacts to events; all behavior lives in its background task.
package showtimes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/adhocore/gronx"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "showtimes"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(spec.Name, opts, commands)
	})
}

// Options configures the scheduled poster.
type Options struct {
	// Schedule is a cron expression, e.g. "0 18 * * FRI".
	Schedule string `yaml:"schedule"`

	Service string `yaml:"service"`
	Room    string `yaml:"room"`

	// TheaterID names the theater in the posted message.
	TheaterID string `yaml:"theater_id"`

	// URL, when set, is fetched at each tick and its body posted instead
	// of the placeholder message.
	URL string `yaml:"url"`

	FetchTimeout config.Duration `yaml:"fetch_timeout"`
}

// Middleware posts showtimes on a schedule.
type Middleware struct {
	opts     Options
	commands bus.CommandSink
	client   *http.Client
	log      *slog.Logger
}

// New validates the schedule and creates the poster.
func New(name string, opts Options, commands bus.CommandSink) (*Middleware, error) {
	if opts.Service == "" || opts.Room == "" {
		return nil, errors.New("showtimes: service and room are required")
	}
	if !gronx.New().IsValid(opts.Schedule) {
		return nil, fmt.Errorf("showtimes: invalid cron expression %q", opts.Schedule)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = config.Duration(30 * time.Second)
	}
	return &Middleware{
		opts:     opts,
		commands: commands,
		client:   &http.Client{Timeout: opts.FetchTimeout.Std()},
		log:      slog.Default().With("middleware", name),
	}, nil
}

func (m *Middleware) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTick(m.opts.Schedule, false)
		if err != nil {
			return fmt.Errorf("showtimes: compute next tick: %w", err)
		}
		m.log.Info("waiting for next scheduled post", "next", next)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		body, err := m.fetch(ctx)
		if err != nil {
			m.log.Error("fetching showtimes failed", "error", err)
			body = fmt.Sprintf("Failed to fetch showtimes: %v", err)
		}
		cmd := bus.Command{
			TargetServiceID: bus.ServiceID(m.opts.Service),
			Payload:         bus.SendRoomMessage{RoomID: m.opts.Room, Body: body},
		}
		if err := m.commands.PublishCommand(ctx, cmd); err != nil {
			return nil
		}
		m.log.Info("posted scheduled showtimes", "service", m.opts.Service, "room", m.opts.Room)
	}
}

func (m *Middleware) fetch(ctx context.Context) (string, error) {
	if m.opts.URL == "" {
		return fmt.Sprintf("Showtimes for theater %s (schedule %q)",
			m.opts.TheaterID, m.opts.Schedule), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// OnEvent ignores everything; this plugin is purely schedule-driven.
func (m *Middleware) OnEvent(bus.Event) (bus.Verdict, error) {
	return bus.Continue, nil
}

var _ bus.Middleware = (*Middleware)(nil)
