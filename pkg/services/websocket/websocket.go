// Package websocket implements a generic JSON-over-WebSocket adapter: it
// connects to a configured endpoint, turns inbound frames into room
// message events, and writes frames for send commands. It covers bespoke
// chat backends that expose a simple socket instead of a full SDK.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

// Kind is the descriptor kind id for this adapter.
const Kind = "websocket"

func init() {
	services.Register(Kind, func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(id, opts, events)
	})
}

// Options configures the WebSocket adapter.
type Options struct {
	URL string `yaml:"url"`

	// Username identifies the bot's own frames so they are flagged as
	// self-authored.
	Username string `yaml:"username"`
}

// frame is the wire format in both directions. Type is empty for chat
// messages; "users" frames carry the full present-user list instead.
type frame struct {
	Type   string      `json:"type,omitempty"`
	Room   string      `json:"room,omitempty"`
	Sender string      `json:"sender,omitempty"`
	Name   string      `json:"name,omitempty"`
	Body   string      `json:"body,omitempty"`
	Users  []frameUser `json:"users,omitempty"`
}

type frameUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Service is the WebSocket adapter.
type Service struct {
	id     bus.ServiceID
	opts   Options
	events bus.EventSink
	log    *slog.Logger

	// mu guards conn; gorilla allows at most one concurrent writer.
	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates the adapter.
func New(id bus.ServiceID, opts Options, events bus.EventSink) (*Service, error) {
	if opts.URL == "" {
		return nil, errors.New("websocket: url is required")
	}
	if opts.Username == "" {
		opts.Username = "kelvin"
	}
	return &Service{
		id:     id,
		opts:   opts,
		events: events,
		log:    slog.Default().With("service", id),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := s.session(ctx); err != nil {
			s.log.Warn("connection lost, reconnecting", "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// session runs one connection until it drops or ctx is cancelled.
func (s *Service) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	s.setConn(conn)
	defer s.setConn(nil)
	defer conn.Close()
	s.log.Info("connected", "url", s.opts.URL)

	// Unblock the read loop on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := s.events.PublishEvent(ctx, s.toEvent(f)); err != nil {
			return nil
		}
	}
}

func (s *Service) toEvent(f frame) bus.Event {
	if f.Type == "users" {
		users := make([]bus.User, 0, len(f.Users))
		for _, u := range f.Users {
			users = append(users, bus.User{ID: u.ID, DisplayName: u.Name})
		}
		return bus.Event{ServiceID: s.id, Kind: bus.UserListUpdate{Users: users}}
	}
	return bus.Event{
		ServiceID: s.id,
		Kind: bus.RoomMessage{
			RoomID:            f.Room,
			SenderID:          f.Sender,
			SenderDisplayName: f.Name,
			SenderIsSelf:      f.Sender == s.opts.Username,
			Body:              f.Body,
		},
	}
}

func (s *Service) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Service) HandleCommand(_ context.Context, payload bus.CommandPayload) error {
	switch p := payload.(type) {
	case bus.SendRoomMessage:
		err := s.write(frame{Room: p.RoomID, Sender: s.opts.Username, Body: p.Body})
		if p.Reply != nil {
			p.Reply <- bus.SendResult{Err: err}
		}
		return err
	case bus.SendDirectMessage:
		err := s.write(frame{Room: p.UserID, Sender: s.opts.Username, Body: p.Body})
		if p.Reply != nil {
			p.Reply <- bus.SendResult{Err: err}
		}
		return err
	default:
		return fmt.Errorf("unsupported command %q", payload.CommandPayload())
	}
}

func (s *Service) write(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

var _ bus.Service = (*Service)(nil)
