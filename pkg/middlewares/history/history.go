// Package history implements the message history middleware: direct and
// room messages are appended to a SQLite database. The event handler only
// queues records; the database is owned by the background task, so the
// event loop never waits on disk.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/middlewares"
)

// Kind is the descriptor kind id for this plugin.
const Kind = "history"

func init() {
	middlewares.Register(Kind, func(spec config.MiddlewareSpec, _ bus.CommandSink) (bus.Middleware, error) {
		var opts Options
		if err := spec.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		return New(spec.Name, opts)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      TIMESTAMP NOT NULL,
	service TEXT NOT NULL,
	room    TEXT NOT NULL DEFAULT '',
	sender  TEXT NOT NULL,
	body    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_service_at ON messages(service, at);
`

// Options configures the history middleware.
type Options struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

type record struct {
	at      time.Time
	service string
	room    string
	sender  string
	body    string
}

// Middleware records message events to SQLite.
type Middleware struct {
	db      *sql.DB
	pending chan record
	log     *slog.Logger
}

// New opens (or creates) the database. Failure here is a startup error.
func New(name string, opts Options) (*Middleware, error) {
	if opts.Path == "" {
		opts.Path = "history.db"
	}
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", opts.Path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Middleware{
		db:      db,
		pending: make(chan record, 256),
		log:     slog.Default().With("middleware", name),
	}, nil
}

func (m *Middleware) Run(ctx context.Context) error {
	defer m.db.Close()
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return nil
		case rec := <-m.pending:
			m.write(rec)
		}
	}
}

// flush drains whatever is still queued at shutdown.
func (m *Middleware) flush() {
	for {
		select {
		case rec := <-m.pending:
			m.write(rec)
		default:
			return
		}
	}
}

func (m *Middleware) write(rec record) {
	_, err := m.db.Exec(
		`INSERT INTO messages (at, service, room, sender, body) VALUES (?, ?, ?, ?, ?)`,
		rec.at, rec.service, rec.room, rec.sender, rec.body)
	if err != nil {
		m.log.Error("recording message failed", "service", rec.service, "error", err)
	}
}

func (m *Middleware) OnEvent(ev bus.Event) (bus.Verdict, error) {
	var rec record
	switch kind := ev.Kind.(type) {
	case bus.DirectMessage:
		rec = record{sender: kind.SenderID, body: kind.Body}
	case bus.RoomMessage:
		rec = record{room: kind.RoomID, sender: kind.SenderID, body: kind.Body}
	default:
		return bus.Continue, nil
	}
	rec.at = time.Now().UTC()
	rec.service = ev.ServiceID.String()

	select {
	case m.pending <- rec:
	default:
		m.log.Warn("history queue full, dropping record", "service", rec.service)
	}
	return bus.Continue, nil
}

// Count returns the number of recorded messages, used by diagnostics and
// tests.
func (m *Middleware) Count(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

var _ bus.Middleware = (*Middleware)(nil)
