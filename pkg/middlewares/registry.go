// Package middlewares provides the constructor registry for event
// processing plugins, plus a shared command queue that keeps plugin event
// handlers non-blocking.
//
// Adding a plugin mirrors adding a service adapter: implement
// bus.Middleware, Register() a constructor from the plugin package's
// init(), and blank-import the package from the binary.
package middlewares

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
)

// ErrUnknownKind reports a middleware descriptor whose kind has no
// registered constructor.
var ErrUnknownKind = errors.New("unknown middleware kind")

// Constructor builds one middleware instance from its descriptor. The
// command sink is where the instance enqueues commands for its lifetime.
type Constructor func(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register adds a constructor for a middleware kind. Registering the same
// kind twice panics.
func Register(kind string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("middlewares: kind %q registered twice", kind))
	}
	registry[kind] = c
}

// New instantiates the middleware described by spec.
func New(spec config.MiddlewareSpec, commands bus.CommandSink) (bus.Middleware, error) {
	mu.RLock()
	c, ok := registry[spec.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
	mw, err := c(spec, commands)
	if err != nil {
		return nil, fmt.Errorf("construct middleware %q (%s): %w", spec.Name, spec.Kind, err)
	}
	return mw, nil
}

// Kinds returns all registered kind ids, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// CommandQueue decouples command emission from the event loop: OnEvent
// enqueues without blocking, and the owning middleware pumps the queue to
// the bus from its Run task.
type CommandQueue struct {
	sink    bus.CommandSink
	pending chan bus.Command
	log     *slog.Logger
}

// NewCommandQueue creates a queue with the given depth (a depth <= 0 gets
// a small default).
func NewCommandQueue(sink bus.CommandSink, depth int, log *slog.Logger) *CommandQueue {
	if depth <= 0 {
		depth = 16
	}
	if log == nil {
		log = slog.Default()
	}
	return &CommandQueue{
		sink:    sink,
		pending: make(chan bus.Command, depth),
		log:     log,
	}
}

// Enqueue queues a command without blocking. An overflowing queue drops
// the command and reports false; the event loop is never stalled on a
// middleware's own backlog.
func (q *CommandQueue) Enqueue(cmd bus.Command) bool {
	select {
	case q.pending <- cmd:
		return true
	default:
		q.log.Warn("command queue full, dropping command",
			"service", cmd.TargetServiceID, "payload", cmd.Payload.CommandPayload())
		return false
	}
}

// Pump forwards queued commands to the bus until ctx is cancelled. Meant
// to be called from the middleware's Run.
func (q *CommandQueue) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-q.pending:
			if err := q.sink.PublishCommand(ctx, cmd); err != nil {
				return nil // cancelled while publishing
			}
		}
	}
}
