package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the bus lifecycle phase.
type State int32

const (
	// StateConstructing: channels and routing built, no tasks running yet.
	StateConstructing State = iota

	// StateRunning: all service/middleware tasks spawned, event loop and
	// routing loop active.
	StateRunning

	// StateShuttingDown: cancellation observed, draining in-flight items
	// and joining tasks.
	StateShuttingDown

	// StateStopped: terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// DefaultEventBuffer is the event channel capacity when Options leaves
	// it unset.
	DefaultEventBuffer = 256

	// DefaultCommandBuffer is the command channel capacity when Options
	// leaves it unset.
	DefaultCommandBuffer = 256

	// DefaultShutdownGrace bounds how long Run waits for tasks to exit
	// after cancellation.
	DefaultShutdownGrace = 10 * time.Second

	// commandQueueDepth is the per-service command queue capacity. A slow
	// handler backs up only its own queue; the routing loop blocks on a
	// full queue rather than dropping.
	commandQueueDepth = 16
)

var (
	// ErrDuplicateService reports a ServiceID registered twice.
	ErrDuplicateService = errors.New("duplicate service id")

	// ErrNotConstructing reports a mutation attempted after Run started.
	ErrNotConstructing = errors.New("bus is no longer constructing")

	// ErrShutdownTimeout reports tasks that had to be abandoned because
	// they did not exit within the grace period.
	ErrShutdownTimeout = errors.New("tasks did not exit within the shutdown grace period")
)

// Options configures a Bus. The zero value is usable.
type Options struct {
	EventBuffer   int
	CommandBuffer int
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

// Bus owns the channel wiring between services and middlewares, the
// single-consumer event loop, the command routing loop, and lifecycle
// supervision of every spawned task.
type Bus struct {
	events   chan Event
	commands chan Command

	services  map[ServiceID]Service
	pipelines map[ServiceID][]Middleware

	// runOrder holds each distinct middleware instance once, in first-seen
	// order. An instance shared by several pipelines gets a single Run task.
	runOrder []Middleware
	known    map[Middleware]bool

	// routes maps each service to its command queue. Built once when Run
	// starts, read-only afterwards.
	routes map[ServiceID]chan Command

	state atomic.Int32
	grace time.Duration
	log   *slog.Logger
}

// New creates a bus in the Constructing state.
func New(opts Options) *Bus {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = DefaultCommandBuffer
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bus{
		events:    make(chan Event, opts.EventBuffer),
		commands:  make(chan Command, opts.CommandBuffer),
		services:  make(map[ServiceID]Service),
		pipelines: make(map[ServiceID][]Middleware),
		known:     make(map[Middleware]bool),
		grace:     opts.ShutdownGrace,
		log:       opts.Logger,
	}
}

// State returns the current lifecycle phase.
func (b *Bus) State() State {
	return State(b.state.Load())
}

// AddService registers a service and its ordered middleware pipeline.
// Only legal while Constructing. A nil or empty pipeline means events from
// this service are received but produce no processing.
func (b *Bus) AddService(id ServiceID, svc Service, pipeline []Middleware) error {
	if b.State() != StateConstructing {
		return ErrNotConstructing
	}
	if _, exists := b.services[id]; exists {
		return ErrDuplicateService
	}
	b.services[id] = svc
	b.pipelines[id] = pipeline
	for _, mw := range pipeline {
		if !b.known[mw] {
			b.known[mw] = true
			b.runOrder = append(b.runOrder, mw)
		}
	}
	return nil
}

// PublishEvent hands an event to the bus. Blocks while the event channel
// is full until ctx is cancelled.
func (b *Bus) PublishEvent(ctx context.Context, ev Event) error {
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishCommand hands a command to the bus. Blocks while the command
// channel is full until ctx is cancelled.
func (b *Bus) PublishCommand(ctx context.Context, cmd Command) error {
	select {
	case b.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run transitions the bus to Running, spawns every service and middleware
// task plus the routing loop, and executes the event loop on the calling
// goroutine until ctx is cancelled. It then drives shutdown and returns
// once the bus is Stopped. Returns ErrShutdownTimeout if any task had to
// be abandoned.
func (b *Bus) Run(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateConstructing), int32(StateRunning)) {
		return ErrNotConstructing
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.routes = make(map[ServiceID]chan Command, len(b.services))
	for id := range b.services {
		b.routes[id] = make(chan Command, commandQueueDepth)
	}

	var wg sync.WaitGroup

	for id, svc := range b.services {
		wg.Add(2)
		go func(id ServiceID, svc Service) {
			defer wg.Done()
			b.log.Info("service starting", "service", id)
			if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				// The failed service stays down; siblings are unaffected.
				b.log.Error("service exited with error", "service", id, "error", err)
				return
			}
			b.log.Info("service exited", "service", id)
		}(id, svc)
		go func(id ServiceID, svc Service, queue <-chan Command) {
			defer wg.Done()
			b.commandWorker(runCtx, id, svc, queue)
		}(id, svc, b.routes[id])
	}

	for _, mw := range b.runOrder {
		wg.Add(1)
		go func(mw Middleware) {
			defer wg.Done()
			if err := mw.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				b.log.Error("middleware task exited with error", "error", err)
			}
		}(mw)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.routeLoop(runCtx)
	}()

	b.log.Info("bus running", "services", len(b.services), "middlewares", len(b.runOrder))
	b.eventLoop(runCtx)

	b.state.Store(int32(StateShuttingDown))
	b.log.Info("bus shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Drain in-flight channel items so producers blocked on a full channel
	// can observe cancellation. Drained items are not processed.
	go func() {
		for {
			select {
			case <-b.events:
			case <-b.commands:
			case <-done:
				return
			}
		}
	}()

	var err error
	select {
	case <-done:
	case <-time.After(b.grace):
		b.log.Error("shutdown grace period elapsed, abandoning remaining tasks",
			"grace", b.grace)
		err = ErrShutdownTimeout
	}

	b.state.Store(int32(StateStopped))
	b.log.Info("bus stopped")
	return err
}

// eventLoop is the single consumer of the event channel. Each event runs
// to completion through its pipeline before the next is pulled, so no two
// events are ever mid-pipeline at once.
func (b *Bus) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	pipeline, ok := b.pipelines[ev.ServiceID]
	if !ok {
		b.log.Debug("no pipeline for service", "service", ev.ServiceID)
		return
	}
	for _, mw := range pipeline {
		verdict, err := mw.OnEvent(ev)
		if err != nil {
			// Fail safe: later middlewares must not see an event a broken
			// middleware may have mishandled. Subsequent events proceed
			// normally.
			b.log.Error("middleware failed, stopping pipeline for this event",
				"service", ev.ServiceID, "kind", ev.Kind.EventKind(), "error", err)
			return
		}
		if verdict == Stop {
			return
		}
	}
}

// routeLoop receives commands in arrival order and forwards each to the
// target service's queue. Handler execution happens on per-service
// workers, so it may run concurrently across services and with the event
// loop.
func (b *Bus) routeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.commands:
			queue, ok := b.routes[cmd.TargetServiceID]
			if !ok {
				b.log.Warn("command targets unknown service, dropping",
					"service", cmd.TargetServiceID, "payload", cmd.Payload.CommandPayload())
				continue
			}
			select {
			case queue <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bus) commandWorker(ctx context.Context, id ServiceID, svc Service, queue <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-queue:
			if err := svc.HandleCommand(ctx, cmd.Payload); err != nil {
				b.log.Error("command handler failed",
					"service", id, "payload", cmd.Payload.CommandPayload(), "error", err)
			}
		}
	}
}

var (
	_ EventSink   = (*Bus)(nil)
	_ CommandSink = (*Bus)(nil)
)
