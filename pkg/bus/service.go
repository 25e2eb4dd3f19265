package bus

import "context"

// Service is the contract implemented by each message platform adapter.
// One instance serves one configured ServiceID.
type Service interface {
	// Run is the adapter's main lifecycle body. It executes as its own
	// task until ctx is cancelled or an unrecoverable error occurs, and
	// publishes events to the bus at its own pace. Reconnection to the
	// external platform is the adapter's own concern.
	Run(ctx context.Context) error

	// HandleCommand performs the side effect a command describes, such as
	// delivering a message on the external platform. It is invoked from
	// the service's command queue, so a slow implementation delays only
	// this service's commands, never the event loop. Adapters return an
	// error for payloads they do not support.
	HandleCommand(ctx context.Context, payload CommandPayload) error
}

// EventSink accepts events from producing services. The send blocks while
// the event channel is full, propagating backpressure to the producer
// rather than dropping events.
type EventSink interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// CommandSink accepts commands from middlewares, with the same blocking
// backpressure semantics as EventSink.
type CommandSink interface {
	PublishCommand(ctx context.Context, cmd Command) error
}
