package bus

import "context"

// Verdict controls whether a pipeline proceeds to its next middleware for
// the event currently being processed.
type Verdict int

const (
	// Continue hands the event to the next middleware in the pipeline.
	Continue Verdict = iota

	// Stop abandons the remaining middlewares for this event.
	Stop
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Middleware is the contract implemented by processing plugins. A single
// instance may be shared across several services' pipelines; it is only
// ever invoked from the bus's single event loop, never concurrently with
// itself.
type Middleware interface {
	// Run is the plugin's background task. Most implementations simply
	// wait for ctx; stateful plugins use it to pump queued commands or
	// drive scheduled behavior.
	Run(ctx context.Context) error

	// OnEvent is invoked synchronously by the event loop. It must return
	// quickly and must not block on I/O: anything externally visible is
	// done by enqueueing a Command, not by acting inline.
	OnEvent(ev Event) (Verdict, error)
}
