// Package bus implements the in-process event bus that connects message
// platform services to processing middlewares. Services publish Events onto
// a shared bounded channel; the bus runs each event through the pipeline
// configured for the originating service; middlewares react by enqueueing
// Commands, which the bus routes back to the target service's handler.
package bus

// ServiceID uniquely identifies a configured service instance. It is the
// routing key for commands and the pipeline-assignment key for events.
// IDs are assigned at configuration time and never reused while the bus
// is running.
type ServiceID string

func (id ServiceID) String() string { return string(id) }

// User describes one present user as reported by a platform adapter.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Event is an immutable notification from a service describing something
// that happened on its external platform. Ownership transfers to the bus
// on publish; events are never mutated afterwards.
type Event struct {
	ServiceID ServiceID
	Kind      EventKind
}

// EventKind is the open union of event payloads. Adapters introduce new
// kinds by implementing this interface; the bus engine never inspects
// payload contents.
type EventKind interface {
	// EventKind returns a stable name for the payload variant, used only
	// for logging.
	EventKind() string
}

// DirectMessage is a one-to-one message sent to the bot.
type DirectMessage struct {
	SenderID          string
	SenderDisplayName string

	// SenderIsLocal reports whether the sender's account lives on the same
	// server/instance as the bot. Some middlewares restrict themselves to
	// local users.
	SenderIsLocal bool

	Body string
}

func (DirectMessage) EventKind() string { return "direct_message" }

// RoomMessage is a message posted in a shared room or channel.
type RoomMessage struct {
	RoomID            string
	SenderID          string
	SenderDisplayName string

	// SenderIsSelf reports whether the message was authored by the bot's
	// own account. Relaying middlewares skip these to avoid loops.
	SenderIsSelf bool

	Body string
}

func (RoomMessage) EventKind() string { return "room_message" }

// UserListUpdate reports the full set of currently present users, for
// platforms that track presence.
type UserListUpdate struct {
	Users []User
}

func (UserListUpdate) EventKind() string { return "user_list_update" }
