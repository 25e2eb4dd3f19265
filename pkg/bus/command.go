package bus

import "time"

// Command is an immutable instruction from a middleware to one specific
// service. Ownership transfers from the emitting middleware to the bus,
// then to the target service.
type Command struct {
	TargetServiceID ServiceID
	Payload         CommandPayload
}

// CommandPayload is the open union of actions a service can be asked to
// perform. Middlewares introduce new payloads by implementing this
// interface; the bus only looks at the routing key.
type CommandPayload interface {
	// CommandPayload returns a stable name for the payload variant, used
	// only for logging.
	CommandPayload() string
}

// SendResult carries the platform message id of a delivered message back
// to the middleware that requested the send.
type SendResult struct {
	MessageID string
	Err       error
}

// SendDirectMessage asks a service to deliver a one-to-one message.
type SendDirectMessage struct {
	UserID string
	Body   string

	// Reply, when non-nil, receives exactly one SendResult. Adapters must
	// send it even on failure.
	Reply chan<- SendResult
}

func (SendDirectMessage) CommandPayload() string { return "send_direct_message" }

// SendRoomMessage asks a service to post a message into a room.
type SendRoomMessage struct {
	RoomID string
	Body   string

	// MarkdownBody optionally carries a richer rendering of Body for
	// platforms that support it. Empty means plain text only.
	MarkdownBody string

	Reply chan<- SendResult
}

func (SendRoomMessage) CommandPayload() string { return "send_room_message" }

// EditMessage asks a service to replace the body of a previously sent
// message.
type EditMessage struct {
	RoomID       string
	MessageID    string
	Body         string
	MarkdownBody string
}

func (EditMessage) CommandPayload() string { return "edit_message" }

// InviteTokenResult carries an issued registration/invite token, or the
// error that prevented issuing one.
type InviteTokenResult struct {
	Token string
	Err   error
}

// GenerateInviteToken asks a service to issue an invite token for a user.
// How the token is produced is entirely the adapter's business.
type GenerateInviteToken struct {
	UserID string

	// UsesAllowed limits how often the token may be redeemed. Zero means
	// the adapter's default.
	UsesAllowed int

	// Expiry bounds the token's validity. Zero means the adapter's default.
	Expiry time.Duration

	// Reply receives exactly one InviteTokenResult.
	Reply chan<- InviteTokenResult
}

func (GenerateInviteToken) CommandPayload() string { return "generate_invite_token" }
