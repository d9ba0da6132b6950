package core

import "github.com/talkwire/talkwire-server/internal/chatlog"

// EventKind is a notification delivered to sessions.
type EventKind int

const (
	// EventMessage carries a persisted chat message.
	EventMessage EventKind = iota
	// EventTyping carries a typing indicator. Delivery filters it out for
	// the session that produced it.
	EventTyping
	// EventError carries a non-fatal error for one session.
	EventError
)

// Event describes something the delivery core wants a session to see.
type Event struct {
	Kind EventKind

	// Record is set for EventMessage.
	Record *chatlog.Record

	// UserID, UserName and IsTyping are set for EventTyping.
	UserID   int64
	UserName string
	IsTyping bool

	// Text is set for EventError.
	Text string
}
