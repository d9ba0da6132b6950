package core

import "github.com/google/uuid"

// eventBuffer bounds how far a slow consumer can lag before broadcasts
// to it are dropped.
const eventBuffer = 32

// Session is one live connection bound to an identity and a conversation.
// It exists only while the connection is open and is never persisted.
type Session struct {
	ID             string
	UserID         int64
	UserName       string
	UserEmail      string
	ConversationID string
	Events         chan *Event
}

// NewSession constructs a session with an initialized event channel.
func NewSession(userID int64, userName, userEmail, conversationID string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		UserName:       userName,
		UserEmail:      userEmail,
		ConversationID: conversationID,
		Events:         make(chan *Event, eventBuffer),
	}
}
