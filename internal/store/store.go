package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTooFewParticipants is returned when a conversation is created with
	// fewer than two participants.
	ErrTooFewParticipants = errors.New("conversation needs at least two participants")
)

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation represents a conversation between two or more users.
// The participant set is owned here; the delivery core only reads it.
type Conversation struct {
	ID           string // UUID
	Name         string // optional display name, empty for direct chats
	IsGroup      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Participants []User
}

// UserStore provides user persistence operations.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, displayName, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ConversationStore provides conversation and membership operations.
// IsParticipant is the authorization check the connection gateway and the
// retrieval path consult before touching any message data.
type ConversationStore interface {
	CreateConversation(ctx context.Context, name string, participantIDs []int64) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	// FindDirectConversation returns an existing non-group conversation
	// between exactly the two given users, or ErrNotFound.
	FindDirectConversation(ctx context.Context, userA, userB int64) (*Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, userID int64) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]int64, error)
	// TouchConversation bumps the conversation's activity timestamp.
	TouchConversation(ctx context.Context, id string) error
}

// Store combines all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	Close() error
}
