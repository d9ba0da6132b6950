// Package messaging implements message ingestion, fan-out and history
// retrieval for the delivery core.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/chatlog"
	"github.com/talkwire/talkwire-server/internal/core"
)

// MaxContentLength bounds a single message's content in characters.
const MaxContentLength = 5000

var (
	// ErrEmptyContent is returned when a message is empty after trimming.
	ErrEmptyContent = errors.New("message content cannot be empty")
	// ErrContentTooLong is returned when content exceeds MaxContentLength.
	ErrContentTooLong = errors.New("message content is too long")
)

// ConversationMetadata is the slice of the relational store this service
// needs: activity bumps and the participant set for unread accounting.
type ConversationMetadata interface {
	TouchConversation(ctx context.Context, id string) error
	ParticipantIDs(ctx context.Context, conversationID string) ([]int64, error)
}

// Service validates, persists and fans out chat events.
type Service struct {
	messages chatlog.Log
	unread   chatlog.UnreadCounters
	router   *core.Router
	convs    ConversationMetadata
	log      *zerolog.Logger
}

// NewService wires the ingestion pipeline.
func NewService(messages chatlog.Log, unread chatlog.UnreadCounters, router *core.Router, convs ConversationMetadata, logger *zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		unread:   unread,
		router:   router,
		convs:    convs,
		log:      logger,
	}
}

// SendMessage runs the strict ingestion sequence: validate, persist, bump
// conversation activity, account unread, broadcast. A validation or
// persistence failure aborts before any side effect; everything after a
// successful append is best-effort and never rolls the message back.
func (s *Service) SendMessage(ctx context.Context, sess *core.Session, content string) (*chatlog.Record, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	rec := chatlog.NewRecord(
		uuid.NewString(),
		sess.ConversationID,
		sess.UserID,
		sess.UserName,
		sess.UserEmail,
		content,
		time.Now(),
	)

	if err := s.messages.Append(ctx, rec); err != nil {
		s.log.Error().Err(err).
			Str("conversation_id", sess.ConversationID).
			Int64("user_id", sess.UserID).
			Msg("failed to persist message")
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := s.convs.TouchConversation(ctx, sess.ConversationID); err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", sess.ConversationID).
			Msg("failed to bump conversation activity")
	}

	s.incrementRecipients(ctx, sess)

	s.router.Broadcast(sess.ConversationID, &core.Event{
		Kind:   core.EventMessage,
		Record: &rec,
	})

	s.log.Info().
		Str("conversation_id", sess.ConversationID).
		Int64("user_id", sess.UserID).
		Str("message_id", rec.ID).
		Msg("message sent")

	return &rec, nil
}

// Typing publishes a typing indicator to every session registered for the
// conversation. The originator's own registration receives it too; the
// delivery path discards it there.
func (s *Service) Typing(_ context.Context, sess *core.Session, isTyping bool) {
	s.router.Broadcast(sess.ConversationID, &core.Event{
		Kind:     core.EventTyping,
		UserID:   sess.UserID,
		UserName: sess.UserName,
		IsTyping: isTyping,
	})
}

// ReadReceipt clears the sender's unread counter. No broadcast.
func (s *Service) ReadReceipt(ctx context.Context, sess *core.Session) {
	s.unread.Reset(ctx, sess.ConversationID, sess.UserID)
}

// Page is one slice of a conversation's history.
type Page struct {
	Records []chatlog.Record
	Total   int64
}

// History returns records oldest-first honoring offset and limit, and
// resets the caller's unread counter as a side effect.
func (s *Service) History(ctx context.Context, conversationID string, userID int64, limit, offset int) Page {
	records := s.messages.Range(ctx, conversationID, offset, limit)
	total := s.messages.Count(ctx, conversationID)

	s.unread.Reset(ctx, conversationID, userID)

	return Page{Records: records, Total: total}
}

// UnreadCount reports how many messages the user has not acknowledged in
// the conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID string, userID int64) int64 {
	return s.unread.Read(ctx, conversationID, userID)
}

// MessageCount reports how many records the conversation's log retains.
func (s *Service) MessageCount(ctx context.Context, conversationID string) int64 {
	return s.messages.Count(ctx, conversationID)
}

// PurgeConversation drops the conversation's entire log. Called when the
// conversation itself is deleted.
func (s *Service) PurgeConversation(ctx context.Context, conversationID string) {
	s.messages.Purge(ctx, conversationID)
}

// incrementRecipients bumps the unread counter of every participant
// except the sender. Failures here must not delay the broadcast.
func (s *Service) incrementRecipients(ctx context.Context, sess *core.Session) {
	ids, err := s.convs.ParticipantIDs(ctx, sess.ConversationID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", sess.ConversationID).
			Msg("failed to list participants for unread accounting")
		return
	}
	for _, id := range ids {
		if id == sess.UserID {
			continue
		}
		s.unread.Increment(ctx, sess.ConversationID, id)
	}
}
