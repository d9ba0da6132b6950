package chatlog

import (
	"context"
	"time"
)

// Record is one immutable chat message in a conversation's log.
// Sender name and email are snapshots taken at send time; they are
// deliberately not kept in sync with later profile edits.
// The JSON encoding doubles as the stored and the wire representation.
type Record struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SenderID       int64   `json:"sender_id"`
	SenderName     string  `json:"sender_name"`
	SenderEmail    string  `json:"sender_email"`
	Content        string  `json:"content"`
	Timestamp      float64 `json:"timestamp"`
	CreatedAt      string  `json:"created_at"`
}

// Log is a per-conversation ordered message log with sliding-window
// retention: every Append pushes the whole conversation's expiry forward
// by the retention window.
//
// Read operations swallow backend faults: they log and return an empty
// slice or zero count, so callers cannot distinguish "truly empty" from
// "store unavailable". Append is the exception: a persistence failure
// must abort the send path, so it reports the error.
type Log interface {
	Append(ctx context.Context, rec Record) error
	// Range returns records ordered oldest-first, skipping offset from the
	// oldest end, capped at limit.
	Range(ctx context.Context, conversationID string, offset, limit int) []Record
	// Tail returns the most recent limit records, oldest-first within the
	// returned slice.
	Tail(ctx context.Context, conversationID string, limit int) []Record
	Count(ctx context.Context, conversationID string) int64
	// Purge hard-deletes the conversation's entire log.
	Purge(ctx context.Context, conversationID string)
}

// UnreadCounters tracks per (conversation, user) unread message counts.
// Counters share the log's retention window and follow the same
// swallow-and-log policy: Read degrades to zero on backend faults.
type UnreadCounters interface {
	Increment(ctx context.Context, conversationID string, userID int64)
	Reset(ctx context.Context, conversationID string, userID int64)
	Read(ctx context.Context, conversationID string, userID int64) int64
}

// NewRecord assembles a record for the given sender and content, stamping
// it with the current time. The float timestamp is the log's sort key.
func NewRecord(id, conversationID string, senderID int64, senderName, senderEmail, content string, now time.Time) Record {
	return Record{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderEmail:    senderEmail,
		Content:        content,
		Timestamp:      float64(now.UnixNano()) / float64(time.Second),
		CreatedAt:      now.Format(time.RFC3339Nano),
	}
}
