// Package memory is an in-process chatlog backend with the same ordering
// and sliding-retention semantics as the Redis one. It backs tests and
// single-node deployments that run without Redis; nothing survives a
// restart.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/talkwire/talkwire-server/internal/chatlog"
)

type conversationLog struct {
	records   []chatlog.Record
	expiresAt time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// Store implements chatlog.Log and chatlog.UnreadCounters in memory.
type Store struct {
	mu        sync.Mutex
	logs      map[string]*conversationLog
	counters  map[string]*counter
	retention time.Duration
	now       func() time.Time
}

// New creates a store with the given sliding retention window.
func New(retention time.Duration) *Store {
	return &Store{
		logs:      make(map[string]*conversationLog),
		counters:  make(map[string]*counter),
		retention: retention,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Append inserts the record in timestamp order and slides the
// conversation's expiry forward. Records with equal timestamps keep
// their insertion order; they are never collapsed.
func (s *Store) Append(_ context.Context, rec chatlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[rec.ConversationID]
	if log == nil || !s.now().Before(log.expiresAt) {
		log = &conversationLog{}
		s.logs[rec.ConversationID] = log
	}

	// Insert before the first record with a strictly greater timestamp,
	// keeping ties in arrival order.
	idx := sort.Search(len(log.records), func(i int) bool {
		return log.records[i].Timestamp > rec.Timestamp
	})
	log.records = append(log.records, chatlog.Record{})
	copy(log.records[idx+1:], log.records[idx:])
	log.records[idx] = rec

	log.expiresAt = s.now().Add(s.retention)
	return nil
}

// Range returns records oldest-first, skipping offset, capped at limit.
func (s *Store) Range(_ context.Context, conversationID string, offset, limit int) []chatlog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.liveRecords(conversationID)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	out := make([]chatlog.Record, end-offset)
	copy(out, records[offset:end])
	return out
}

// Tail returns the newest limit records, oldest-first within the slice.
func (s *Store) Tail(_ context.Context, conversationID string, limit int) []chatlog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.liveRecords(conversationID)
	if limit <= 0 {
		return nil
	}
	start := len(records) - limit
	if start < 0 {
		start = 0
	}
	out := make([]chatlog.Record, len(records)-start)
	copy(out, records[start:])
	return out
}

// Count returns the number of retained records.
func (s *Store) Count(_ context.Context, conversationID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.liveRecords(conversationID)))
}

// Purge hard-deletes the conversation's log.
func (s *Store) Purge(_ context.Context, conversationID string) {
	s.mu.Lock()
	delete(s.logs, conversationID)
	s.mu.Unlock()
}

// Increment bumps the unread counter and refreshes its expiry.
func (s *Store) Increment(_ context.Context, conversationID string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(conversationID, userID)
	c := s.counters[key]
	if c == nil || !s.now().Before(c.expiresAt) {
		c = &counter{}
		s.counters[key] = c
	}
	c.value++
	c.expiresAt = s.now().Add(s.retention)
}

// Reset deletes the unread counter.
func (s *Store) Reset(_ context.Context, conversationID string, userID int64) {
	s.mu.Lock()
	delete(s.counters, counterKey(conversationID, userID))
	s.mu.Unlock()
}

// Read returns the unread counter value, or 0 when absent or expired.
func (s *Store) Read(_ context.Context, conversationID string, userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[counterKey(conversationID, userID)]
	if c == nil || !s.now().Before(c.expiresAt) {
		return 0
	}
	return c.value
}

// liveRecords drops the whole log once its window has lapsed. Callers
// must hold s.mu.
func (s *Store) liveRecords(conversationID string) []chatlog.Record {
	log := s.logs[conversationID]
	if log == nil {
		return nil
	}
	if !s.now().Before(log.expiresAt) {
		delete(s.logs, conversationID)
		return nil
	}
	return log.records
}

func counterKey(conversationID string, userID int64) string {
	return conversationID + "/" + strconv.FormatInt(userID, 10)
}

var (
	_ chatlog.Log            = (*Store)(nil)
	_ chatlog.UnreadCounters = (*Store)(nil)
)
