// Package redis stores conversation logs in Redis sorted sets.
//
// Each conversation's messages live in one sorted set keyed by
// conversation id, scored by the message timestamp. The set's TTL is
// re-armed on every append, so retention slides forward with activity.
// Unread counters are plain INCR keys with the same TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/chatlog"
)

// Store implements chatlog.Log and chatlog.UnreadCounters on Redis.
type Store struct {
	client    *redis.Client
	retention time.Duration
	log       *zerolog.Logger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Retention is the sliding expiry window for message logs and unread
	// counters.
	Retention time.Duration
}

// New connects to Redis and verifies connectivity.
func New(opts Options, logger *zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{
		client:    client,
		retention: opts.Retention,
		log:       logger,
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func messagesKey(conversationID string) string {
	return "conversation:" + conversationID + ":messages"
}

func unreadKey(conversationID string, userID int64) string {
	return fmt.Sprintf("conversation:%s:user:%d:unread", conversationID, userID)
}

// Append inserts the record scored by its timestamp and re-arms the
// conversation's expiry. The member embeds the record's UUID, so two
// messages with identical visible fields never collapse into one entry.
func (s *Store) Append(ctx context.Context, rec chatlog.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := messagesKey(rec.ConversationID)
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: rec.Timestamp, Member: payload}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	if err := s.client.Expire(ctx, key, s.retention).Err(); err != nil {
		// The message is stored; a failed expiry refresh only delays
		// eviction. Log and move on.
		s.log.Warn().Err(err).Str("conversation_id", rec.ConversationID).Msg("failed to refresh log expiry")
	}
	return nil
}

// Range returns records oldest-first, skipping offset, capped at limit.
func (s *Store) Range(ctx context.Context, conversationID string, offset, limit int) []chatlog.Record {
	if limit <= 0 {
		return nil
	}
	raw, err := s.client.ZRange(ctx, messagesKey(conversationID), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to range messages")
		return nil
	}
	return s.decode(conversationID, raw)
}

// Tail returns the newest limit records, oldest-first within the slice.
func (s *Store) Tail(ctx context.Context, conversationID string, limit int) []chatlog.Record {
	if limit <= 0 {
		return nil
	}
	raw, err := s.client.ZRange(ctx, messagesKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to tail messages")
		return nil
	}
	return s.decode(conversationID, raw)
}

// Count returns the number of retained records.
func (s *Store) Count(ctx context.Context, conversationID string) int64 {
	count, err := s.client.ZCard(ctx, messagesKey(conversationID)).Result()
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to count messages")
		return 0
	}
	return count
}

// Purge hard-deletes the conversation's log.
func (s *Store) Purge(ctx context.Context, conversationID string) {
	if err := s.client.Del(ctx, messagesKey(conversationID)).Err(); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to purge messages")
		return
	}
	s.log.Info().Str("conversation_id", conversationID).Msg("conversation log purged")
}

// Increment bumps the user's unread counter and refreshes its expiry.
func (s *Store) Increment(ctx context.Context, conversationID string, userID int64) {
	key := unreadKey(conversationID, userID)
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to increment unread count")
		return
	}
	if err := s.client.Expire(ctx, key, s.retention).Err(); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to refresh unread expiry")
	}
}

// Reset deletes the user's unread counter.
func (s *Store) Reset(ctx context.Context, conversationID string, userID int64) {
	if err := s.client.Del(ctx, unreadKey(conversationID, userID)).Err(); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to reset unread count")
	}
}

// Read returns the current unread count, or 0 when absent or unavailable.
func (s *Store) Read(ctx context.Context, conversationID string, userID int64) int64 {
	val, err := s.client.Get(ctx, unreadKey(conversationID, userID)).Result()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to read unread count")
		return 0
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Int64("user_id", userID).Msg("unread counter is not a number")
		return 0
	}
	return count
}

func (s *Store) decode(conversationID string, raw []string) []chatlog.Record {
	records := make([]chatlog.Record, 0, len(raw))
	for _, item := range raw {
		var rec chatlog.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to decode stored message")
			continue
		}
		records = append(records, rec)
	}
	return records
}

var (
	_ chatlog.Log            = (*Store)(nil)
	_ chatlog.UnreadCounters = (*Store)(nil)
)
