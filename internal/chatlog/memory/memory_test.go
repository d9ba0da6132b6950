package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talkwire/talkwire-server/internal/chatlog"
)

const conv = "11111111-1111-1111-1111-111111111111"

func record(ts float64, content string) chatlog.Record {
	return chatlog.Record{
		ID:             uuid.NewString(),
		ConversationID: conv,
		SenderID:       1,
		SenderName:     "Alice",
		SenderEmail:    "alice@example.com",
		Content:        content,
		Timestamp:      ts,
		CreatedAt:      time.Now().Format(time.RFC3339Nano),
	}
}

func TestAppendKeepsTimestampOrder(t *testing.T) {
	s := New(24 * time.Hour)
	ctx := context.Background()

	// Out-of-order arrival must still read back sorted.
	for _, ts := range []float64{3, 1, 2} {
		if err := s.Append(ctx, record(ts, fmt.Sprintf("m%v", ts))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got := s.Range(ctx, conv, 0, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("records out of order at %d: %+v", i, got)
		}
	}
}

func TestEqualTimestampsDoNotCollapse(t *testing.T) {
	s := New(24 * time.Hour)
	ctx := context.Background()

	first := record(5, "same instant A")
	second := record(5, "same instant B")
	if err := s.Append(ctx, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := s.Append(ctx, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	got := s.Range(ctx, conv, 0, 10)
	if len(got) != 2 {
		t.Fatalf("expected both records retained, got %d", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("expected arrival order preserved for ties, got %q then %q", got[0].Content, got[1].Content)
	}
}

func TestRangePagination(t *testing.T) {
	s := New(24 * time.Hour)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		if err := s.Append(ctx, record(float64(i), fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page1 := s.Range(ctx, conv, 0, 100)
	if len(page1) != 100 {
		t.Fatalf("expected 100 records, got %d", len(page1))
	}
	if page1[0].Content != "m0" || page1[99].Content != "m99" {
		t.Fatalf("unexpected first page bounds: %q .. %q", page1[0].Content, page1[99].Content)
	}

	page2 := s.Range(ctx, conv, 100, 100)
	if len(page2) != 20 {
		t.Fatalf("expected 20 records, got %d", len(page2))
	}
	if page2[0].Content != "m100" || page2[19].Content != "m119" {
		t.Fatalf("unexpected second page bounds: %q .. %q", page2[0].Content, page2[19].Content)
	}

	if got := s.Range(ctx, conv, 500, 10); got != nil {
		t.Fatalf("expected nil past the end, got %d records", len(got))
	}
	if got := s.Range(ctx, conv, -5, 2); len(got) != 2 || got[0].Content != "m0" {
		t.Fatalf("negative offset should clamp to start, got %+v", got)
	}
}

func TestTailReturnsNewestOldestFirst(t *testing.T) {
	s := New(24 * time.Hour)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Append(ctx, record(float64(i), fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got := s.Tail(ctx, conv, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Content != "m7" || got[2].Content != "m9" {
		t.Fatalf("unexpected tail: %q .. %q", got[0].Content, got[2].Content)
	}

	// Asking for more than exists returns everything.
	if got := s.Tail(ctx, conv, 50); len(got) != 10 {
		t.Fatalf("expected all 10 records, got %d", len(got))
	}
}

func TestCountAndPurge(t *testing.T) {
	s := New(24 * time.Hour)
	ctx := context.Background()

	if got := s.Count(ctx, conv); got != 0 {
		t.Fatalf("expected 0 for empty log, got %d", got)
	}
	for i := 0; i < 4; i++ {
		_ = s.Append(ctx, record(float64(i), "x"))
	}
	if got := s.Count(ctx, conv); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}

	s.Purge(ctx, conv)
	if got := s.Count(ctx, conv); got != 0 {
		t.Fatalf("expected 0 after purge, got %d", got)
	}
}

func TestSlidingRetention(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	now := time.Unix(1_000_000, 0)
	s.SetClock(func() time.Time { return now })

	_ = s.Append(ctx, record(1, "first"))

	// 50 minutes later a new message slides the whole log forward.
	now = now.Add(50 * time.Minute)
	_ = s.Append(ctx, record(2, "second"))

	// 50 more minutes: still within the refreshed window, both survive.
	now = now.Add(50 * time.Minute)
	if got := s.Count(ctx, conv); got != 2 {
		t.Fatalf("expected both records inside the window, got %d", got)
	}

	// Past the window with no new writes: the entire log expires at once.
	now = now.Add(2 * time.Hour)
	if got := s.Count(ctx, conv); got != 0 {
		t.Fatalf("expected log expired, got %d records", got)
	}
	if got := s.Range(ctx, conv, 0, 10); got != nil {
		t.Fatalf("expected no records after expiry, got %d", len(got))
	}
}

func TestUnreadCounters(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	if got := s.Read(ctx, conv, 7); got != 0 {
		t.Fatalf("expected 0 for absent counter, got %d", got)
	}

	// Reset with no prior increment is a no-op.
	s.Reset(ctx, conv, 7)
	if got := s.Read(ctx, conv, 7); got != 0 {
		t.Fatalf("expected 0 after reset of absent counter, got %d", got)
	}

	for i := 0; i < 3; i++ {
		s.Increment(ctx, conv, 7)
	}
	if got := s.Read(ctx, conv, 7); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	// Counters are independent per user and conversation.
	s.Increment(ctx, "other-conv", 7)
	s.Increment(ctx, conv, 8)
	if got := s.Read(ctx, conv, 7); got != 3 {
		t.Fatalf("expected 3 after unrelated increments, got %d", got)
	}

	s.Reset(ctx, conv, 7)
	if got := s.Read(ctx, conv, 7); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestUnreadCounterExpiry(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	now := time.Unix(1_000_000, 0)
	s.SetClock(func() time.Time { return now })

	s.Increment(ctx, conv, 7)

	now = now.Add(30 * time.Minute)
	s.Increment(ctx, conv, 7) // refreshes expiry

	now = now.Add(45 * time.Minute)
	if got := s.Read(ctx, conv, 7); got != 2 {
		t.Fatalf("expected counter alive after refresh, got %d", got)
	}

	now = now.Add(time.Hour)
	if got := s.Read(ctx, conv, 7); got != 0 {
		t.Fatalf("expected counter expired, got %d", got)
	}
}
