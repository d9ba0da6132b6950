package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/chatlog/memory"
	"github.com/talkwire/talkwire-server/internal/core"
)

const conv = "11111111-1111-1111-1111-111111111111"

type fakeMetadata struct {
	participants []int64
	touched      int
	touchErr     error
}

func (f *fakeMetadata) TouchConversation(context.Context, string) error {
	f.touched++
	return f.touchErr
}

func (f *fakeMetadata) ParticipantIDs(context.Context, string) ([]int64, error) {
	return f.participants, nil
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	router *core.Router
	meta   *fakeMetadata
}

func newFixture(participants ...int64) *fixture {
	store := memory.New(24 * time.Hour)
	router := core.NewRouter()
	meta := &fakeMetadata{participants: participants}
	logger := zerolog.New(nil)
	return &fixture{
		svc:    NewService(store, store, router, meta, &logger),
		store:  store,
		router: router,
		meta:   meta,
	}
}

func drainEvent(t *testing.T, s *core.Session, kind core.EventKind) *core.Event {
	t.Helper()
	select {
	case ev := <-s.Events:
		if ev.Kind != kind {
			t.Fatalf("expected event kind %v, got %+v", kind, ev)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("expected event kind %v not received", kind)
		return nil
	}
}

func TestSendMessageTrimsAndBroadcasts(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "alice@example.com", conv)
	u2 := core.NewSession(2, "Bob", "bob@example.com", conv)
	f.router.Join(conv, u1)
	f.router.Join(conv, u2)

	rec, err := f.svc.SendMessage(ctx, u1, "  hello  ")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if rec.Content != "hello" {
		t.Fatalf("expected trimmed content, got %q", rec.Content)
	}
	if rec.SenderID != 1 || rec.SenderName != "Alice" || rec.SenderEmail != "alice@example.com" {
		t.Fatalf("unexpected sender snapshot: %+v", rec)
	}
	if rec.ID == "" || rec.Timestamp == 0 || rec.CreatedAt == "" {
		t.Fatalf("record missing generated fields: %+v", rec)
	}

	// Both sessions receive the message event, sender included.
	for _, s := range []*core.Session{u1, u2} {
		ev := drainEvent(t, s, core.EventMessage)
		if ev.Record.Content != "hello" {
			t.Fatalf("unexpected broadcast record: %+v", ev.Record)
		}
	}

	if got := f.store.Count(ctx, conv); got != 1 {
		t.Fatalf("expected 1 persisted message, got %d", got)
	}
	if f.meta.touched != 1 {
		t.Fatalf("expected activity bump, got %d", f.meta.touched)
	}
}

func TestSendMessageRejectsWhitespaceOnly(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	u2 := core.NewSession(2, "Bob", "", conv)
	f.router.Join(conv, u1)
	f.router.Join(conv, u2)

	if _, err := f.svc.SendMessage(ctx, u1, "   \t\n "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	// No persistence, no broadcast, no metadata bump.
	if got := f.store.Count(ctx, conv); got != 0 {
		t.Fatalf("expected no persisted messages, got %d", got)
	}
	select {
	case ev := <-u2.Events:
		t.Fatalf("expected no broadcast, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if f.meta.touched != 0 {
		t.Fatalf("expected no activity bump, got %d", f.meta.touched)
	}
}

func TestSendMessageRejectsOversizedContent(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)

	if _, err := f.svc.SendMessage(ctx, u1, strings.Repeat("a", MaxContentLength+1)); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	if got := f.store.Count(ctx, conv); got != 0 {
		t.Fatalf("expected no persisted messages, got %d", got)
	}

	// Exactly at the bound is fine.
	if _, err := f.svc.SendMessage(ctx, u1, strings.Repeat("a", MaxContentLength)); err != nil {
		t.Fatalf("expected max-length content accepted, got %v", err)
	}
}

func TestSendMessageTouchFailureDoesNotBlockBroadcast(t *testing.T) {
	f := newFixture(1, 2)
	f.meta.touchErr = errors.New("metadata store down")
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	u2 := core.NewSession(2, "Bob", "", conv)
	f.router.Join(conv, u1)
	f.router.Join(conv, u2)

	if _, err := f.svc.SendMessage(ctx, u1, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	drainEvent(t, u2, core.EventMessage)
}

func TestSendMessageIncrementsRecipientsOnly(t *testing.T) {
	f := newFixture(1, 2, 3)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	if _, err := f.svc.SendMessage(ctx, u1, "hi"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, u1, "again"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if got := f.svc.UnreadCount(ctx, conv, 1); got != 0 {
		t.Fatalf("sender's unread count must stay 0, got %d", got)
	}
	for _, id := range []int64{2, 3} {
		if got := f.svc.UnreadCount(ctx, conv, id); got != 2 {
			t.Fatalf("user %d: expected 2 unread, got %d", id, got)
		}
	}
}

func TestTypingReachesAllRegistrations(t *testing.T) {
	f := newFixture(1, 2, 3)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	u2 := core.NewSession(2, "Bob", "", conv)
	u3 := core.NewSession(3, "Carol", "", conv)
	for _, s := range []*core.Session{u1, u2, u3} {
		f.router.Join(conv, s)
	}

	f.svc.Typing(ctx, u1, true)

	// Publish does not filter; the originator's registration receives the
	// event too. Self-echo suppression happens at delivery.
	for _, s := range []*core.Session{u1, u2, u3} {
		ev := drainEvent(t, s, core.EventTyping)
		if ev.UserID != 1 || ev.UserName != "Alice" || !ev.IsTyping {
			t.Fatalf("unexpected typing event: %+v", ev)
		}
	}
}

func TestReadReceiptResetsUnread(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	u2 := core.NewSession(2, "Bob", "", conv)

	if _, err := f.svc.SendMessage(ctx, u1, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if got := f.svc.UnreadCount(ctx, conv, 2); got != 1 {
		t.Fatalf("expected 1 unread, got %d", got)
	}

	f.svc.ReadReceipt(ctx, u2)
	if got := f.svc.UnreadCount(ctx, conv, 2); got != 0 {
		t.Fatalf("expected 0 after read receipt, got %d", got)
	}
}

func TestHistoryResetsCallerUnread(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.SendMessage(ctx, u1, "msg"); err != nil {
			t.Fatalf("send message: %v", err)
		}
	}

	page := f.svc.History(ctx, conv, 2, 2, 0)
	if len(page.Records) != 2 || page.Total != 3 {
		t.Fatalf("unexpected page: %d records, total %d", len(page.Records), page.Total)
	}
	if got := f.svc.UnreadCount(ctx, conv, 2); got != 0 {
		t.Fatalf("expected unread reset by retrieval, got %d", got)
	}
}

func TestPurgeConversation(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()

	u1 := core.NewSession(1, "Alice", "", conv)
	if _, err := f.svc.SendMessage(ctx, u1, "hello"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	f.svc.PurgeConversation(ctx, conv)
	if got := f.svc.MessageCount(ctx, conv); got != 0 {
		t.Fatalf("expected empty log after purge, got %d", got)
	}
}
