package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket/wsjson"

	"github.com/talkwire/talkwire-server/internal/proto"
)

// doJSON issues an authenticated JSON request against the test server and
// decodes the response body into out (when out is non-nil).
func doJSON(t *testing.T, env *testEnv, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, env.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRegisterAndLoginOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	var reg AuthResponse
	status := doJSON(t, env, http.MethodPost, "/api/register", "", RegisterRequest{
		Username:    "alice",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Password:    "password123",
	}, &reg)
	if status != http.StatusCreated || reg.Token == "" {
		t.Fatalf("register: status=%d token=%q", status, reg.Token)
	}

	// Duplicate username conflicts.
	status = doJSON(t, env, http.MethodPost, "/api/register", "", RegisterRequest{
		Username:    "alice",
		Email:       "other@example.com",
		DisplayName: "Alice",
		Password:    "password123",
	}, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: status=%d", status)
	}

	var login AuthResponse
	status = doJSON(t, env, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "password123",
	}, &login)
	if status != http.StatusOK || login.Token == "" {
		t.Fatalf("login: status=%d token=%q", status, login.Token)
	}

	status = doJSON(t, env, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "wrong-password",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login: status=%d", status)
	}
}

func TestCreateConversationDeduplicatesDirect(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "alice", "Alice")
	bobID, _ := env.registerUser(t, "bob", "Bob")

	var first ConversationResponse
	status := doJSON(t, env, http.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		ParticipantIDs: []int64{bobID},
	}, &first)
	if status != http.StatusCreated {
		t.Fatalf("create: status=%d", status)
	}
	if first.IsGroup {
		t.Fatal("two-person conversation marked as group")
	}
	if len(first.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(first.Participants))
	}

	var second ConversationResponse
	status = doJSON(t, env, http.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		ParticipantIDs: []int64{bobID},
	}, &second)
	if status != http.StatusOK {
		t.Fatalf("repeat create: status=%d", status)
	}
	if second.ID != first.ID {
		t.Fatalf("direct conversation duplicated: %s vs %s", second.ID, first.ID)
	}
}

func TestCreateGroupConversation(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "alice", "Alice")
	bobID, _ := env.registerUser(t, "bob", "Bob")
	carolID, _ := env.registerUser(t, "carol", "Carol")

	var conv ConversationResponse
	status := doJSON(t, env, http.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		Name:           "weekend plans",
		ParticipantIDs: []int64{bobID, carolID},
	}, &conv)
	if status != http.StatusCreated {
		t.Fatalf("create: status=%d", status)
	}
	if !conv.IsGroup {
		t.Fatal("three-person conversation not marked as group")
	}
	if conv.Name != "weekend plans" {
		t.Fatalf("name = %q", conv.Name)
	}

	// Unknown participant is a client error.
	status = doJSON(t, env, http.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		ParticipantIDs: []int64{99999},
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown participant: status=%d", status)
	}
}

func TestConversationAccessControl(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.registerUser(t, "alice", "Alice")
	bobID, _ := env.registerUser(t, "bob", "Bob")
	_, eveToken := env.registerUser(t, "eve", "Eve")
	convID := env.createConversation(t, "", aliceID, bobID)

	status := doJSON(t, env, http.MethodGet, "/api/conversations/"+convID, eveToken, nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-participant get: status=%d", status)
	}
	status = doJSON(t, env, http.MethodGet, "/api/conversations/"+convID+"/messages", eveToken, nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-participant messages: status=%d", status)
	}
	status = doJSON(t, env, http.MethodGet, "/api/conversations/"+convID, "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous get: status=%d", status)
	}
	status = doJSON(t, env, http.MethodGet, "/api/conversations/does-not-exist", aliceToken, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing conversation: status=%d", status)
	}
}

func TestMessageHistoryPaginationAndUnreadReset(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.registerUser(t, "alice", "Alice")
	bobID, bobToken := env.registerUser(t, "bob", "Bob")
	convID := env.createConversation(t, "", aliceID, bobID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := env.dialWS(t, ctx, convID, aliceToken)
	for i := 0; i < 120; i++ {
		if err := wsjson.Write(ctx, alice, proto.Inbound{
			Type:    proto.InboundTypeMessage,
			Content: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("send m%d: %v", i, err)
		}
		// Drain the echo so the session buffer never fills.
		frame := readFrame(t, ctx, alice)
		if frame.Type != proto.OutboundTypeMessage {
			t.Fatalf("m%d: unexpected frame type %q", i, frame.Type)
		}
	}

	// Bob accumulated unread messages while offline.
	var convs []ConversationResponse
	status := doJSON(t, env, http.MethodGet, "/api/conversations", bobToken, nil, &convs)
	if status != http.StatusOK || len(convs) != 1 {
		t.Fatalf("list: status=%d len=%d", status, len(convs))
	}
	if convs[0].UnreadCount != 120 {
		t.Fatalf("unread = %d, want 120", convs[0].UnreadCount)
	}
	if convs[0].MessageCount != 120 {
		t.Fatalf("message_count = %d, want 120", convs[0].MessageCount)
	}

	var page MessagesResponse
	status = doJSON(t, env, http.MethodGet, "/api/conversations/"+convID+"/messages", bobToken, nil, &page)
	if status != http.StatusOK {
		t.Fatalf("messages: status=%d", status)
	}
	if page.Count != 50 || len(page.Messages) != 50 {
		t.Fatalf("default page size = %d, want 50", page.Count)
	}
	if page.Total != 120 {
		t.Fatalf("total = %d, want 120", page.Total)
	}
	if page.Messages[0].Content != "m0" || page.Messages[49].Content != "m49" {
		t.Fatalf("wrong page window: first=%q last=%q", page.Messages[0].Content, page.Messages[49].Content)
	}

	// Retrieval reset bob's unread counter.
	status = doJSON(t, env, http.MethodGet, "/api/conversations", bobToken, nil, &convs)
	if status != http.StatusOK || convs[0].UnreadCount != 0 {
		t.Fatalf("unread after read = %d, want 0", convs[0].UnreadCount)
	}

	// A limit above the cap is clamped; offset walks the log.
	status = doJSON(t, env, http.MethodGet, "/api/conversations/"+convID+"/messages?limit=500&offset=100", bobToken, nil, &page)
	if status != http.StatusOK {
		t.Fatalf("paged messages: status=%d", status)
	}
	if page.Count != 20 {
		t.Fatalf("tail page size = %d, want 20", page.Count)
	}
	if page.Messages[0].Content != "m100" || page.Messages[19].Content != "m119" {
		t.Fatalf("wrong tail window: first=%q last=%q", page.Messages[0].Content, page.Messages[19].Content)
	}
}

func TestDeleteConversationPurgesLog(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.registerUser(t, "alice", "Alice")
	bobID, _ := env.registerUser(t, "bob", "Bob")
	convID := env.createConversation(t, "", aliceID, bobID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dialWS(t, ctx, convID, aliceToken)
	if err := wsjson.Write(ctx, alice, proto.Inbound{Type: proto.InboundTypeMessage, Content: "ephemeral"}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	readFrame(t, ctx, alice)

	status := doJSON(t, env, http.MethodDelete, "/api/conversations/"+convID, aliceToken, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: status=%d", status)
	}

	if n := env.log.Count(ctx, convID); n != 0 {
		t.Fatalf("log not purged: %d records remain", n)
	}

	status = doJSON(t, env, http.MethodGet, "/api/conversations/"+convID, aliceToken, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete: status=%d", status)
	}
}
