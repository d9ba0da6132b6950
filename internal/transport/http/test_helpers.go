package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/chatlog/memory"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/proto"
	"github.com/talkwire/talkwire-server/internal/service/messaging"
	"github.com/talkwire/talkwire-server/internal/store"
	"github.com/talkwire/talkwire-server/internal/store/sqlite"
)

// testEnv bundles a fully wired server with direct handles on its layers
// so tests can seed data without going through HTTP.
type testEnv struct {
	ts     *httptest.Server
	store  store.Store
	log    *memory.Store
	svc    *messaging.Service
	router *core.Router
	auth   *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})

	ml := memory.New(24 * time.Hour)
	router := core.NewRouter()
	svc := messaging.NewService(ml, ml, router, st, &logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(&cfg, authService, st, svc, router, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:     ts,
		store:  st,
		log:    ml,
		svc:    svc,
		router: router,
		auth:   authService,
	}
}

// registerUser creates an account and returns its ID and a valid token.
func (e *testEnv) registerUser(t *testing.T, username, displayName string) (int64, string) {
	t.Helper()

	ctx := context.Background()
	token, err := e.auth.Register(ctx, username, username+"@example.com", displayName, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		t.Fatalf("look up %s: %v", username, err)
	}
	return user.ID, token
}

// createConversation seeds a conversation directly through the store.
func (e *testEnv) createConversation(t *testing.T, name string, participantIDs ...int64) string {
	t.Helper()

	conv, err := e.store.CreateConversation(context.Background(), name, participantIDs)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv.ID
}

func (e *testEnv) wsURL(conversationID, token string) string {
	url := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws/conversations/" + conversationID
	if token != "" {
		url += "?token=" + token
	}
	return url
}

// dialWS connects to a conversation and consumes the connection
// confirmation frame.
func (e *testEnv) dialWS(t *testing.T, ctx context.Context, conversationID, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(conversationID, token), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	var established proto.ConnectionEstablished
	if err := wsjson.Read(ctx, conn, &established); err != nil {
		t.Fatalf("read connection confirmation: %v", err)
	}
	if established.Type != proto.OutboundTypeConnectionEstablished {
		t.Fatalf("unexpected first frame type: %s", established.Type)
	}
	return conn
}

// outboundFrame is a decoded server-to-client envelope. Error envelopes
// and message envelopes both use the "message" key, so ErrorText is split
// out by frame type.
type outboundFrame struct {
	Type      string
	Message   *proto.MessageRecord
	UserID    int64
	UserName  string
	IsTyping  bool
	ErrorText string
}

// readFrame reads one outbound frame with the context's deadline.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) outboundFrame {
	t.Helper()

	var raw map[string]any
	if err := wsjson.Read(ctx, conn, &raw); err != nil {
		t.Fatalf("read frame: %v", err)
	}

	frame := outboundFrame{}
	if v, ok := raw["type"].(string); ok {
		frame.Type = v
	}
	if v, ok := raw["user_id"].(float64); ok {
		frame.UserID = int64(v)
	}
	if v, ok := raw["user_name"].(string); ok {
		frame.UserName = v
	}
	if v, ok := raw["is_typing"].(bool); ok {
		frame.IsTyping = v
	}
	if frame.Type == proto.OutboundTypeError {
		if v, ok := raw["message"].(string); ok {
			frame.ErrorText = v
		}
		return frame
	}
	if msg, ok := raw["message"].(map[string]any); ok {
		rec := proto.MessageRecord{}
		if v, ok := msg["id"].(string); ok {
			rec.ID = v
		}
		if v, ok := msg["conversation_id"].(string); ok {
			rec.ConversationID = v
		}
		if v, ok := msg["sender_id"].(float64); ok {
			rec.SenderID = int64(v)
		}
		if v, ok := msg["sender_name"].(string); ok {
			rec.SenderName = v
		}
		if v, ok := msg["sender_email"].(string); ok {
			rec.SenderEmail = v
		}
		if v, ok := msg["content"].(string); ok {
			rec.Content = v
		}
		if v, ok := msg["timestamp"].(float64); ok {
			rec.Timestamp = v
		}
		frame.Message = &rec
	}
	return frame
}
