package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/proto"
	"github.com/talkwire/talkwire-server/internal/service/messaging"
)

// ParticipantOracle answers whether a user belongs to a conversation.
// Backed by the relational conversation store; read-only here.
type ParticipantOracle interface {
	IsParticipant(ctx context.Context, conversationID string, userID int64) (bool, error)
}

// WSHandler upgrades connections on /ws/conversations/:id and bridges
// them to the delivery core.
type WSHandler struct {
	router *core.Router
	svc    *messaging.Service
	auth   *auth.Service
	oracle ParticipantOracle
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(router *core.Router, svc *messaging.Service, authService *auth.Service, oracle ParticipantOracle, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		router: router,
		svc:    svc,
		auth:   authService,
		oracle: oracle,
		log:    logger,
	}
}

// Handle establishes a session. Authentication and membership are checked
// before the upgrade: a rejected client gets a bare status code and no
// payload of any kind.
func (h *WSHandler) Handle(c *gin.Context) {
	conversationID := c.Param("id")

	claims, err := h.authenticate(c)
	if err != nil {
		h.log.Warn().
			Str("conversation_id", conversationID).
			Str("remote_addr", c.ClientIP()).
			Msg("unauthenticated connection attempt")
		c.AbortWithStatus(401)
		return
	}

	isParticipant, err := h.oracle.IsParticipant(c.Request.Context(), conversationID, claims.UserID)
	if err != nil {
		h.log.Error().Err(err).
			Str("conversation_id", conversationID).
			Int64("user_id", claims.UserID).
			Msg("participant check failed")
		c.AbortWithStatus(403)
		return
	}
	if !isParticipant {
		h.log.Warn().
			Str("conversation_id", conversationID).
			Int64("user_id", claims.UserID).
			Msg("connection attempt without conversation membership")
		c.AbortWithStatus(403)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sess := core.NewSession(claims.UserID, claims.DisplayName, claims.Email, conversationID)
	h.router.Join(conversationID, sess)
	defer h.router.Leave(conversationID, sess)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := wsjson.Write(ctx, conn, proto.ConnectionEstablished{
		Type:           proto.OutboundTypeConnectionEstablished,
		Message:        "Connected to chat",
		ConversationID: conversationID,
	}); err != nil {
		h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to confirm connection")
		return
	}

	h.log.Info().
		Int64("user_id", claims.UserID).
		Str("conversation_id", conversationID).
		Str("session_id", sess.ID).
		Msg("user connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	h.log.Info().
		Int64("user_id", claims.UserID).
		Str("conversation_id", conversationID).
		Str("session_id", sess.ID).
		Msg("user disconnected")

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate pulls the JWT from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query
// parameter.
func (h *WSHandler) authenticate(c *gin.Context) (*auth.Claims, error) {
	token := bearerToken(c)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.auth.ValidateToken(token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			// Malformed frames are not fatal; tell the client and move on.
			deliverError(sess, proto.ErrInvalidFormat)
			continue
		}

		h.dispatch(ctx, sess, inbound)
	}
}

// dispatch routes one inbound envelope. Nothing here is fatal to the
// connection; failures surface to the client as error events on the
// session's own channel, keeping all socket writes in the write loop.
func (h *WSHandler) dispatch(ctx context.Context, sess *core.Session, inbound proto.Inbound) {
	switch inbound.Type {
	case proto.InboundTypeMessage:
		if _, err := h.svc.SendMessage(ctx, sess, inbound.Content); err != nil {
			deliverError(sess, sendErrorMessage(err))
		}
	case proto.InboundTypeTyping:
		h.svc.Typing(ctx, sess, inbound.IsTyping)
	case proto.InboundTypeRead:
		h.svc.ReadReceipt(ctx, sess)
	default:
		// Unknown types are dropped without a client-visible signal; only
		// malformed encoding earns an error envelope.
		h.log.Warn().
			Str("type", inbound.Type).
			Str("session_id", sess.ID).
			Msg("unknown message type")
	}
}

// deliverError queues a sender-only error event. Like a broadcast, it is
// dropped rather than blocking when the session's buffer is full.
func deliverError(sess *core.Session, text string) {
	select {
	case sess.Events <- &core.Event{Kind: core.EventError, Text: text}:
	default:
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case event, ok := <-sess.Events:
			if !ok {
				return nil
			}
			// Typing indicators echo back to the producing session's
			// registration; discard them here rather than at publish.
			if event.Kind == core.EventTyping && event.UserID == sess.UserID {
				continue
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", sess.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, messaging.ErrEmptyContent):
		return proto.ErrEmptyContent
	case errors.Is(err, messaging.ErrContentTooLong):
		return proto.ErrContentTooLong
	default:
		return proto.ErrProcessingError
	}
}
