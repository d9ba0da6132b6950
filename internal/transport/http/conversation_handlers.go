package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/proto"
	"github.com/talkwire/talkwire-server/internal/service/messaging"
	"github.com/talkwire/talkwire-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ConversationHandlers provides HTTP handlers for conversation metadata
// and message history.
type ConversationHandlers struct {
	store store.Store
	svc   *messaging.Service
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, svc *messaging.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		svc:   svc,
		log:   logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	Name           string  `json:"name" binding:"max=128"`
	ParticipantIDs []int64 `json:"participant_ids" binding:"required,min=1"`
}

// ParticipantResponse is one participant in API responses.
type ParticipantResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name,omitempty"`
	IsGroup      bool                  `json:"is_group"`
	CreatedAt    string                `json:"created_at"`
	UpdatedAt    string                `json:"updated_at"`
	Participants []ParticipantResponse `json:"participants"`
	MessageCount int64                 `json:"message_count"`
	UnreadCount  int64                 `json:"unread_count"`
}

// MessagesResponse is the message history payload.
type MessagesResponse struct {
	ConversationID string                `json:"conversation_id"`
	Messages       []proto.MessageRecord `json:"messages"`
	Count          int                   `json:"count"`
	Total          int64                 `json:"total"`
}

// Create handles conversation creation. The caller is always included in
// the participant set; an existing 1:1 conversation between the same two
// users is returned instead of duplicated.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ids := req.ParticipantIDs
	hasCaller := false
	for _, id := range ids {
		if id == userID {
			hasCaller = true
			break
		}
	}
	if !hasCaller {
		ids = append(ids, userID)
	}

	ctx := c.Request.Context()
	for _, id := range ids {
		if _, err := h.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown participant"})
				return
			}
			h.log.Error().Err(err).Int64("participant_id", id).Msg("failed to verify participant")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
	}

	if len(ids) == 2 {
		existing, err := h.store.FindDirectConversation(ctx, ids[0], ids[1])
		if err == nil {
			h.log.Info().Str("conversation_id", existing.ID).Msg("returning existing direct conversation")
			c.JSON(http.StatusOK, h.conversationResponse(c, existing, userID))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("failed to look up direct conversation")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
	}

	conv, err := h.store.CreateConversation(ctx, req.Name, ids)
	if err != nil {
		if errors.Is(err, store.ErrTooFewParticipants) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "conversation needs at least two participants"})
			return
		}
		h.log.Error().Err(err).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Int64("user_id", userID).Msg("conversation created")
	c.JSON(http.StatusCreated, h.conversationResponse(c, conv, userID))
}

// List returns the caller's conversations with message and unread counts.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convs, err := h.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, h.conversationResponse(c, &convs[i], userID))
	}
	c.JSON(http.StatusOK, out)
}

// Get returns one conversation the caller participates in.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	conv, status, errMsg := h.authorizedConversation(c, userID)
	if conv == nil {
		c.JSON(status, ErrorResponse{Error: errMsg})
		return
	}

	c.JSON(http.StatusOK, h.conversationResponse(c, conv, userID))
}

// Delete removes a conversation and purges its message log.
// DELETE /api/conversations/:id
func (h *ConversationHandlers) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	conv, status, errMsg := h.authorizedConversation(c, userID)
	if conv == nil {
		c.JSON(status, ErrorResponse{Error: errMsg})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.DeleteConversation(ctx, conv.ID); err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to delete conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.svc.PurgeConversation(ctx, conv.ID)

	h.log.Info().Str("conversation_id", conv.ID).Int64("user_id", userID).Msg("conversation deleted")
	c.Status(http.StatusNoContent)
}

// Messages serves the history retrieval boundary. Membership is verified
// before any store access; retrieving history resets the caller's unread
// counter.
// GET /api/conversations/:id/messages?limit=&offset=
func (h *ConversationHandlers) Messages(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	conv, status, errMsg := h.authorizedConversation(c, userID)
	if conv == nil {
		c.JSON(status, ErrorResponse{Error: errMsg})
		return
	}

	limit := parseClamped(c.Query("limit"), defaultHistoryLimit, 1, maxHistoryLimit)
	offset := parseClamped(c.Query("offset"), 0, 0, int(^uint(0)>>1))

	page := h.svc.History(c.Request.Context(), conv.ID, userID, limit, offset)
	messages := recordsToWire(page.Records)

	h.log.Info().
		Str("conversation_id", conv.ID).
		Int64("user_id", userID).
		Int("count", len(messages)).
		Msg("messages retrieved")

	c.JSON(http.StatusOK, MessagesResponse{
		ConversationID: conv.ID,
		Messages:       messages,
		Count:          len(messages),
		Total:          page.Total,
	})
}

// authorizedConversation loads the conversation and verifies the caller's
// membership. Non-participants are rejected distinctly from unknown
// conversations.
func (h *ConversationHandlers) authorizedConversation(c *gin.Context, userID int64) (*store.Conversation, int, string) {
	conversationID := c.Param("id")

	conv, err := h.store.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusNotFound, "conversation not found"
		}
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation")
		return nil, http.StatusInternalServerError, "internal server error"
	}

	for _, p := range conv.Participants {
		if p.ID == userID {
			return conv, 0, ""
		}
	}

	h.log.Warn().
		Str("conversation_id", conversationID).
		Int64("user_id", userID).
		Msg("access attempt without conversation membership")
	return nil, http.StatusForbidden, "you are not a participant in this conversation"
}

func (h *ConversationHandlers) conversationResponse(c *gin.Context, conv *store.Conversation, userID int64) ConversationResponse {
	ctx := c.Request.Context()

	participants := make([]ParticipantResponse, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		participants = append(participants, ParticipantResponse{
			ID:          p.ID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			Email:       p.Email,
		})
	}

	return ConversationResponse{
		ID:           conv.ID,
		Name:         conv.Name,
		IsGroup:      conv.IsGroup,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339),
		Participants: participants,
		MessageCount: h.svc.MessageCount(ctx, conv.ID),
		UnreadCount:  h.svc.UnreadCount(ctx, conv.ID, userID),
	}
}

// parseClamped parses an integer query value with a fallback and clamps
// it into [min, max]. Unparseable values fall back rather than error.
func parseClamped(raw string, fallback, min, max int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if v < min {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}
