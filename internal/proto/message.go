// Package proto defines the JSON envelopes exchanged over a chat
// connection. Inbound envelopes are flat: the type discriminator sits
// next to the payload fields.
package proto

const (
	InboundTypeMessage = "message"
	InboundTypeTyping  = "typing"
	InboundTypeRead    = "read"

	OutboundTypeConnectionEstablished = "connection_established"
	OutboundTypeMessage               = "message"
	OutboundTypeTyping                = "typing"
	OutboundTypeError                 = "error"
)

// Client-visible error strings. Kept stable; clients match on them.
const (
	ErrInvalidFormat   = "Invalid message format"
	ErrEmptyContent    = "Message content cannot be empty"
	ErrContentTooLong  = "Message content is too long"
	ErrProcessingError = "An error occurred processing your message"
)

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// MessageRecord is a chat message as seen on the wire. Sender name and
// email are the snapshot taken when the message was sent.
type MessageRecord struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SenderID       int64   `json:"sender_id"`
	SenderName     string  `json:"sender_name"`
	SenderEmail    string  `json:"sender_email"`
	Content        string  `json:"content"`
	Timestamp      float64 `json:"timestamp"`
	CreatedAt      string  `json:"created_at"`
}

// ConnectionEstablished confirms a successful connection.
type ConnectionEstablished struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// MessageOutbound delivers a chat message.
type MessageOutbound struct {
	Type    string        `json:"type"`
	Message MessageRecord `json:"message"`
}

// TypingOutbound delivers a typing indicator.
type TypingOutbound struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorOutbound delivers a non-fatal error to one client.
type ErrorOutbound struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error envelope.
func NewError(message string) ErrorOutbound {
	return ErrorOutbound{Type: OutboundTypeError, Message: message}
}
