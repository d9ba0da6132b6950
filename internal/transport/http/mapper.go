package http

import (
	"github.com/talkwire/talkwire-server/internal/chatlog"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/proto"
)

func recordToWire(rec chatlog.Record) proto.MessageRecord {
	return proto.MessageRecord{
		ID:             rec.ID,
		ConversationID: rec.ConversationID,
		SenderID:       rec.SenderID,
		SenderName:     rec.SenderName,
		SenderEmail:    rec.SenderEmail,
		Content:        rec.Content,
		Timestamp:      rec.Timestamp,
		CreatedAt:      rec.CreatedAt,
	}
}

func recordsToWire(records []chatlog.Record) []proto.MessageRecord {
	out := make([]proto.MessageRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToWire(rec))
	}
	return out
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventMessage:
		return proto.MessageOutbound{
			Type:    proto.OutboundTypeMessage,
			Message: recordToWire(*event.Record),
		}
	case core.EventTyping:
		return proto.TypingOutbound{
			Type:     proto.OutboundTypeTyping,
			UserID:   event.UserID,
			UserName: event.UserName,
			IsTyping: event.IsTyping,
		}
	case core.EventError:
		return proto.NewError(event.Text)
	default:
		return proto.NewError(proto.ErrProcessingError)
	}
}
