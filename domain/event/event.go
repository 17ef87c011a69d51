// Package event defines the wire payloads exchanged with connected clients.
// Inbound commands arrive in an Envelope; outbound events are delivered
// through per-user sinks and serialized back into the same envelope shape.
package event

import (
	"encoding/json"
	"time"

	"chat-direct/domain"

	"github.com/google/uuid"
)

type Type string

// Inbound event names.
const (
	SendMessageType   Type = "sendMessage"
	MarkAsReadType    Type = "markAsRead"
	TypingType        Type = "typing"
	UpdateMessageType Type = "updateMessage"
	DeleteMessageType Type = "deleteMessage"
)

// Outbound event names.
const (
	NewMessageType       Type = "newMessage"
	MessageDeliveredType Type = "messageDelivered"
	MessageReadType      Type = "messageRead"
	MessageUpdatedType   Type = "messageUpdated"
	MessageDeletedType   Type = "messageDeleted"
	UserStatusChangeType Type = "userStatusChange"
	TypingNoticeType     Type = "typing"
	ErrorType            Type = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event Type            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is implemented by every event routed to a user's sink.
type Outbound interface {
	EventType() Type
}

type NewMessage struct {
	Message domain.View `json:"message"`
}

func (NewMessage) EventType() Type { return NewMessageType }

type MessageDelivered struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

func (MessageDelivered) EventType() Type { return MessageDeliveredType }

type MessageRead struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

func (MessageRead) EventType() Type { return MessageReadType }

type MessageUpdated struct {
	Message domain.View `json:"message"`
}

func (MessageUpdated) EventType() Type { return MessageUpdatedType }

type MessageDeleted struct {
	Message domain.View `json:"message"`
}

func (MessageDeleted) EventType() Type { return MessageDeletedType }

type UserStatusChange struct {
	UserID   uuid.UUID             `json:"userId"`
	Status   domain.PresenceStatus `json:"status"`
	LastSeen time.Time             `json:"lastSeen"`
}

func (UserStatusChange) EventType() Type { return UserStatusChangeType }

type TypingNotice struct {
	UserID         uuid.UUID `json:"userId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

func (TypingNotice) EventType() Type { return TypingNoticeType }

type Error struct {
	Message string `json:"message"`
}

func (Error) EventType() Type { return ErrorType }
