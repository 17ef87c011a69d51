package event

import "github.com/google/uuid"

// Inbound command payloads. Validation tags are checked by the dispatcher
// before any state is touched.

type SendMessage struct {
	ReceiverID uuid.UUID `json:"receiverId" validate:"required"`
	Content    string    `json:"content" validate:"required"`
}

// MarkAsRead targets either a single message or a whole conversation.
// Exactly one of the two ids must be set.
type MarkAsRead struct {
	MessageID      *uuid.UUID `json:"messageId,omitempty"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
}

type Typing struct {
	ConversationID uuid.UUID `json:"conversationId" validate:"required"`
}

type UpdateMessage struct {
	MessageID uuid.UUID `json:"messageId" validate:"required"`
	Content   string    `json:"content" validate:"required"`
}

type DeleteMessage struct {
	MessageID uuid.UUID `json:"messageId" validate:"required"`
}
