package domain

import (
	"time"

	"chat-direct/errors"

	"github.com/google/uuid"
)

// MessageState is the lifecycle tag of a message.
// Active -> Edited is re-enterable; Deleted is terminal and absorbing.
type MessageState string

const (
	StateActive  MessageState = "active"
	StateEdited  MessageState = "edited"
	StateDeleted MessageState = "deleted"
)

// DeletedPlaceholder replaces the visible content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

// EditEntry is one step of the append-only edit history: the content as it
// was immediately before the edit that produced this entry.
type EditEntry struct {
	PriorContent string    `json:"priorContent"`
	EditedAt     time.Time `json:"editedAt"`
}

// Message is a direct message between two users.
//
// OriginalContent is snapshotted at creation and never touched again, even
// across edits and deletion. All transitions go through the Apply*/Mark*
// methods so illegal combinations (an edit after deletion, read without
// delivered) cannot be produced.
type Message struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	SenderID        uuid.UUID
	ReceiverID      uuid.UUID
	Content         string
	OriginalContent string
	History         []EditEntry
	State           MessageState
	Delivered       bool
	Read            bool
	CreatedAt       time.Time
	EditedAt        *time.Time
	DeletedAt       *time.Time
}

func NewMessage(conversationID, senderID, receiverID uuid.UUID, content string, at time.Time) Message {
	return Message{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		OriginalContent: content,
		State:           StateActive,
		CreatedAt:       at,
	}
}

func (m Message) IsEdited() bool  { return m.State == StateEdited }
func (m Message) IsDeleted() bool { return m.State == StateDeleted }

// ApplyEdit prepends the pre-edit content onto the history, then overwrites
// the visible content. Editing a deleted message is rejected.
func (m *Message) ApplyEdit(newContent string, at time.Time) error {
	if m.IsDeleted() {
		return errors.ErrTerminalState
	}
	m.History = append(m.History, EditEntry{PriorContent: m.Content, EditedAt: at})
	m.Content = newContent
	m.State = StateEdited
	m.EditedAt = &at
	return nil
}

// ApplyDelete moves the message into its terminal state. The original
// content and the edit history are retained for GetHistory; only the
// visible content is replaced. Deleting twice is an absorbing no-op.
func (m *Message) ApplyDelete(at time.Time) bool {
	if m.IsDeleted() {
		return false
	}
	m.Content = DeletedPlaceholder
	m.State = StateDeleted
	m.DeletedAt = &at
	return true
}

func (m *Message) MarkDelivered() {
	m.Delivered = true
}

// MarkRead flips the read flag. Read implies delivered.
func (m *Message) MarkRead() {
	m.Delivered = true
	m.Read = true
}

// View is the sanitized outward representation: no original content,
// no edit history. Every REST read and real-time event uses it.
type View struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	ReceiverID     uuid.UUID  `json:"receiverId"`
	Content        string     `json:"content"`
	IsDelivered    bool       `json:"isDelivered"`
	IsRead         bool       `json:"isRead"`
	IsEdited       bool       `json:"isEdited"`
	IsDeleted      bool       `json:"isDeleted"`
	CreatedAt      time.Time  `json:"createdAt"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

func (m Message) View() View {
	return View{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		IsDelivered:    m.Delivered,
		IsRead:         m.Read,
		IsEdited:       m.IsEdited(),
		IsDeleted:      m.IsDeleted(),
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}

// HistoryView is the full record of a message, including the fields every
// other representation strips. Only the lifecycle's GetHistory produces it.
type HistoryView struct {
	MessageID       uuid.UUID   `json:"messageId"`
	ConversationID  uuid.UUID   `json:"conversationId"`
	OriginalContent string      `json:"originalContent"`
	Content         string      `json:"content"`
	History         []EditEntry `json:"editHistory"`
	IsEdited        bool        `json:"isEdited"`
	IsDeleted       bool        `json:"isDeleted"`
	CreatedAt       time.Time   `json:"createdAt"`
	EditedAt        *time.Time  `json:"editedAt,omitempty"`
	DeletedAt       *time.Time  `json:"deletedAt,omitempty"`
}

func (m Message) HistoryView() HistoryView {
	return HistoryView{
		MessageID:       m.ID,
		ConversationID:  m.ConversationID,
		OriginalContent: m.OriginalContent,
		Content:         m.Content,
		History:         m.History,
		IsEdited:        m.IsEdited(),
		IsDeleted:       m.IsDeleted(),
		CreatedAt:       m.CreatedAt,
		EditedAt:        m.EditedAt,
		DeletedAt:       m.DeletedAt,
	}
}
